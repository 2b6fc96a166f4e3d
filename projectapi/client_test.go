package projectapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gistjackdaniel/filmWithAi-sub002/domain"
)

func TestClient_CanAccess(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    bool
		wantErr bool
	}{
		{name: "allowed", status: http.StatusOK, body: `{"allowed":true}`, want: true},
		{name: "denied", status: http.StatusOK, body: `{"allowed":false}`},
		{name: "forbidden status", status: http.StatusForbidden, wantErr: true},
		{name: "backend error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/projects/p1/access", r.URL.Path)
				assert.Equal(t, "u1", r.URL.Query().Get("userId"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ok, err := NewClient(srv.URL).CanAccess(context.Background(), "u1", "p1")
			if tt.wantErr {
				require.Error(t, err)
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestClient_CanAccessTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"allowed":true}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ok, err := NewClient(srv.URL).CanAccess(ctx, "u1", "p1")
	require.Error(t, err, "deadline hit must surface as an error, caller fails closed")
	assert.False(t, ok)
}

func TestClient_Snapshot(t *testing.T) {
	snapshot := `{"projectId":"p1","contes":[{"id":"c1"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/p1/snapshot", r.URL.Path)
		w.Write([]byte(snapshot))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).Snapshot(context.Background(), "p1")
	require.NoError(t, err)
	assert.JSONEq(t, snapshot, string(got))
}

func TestClient_Update(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/projects/p1/contes/c1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var patch map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		assert.Equal(t, float64(3), patch["order"])

		w.Write([]byte(`{"id":"c1","order":3}`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).Update(context.Background(), "p1", "c1", json.RawMessage(`{"order":3}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1","order":3}`, string(got))
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "not found", status: http.StatusNotFound, wantErr: domain.ErrNotFound},
		{name: "forbidden", status: http.StatusForbidden, wantErr: domain.ErrForbidden},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: domain.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Update(context.Background(), "p1", "c1", nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
