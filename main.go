package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gistjackdaniel/filmWithAi-sub002/auth"
	"github.com/gistjackdaniel/filmWithAi-sub002/domain"
	"github.com/gistjackdaniel/filmWithAi-sub002/hub"
	"github.com/gistjackdaniel/filmWithAi-sub002/projectapi"
	"github.com/gistjackdaniel/filmWithAi-sub002/protocol"
	ws "github.com/gistjackdaniel/filmWithAi-sub002/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}
	setupLogger()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}
	apiBase := os.Getenv("API_BASE_URL")
	if apiBase == "" {
		apiBase = "http://localhost:5001"
	}
	authTimeout := 3 * time.Second
	if ms, err := strconv.Atoi(os.Getenv("AUTH_TIMEOUT_MS")); err == nil && ms > 0 {
		authTimeout = time.Duration(ms) * time.Millisecond
	}

	verifier := auth.NewVerifier(secret)
	backend := projectapi.NewClient(apiBase)
	registry := hub.New()
	handler := protocol.NewHandler(registry, backend, backend, authTimeout)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(registry, handler, verifier))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/stats", statsHandler(registry))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		slog.Info("server starting", "port", port, "apiBase", apiBase)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func wsHandler(registry *hub.Hub, handler *protocol.Handler, verifier *auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("upgrade error", "error", err)
			return
		}

		identity, err := verifier.Verify(auth.TokenFromRequest(r))
		if err != nil {
			// Refused before any state exists for this connection.
			slog.Warn("handshake refused", "remote", r.RemoteAddr, "error", err)
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed: "+err.Error())
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			conn.Close()
			return
		}

		wsConn := ws.NewConn(uuid.New().String(), identity, conn, registry, handler)
		wsConn.Start()

		greeting := domain.NewEvent(domain.EventConnectionEstablished, "", map[string]string{
			"sessionId": wsConn.ID(),
			"userId":    identity.UserID,
			"userLabel": identity.UserLabel,
		})
		if data, err := json.Marshal(greeting); err == nil {
			wsConn.Send(data)
		}
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func statsHandler(registry *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(registry.Stats())
	}
}
