// Package gateway exposes the recorder over JSON-RPC on WebSocket and HTTP
// and pushes recordDuration events to authenticated WebSocket clients.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/fieldrec/internal/metrics"
	"github.com/harun/fieldrec/pkg/catalog"
	"github.com/harun/fieldrec/pkg/concat"
	"github.com/harun/fieldrec/pkg/permission"
	"github.com/harun/fieldrec/pkg/recording"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// SecretHeader carries the shared secret on HTTP RPC requests
const SecretHeader = "X-Fieldrec-Secret"

// Defaults
const (
	DefaultStartTimeout    = 2 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second
	maxRPCBodyBytes        = 1 << 20
)

// Config holds server configuration
type Config struct {
	// Addr is the listen address, e.g. 127.0.0.1:7788 or :0
	Addr         string
	SharedSecret string

	Session     *recording.Session
	Pipeline    *concat.Pipeline
	Permissions *permission.Manager
	Catalog     *catalog.Store

	// Clients and Broadcaster may be created ahead of the server so that
	// the broadcaster can be the session's Listener.
	Clients     *ClientRegistry
	Broadcaster *EventBroadcaster

	RequestsPerMinute int
	MaxConcurrent     int
	// StartTimeout bounds how long startRecording waits, including a
	// pending permission prompt
	StartTimeout    time.Duration
	ShutdownTimeout time.Duration

	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Server is the gateway server
type Server struct {
	addr              string
	requestsPerMinute int
	maxConcurrent     int
	startTimeout      time.Duration
	shutdownTimeout   time.Duration

	session     *recording.Session
	pipeline    *concat.Pipeline
	permissions *permission.Manager
	catalog     *catalog.Store

	server      *http.Server
	listener    net.Listener
	upgrader    websocket.Upgrader
	clients     *ClientRegistry
	router      *RPCRouter
	authHandler *AuthHandler
	broadcaster *EventBroadcaster
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	logger := cfg.Logger.With().Str("component", "gateway").Logger()

	clients := cfg.Clients
	if clients == nil {
		clients = NewClientRegistry()
	}
	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = NewEventBroadcaster(clients, cfg.Logger)
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())

	s := &Server{
		addr:              cfg.Addr,
		requestsPerMinute: cfg.RequestsPerMinute,
		maxConcurrent:     cfg.MaxConcurrent,
		startTimeout:      cfg.StartTimeout,
		shutdownTimeout:   cfg.ShutdownTimeout,
		session:           cfg.Session,
		pipeline:          cfg.Pipeline,
		permissions:       cfg.Permissions,
		catalog:           cfg.Catalog,
		clients:           clients,
		router:            NewRPCRouter(),
		authHandler:       NewAuthHandler(cfg.SharedSecret),
		broadcaster:       broadcaster,
		metrics:           cfg.Metrics,
		logger:            logger,
		baseCtx:           baseCtx,
		baseCancel:        baseCancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.registerBuiltinMethods()

	return s, nil
}

// Handler returns the HTTP handler serving /ws, /rpc, /metrics and /healthz
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/rpc", s.handleRPC)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-timer.C:
		s.logger.Warn().Msg("Shutdown timeout reached, cancelling in-flight requests")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown cancelled, cancelling in-flight requests")
	}
	s.baseCancel()

	for _, client := range s.clients.GetAll() {
		_ = client.Conn.Close()
	}

	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  time.Now(),
		IPAddress:    r.RemoteAddr,
		RateLimiter:  NewClientRateLimiter(s.requestsPerMinute, s.maxConcurrent),
		lastActivity: time.Now(),
	}

	s.metrics.SetGatewayClients(s.clients.Add(client))

	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	if err := s.sendAuthChallenge(client); err != nil {
		s.logger.Error().Err(err).Str("clientId", clientID).Msg("Failed to send auth challenge")
		_ = conn.Close()
		s.metrics.SetGatewayClients(s.clients.Remove(clientID))
		return
	}

	go s.handleClient(client)
}

// sendAuthChallenge sends an authentication challenge to a client
func (s *Server) sendAuthChallenge(client *Client) error {
	challenge, err := s.authHandler.issueChallenge(client)
	if err != nil {
		return err
	}

	return client.WriteJSON(AuthChallenge{
		Event:     "auth.challenge",
		Challenge: challenge,
	})
}

// handleClient reads messages from a client until it disconnects
func (s *Server) handleClient(client *Client) {
	defer func() {
		_ = client.Conn.Close()
		s.metrics.SetGatewayClients(s.clients.Remove(client.ID))
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			return
		}

		s.clients.UpdateActivity(client.ID)

		if !s.handleMessage(client, message) {
			return
		}
	}
}

// handleMessage handles one client message. It returns false when the
// connection should be closed.
func (s *Server) handleMessage(client *Client, message []byte) bool {
	var authResp AuthResponse
	if err := json.Unmarshal(message, &authResp); err == nil && authResp.Method == "auth.response" {
		return s.handleAuthMessage(client, authResp)
	}

	if !client.IsAuthenticated() {
		s.sendError(client, "", AuthenticationRequired, "Authentication required")
		return true
	}

	req, err := s.router.ParseRequest(message)
	if err != nil {
		rpcErr := toRPCError(err)
		s.sendError(client, "", rpcErr.Code, rpcErr.Message)
		return true
	}

	allowed, reason := client.RateLimiter.Acquire()
	if !allowed {
		code := RateLimitExceeded
		if reason == reasonTooConcurrent {
			code = TooManyConcurrent
		}
		s.sendError(client, req.ID, code, reason)
		return true
	}

	s.inFlightReqs.Add(1)

	go func() {
		defer client.RateLimiter.Release()
		defer s.inFlightReqs.Done()

		ctx := withClientID(s.baseCtx, client.ID)
		response := s.dispatch(ctx, req)
		if err := client.WriteJSON(response); err != nil {
			s.logger.Error().
				Err(err).
				Str("clientId", client.ID).
				Str("requestId", string(req.ID)).
				Msg("Failed to send response")
		}
	}()
	return true
}

// dispatch routes a request and records its outcome
func (s *Server) dispatch(ctx context.Context, req *RPCRequest) *RPCResponse {
	resp := s.router.RouteRequest(ctx, req)
	s.metrics.RecordGatewayRequest(req.Method, resp.Error == nil)

	logger := requestLogger(ctx, s.logger, req.Method)
	if resp.Error != nil {
		logger.Debug().Str("requestId", string(req.ID)).Int("code", resp.Error.Code).Str("error", resp.Error.Message).Msg("RPC request failed")
	} else {
		logger.Debug().Str("requestId", string(req.ID)).Msg("RPC request handled")
	}
	return resp
}

// handleRPC handles single-shot HTTP JSON-RPC requests
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	if !s.authHandler.VerifySecret(r.Header.Get(SecretHeader)) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRPCBodyBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	req, err := s.router.ParseRequest(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(RPCResponse{
			JSONRPC: "2.0",
			Error:   toRPCError(err),
		})
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	resp := s.dispatch(r.Context(), req)

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode RPC response")
	}
}

// handleAuthMessage handles authentication messages
func (s *Server) handleAuthMessage(client *Client, authResp AuthResponse) bool {
	result := s.authHandler.HandleAuthResponse(client, authResp.Signature)

	if err := client.WriteJSON(result); err != nil {
		s.logger.Error().Err(err).Str("clientId", client.ID).Msg("Failed to send auth result")
		return false
	}

	if result.Success {
		s.logger.Info().Str("clientId", client.ID).Msg("Client authenticated")
		return true
	}

	s.logger.Warn().
		Str("clientId", client.ID).
		Str("reason", result.Message).
		Msg("Authentication failed")

	return client.AuthAttempts() < MaxAuthAttempts
}

// sendError sends an error response to a client
func (s *Server) sendError(client *Client, requestID RequestID, code int, message string) {
	response := RPCResponse{
		ID:      requestID,
		JSONRPC: "2.0",
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	}

	if err := client.WriteJSON(response); err != nil {
		s.logger.Error().
			Err(err).
			Str("clientId", client.ID).
			Msg("Failed to send error response")
	}
}

// Broadcaster returns the event broadcaster
func (s *Server) Broadcaster() *EventBroadcaster {
	return s.broadcaster
}

// RegisterMethod registers an RPC method handler
func (s *Server) RegisterMethod(name string, handler RequestHandler) error {
	return s.router.RegisterMethod(name, handler)
}

// Methods returns the registered method names
func (s *Server) Methods() []string {
	return s.router.GetMethods()
}
