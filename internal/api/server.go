// Package api provides the HTTP and WebSocket server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/internal/data"
	"github.com/quantfolio/portfolio-backend/internal/portfolio"
	"github.com/quantfolio/portfolio-backend/pkg/types"
	"github.com/quantfolio/portfolio-backend/pkg/utils"
)

// Server is the HTTP/WebSocket API server
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    map[string]*Client
	store      *data.Store
	engine     *portfolio.Engine
	validator  *data.QualityValidator
	metrics    *Metrics
	quoteToken string
	reports    map[string]*types.PortfolioReport
}

// Client represents a WebSocket client
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Subs map[string]bool // Subscriptions
}

// Message represents a WebSocket message
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"` // request, response, event
	Method    string      `json:"method"`
	Payload   interface{} `json:"payload,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewServer creates a new API server
func NewServer(logger *zap.Logger, config *types.ServerConfig, engine *portfolio.Engine, store *data.Store, quoteToken string) *Server {
	server := &Server{
		logger:     logger,
		config:     config,
		router:     mux.NewRouter(),
		clients:    make(map[string]*Client),
		store:      store,
		engine:     engine,
		validator:  data.NewQualityValidator(logger),
		metrics:    NewMetrics(),
		quoteToken: quoteToken,
		reports:    make(map[string]*types.PortfolioReport),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	server.setupRoutes()
	return server
}

// Router exposes the HTTP router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	// Data endpoints
	s.router.HandleFunc("/api/v1/tokens", s.handleGetTokens).Methods("GET")
	s.router.HandleFunc("/api/v1/history/{token}", s.handleGetHistory).Methods("GET")
	s.router.HandleFunc("/api/v1/history", s.handleSaveHistory).Methods("POST")

	// Optimization endpoints
	s.router.HandleFunc("/api/v1/portfolio/optimize", s.handleOptimize).Methods("POST")
	s.router.HandleFunc("/api/v1/portfolio/report/{id}", s.handleGetReport).Methods("GET")

	// Prometheus metrics
	s.router.Handle("/metrics", promhttp.Handler())

	// WebSocket
	s.router.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting API server", zap.String("addr", addr))

	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	// Close all WebSocket connections
	s.mu.Lock()
	for _, client := range s.clients {
		client.Conn.Close()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// handleGetTokens returns tokens with stored price history
func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.store.AvailableTokens()

	json.NewEncoder(w).Encode(map[string]interface{}{
		"tokens": tokens,
		"count":  len(tokens),
	})
}

// handleGetHistory returns the stored price series for a token
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	token := utils.NormalizeToken(vars["token"])

	quote := r.URL.Query().Get("quote")
	if quote == "" {
		quote = s.quoteToken
	}

	history, err := s.store.LoadHistory(r.Context(), token, quote)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	change := decimal.Zero
	if n := len(history.Prices); n >= 2 {
		change = utils.CalculatePercentageChange(
			history.Prices[0].Price, history.Prices[n-1].Price)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":         history.Token,
		"quote":         history.QuoteToken,
		"prices":        history.Prices,
		"count":         len(history.Prices),
		"changePercent": change,
	})
}

// handleSaveHistory stores a price series
func (s *Server) handleSaveHistory(w http.ResponseWriter, r *http.Request) {
	var history types.PriceHistory
	if err := json.NewDecoder(r.Body).Decode(&history); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	history.Token = utils.NormalizeToken(history.Token)
	if history.Token == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}
	if history.QuoteToken == "" {
		history.QuoteToken = s.quoteToken
	}

	quality := s.validator.Validate(&history)

	if err := s.store.SaveHistory(&history); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":   history.Token,
		"points":  len(history.Prices),
		"status":  "saved",
		"quality": quality,
	})
}

// handleOptimize runs one optimization cycle
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req types.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	report, err := s.runOptimization(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	json.NewEncoder(w).Encode(report)
}

// handleGetReport returns a previously computed report
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	s.mu.RLock()
	report, ok := s.reports[id]
	s.mu.RUnlock()

	if !ok {
		http.Error(w, "Report not found", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(report)
}

// runOptimization executes the engine for a request, filling missing
// histories from the store, and records the outcome.
func (s *Server) runOptimization(ctx context.Context, req *types.OptimizeRequest) (*types.PortfolioReport, error) {
	if len(req.Portfolio.Tokens) == 0 {
		return nil, fmt.Errorf("no tokens in optimization universe")
	}

	if len(req.Portfolio.HistoricalPrices) == 0 {
		symbols := make([]string, len(req.Portfolio.Tokens))
		for i, token := range req.Portfolio.Tokens {
			symbols[i] = token.Symbol
		}
		req.Portfolio.HistoricalPrices = s.store.LoadHistories(ctx, symbols, s.quoteToken)
	}

	threshold := 0.0
	if req.RebalanceThreshold != nil {
		threshold = *req.RebalanceThreshold
	}

	start := time.Now()
	report, err := s.engine.ExecuteOptimization(req.Wallet, req.Portfolio, threshold)
	s.metrics.ObserveOptimization(time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("optimization failed: %w", err)
	}
	if report.RebalanceNeeded {
		s.metrics.IncRebalance()
	}
	if report.WeightsSanitized {
		s.metrics.IncSanitized()
	}

	s.mu.Lock()
	s.reports[report.ID] = report
	s.mu.Unlock()

	s.broadcast(&Message{
		ID:        uuid.New().String(),
		Type:      "event",
		Method:    "optimize:complete",
		Payload:   map[string]interface{}{"id": report.ID, "rebalanceNeeded": report.RebalanceNeeded},
		Timestamp: time.Now().UnixMilli(),
	})

	return report, nil
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, 256),
		Subs: make(map[string]bool),
	}

	s.mu.Lock()
	s.clients[client.ID] = client
	s.mu.Unlock()

	s.logger.Info("WebSocket client connected", zap.String("id", client.ID))

	// Start read/write goroutines
	go s.readPump(client)
	go s.writePump(client)
}

// readPump handles incoming WebSocket messages
func (s *Server) readPump(client *Client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ID)
		s.mu.Unlock()
		client.Conn.Close()
		s.logger.Info("WebSocket client disconnected", zap.String("id", client.ID))
	}()

	client.Conn.SetReadLimit(512 * 1024) // 512KB max message size
	client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			s.logger.Warn("Invalid WebSocket message", zap.Error(err))
			continue
		}

		s.handleMessage(client, &msg)
	}
}

// writePump handles outgoing WebSocket messages
func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles a WebSocket message
func (s *Server) handleMessage(client *Client, msg *Message) {
	response := &Message{
		ID:        msg.ID,
		Type:      "response",
		Method:    msg.Method,
		Timestamp: time.Now().UnixMilli(),
	}

	switch msg.Method {
	case "ping":
		response.Payload = map[string]string{"pong": "ok"}

	case "optimize:run":
		payload, ok := msg.Payload.(map[string]interface{})
		if !ok {
			response.Error = "Invalid payload"
			break
		}
		payloadBytes, _ := json.Marshal(payload)
		var req types.OptimizeRequest
		if err := json.Unmarshal(payloadBytes, &req); err != nil {
			response.Error = "Invalid optimize request"
			break
		}

		report, err := s.runOptimization(context.Background(), &req)
		if err != nil {
			response.Error = err.Error()
		} else {
			response.Payload = report
		}

	case "report:get":
		payload, _ := msg.Payload.(map[string]interface{})
		id, _ := payload["id"].(string)

		s.mu.RLock()
		report, ok := s.reports[id]
		s.mu.RUnlock()

		if !ok {
			response.Error = "Report not found"
		} else {
			response.Payload = report
		}

	case "subscribe":
		payload, _ := msg.Payload.(map[string]interface{})
		channel, _ := payload["channel"].(string)
		client.Subs[channel] = true
		response.Payload = map[string]string{"subscribed": channel}

	case "unsubscribe":
		payload, _ := msg.Payload.(map[string]interface{})
		channel, _ := payload["channel"].(string)
		delete(client.Subs, channel)
		response.Payload = map[string]string{"unsubscribed": channel}

	default:
		response.Error = "Unknown method"
	}

	responseBytes, _ := json.Marshal(response)
	select {
	case client.Send <- responseBytes:
	default:
	}
}

// broadcast sends a message to all connected clients
func (s *Server) broadcast(msg *Message) {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		select {
		case client.Send <- msgBytes:
		default:
			// Client buffer full, skip
		}
	}
}
