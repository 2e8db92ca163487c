package wsbridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/tagqueue/internal/observability"
	"github.com/harun/tagqueue/internal/tracing"
	"github.com/harun/tagqueue/pkg/tagqueue"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// HandlerOption configures Handler
type HandlerOption func(*Server)

// RequireSecret rejects upgrades that do not carry secret
func RequireSecret(secret string) HandlerOption {
	return func(s *Server) {
		s.secret = secret
	}
}

// Server is the bridge side of the transport
type Server struct {
	sink     tagqueue.Sink
	logger   zerolog.Logger
	secret   string
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[string]*websocket.Conn
	closed bool
}

// Handler serves the bridge side: every request frame is invoked on sink in arrival
// order and answered once its completion resolves.
func Handler(sink tagqueue.Sink, logger zerolog.Logger, opts ...HandlerOption) *Server {
	observability.EnsureRegistered()

	s := &Server{
		sink:   sink,
		logger: logger.With().Str("component", "wsbridge").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		conns: make(map[string]*websocket.Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			observability.RecordSecurityAudit(r.Context(), "connect", r.RemoteAddr, false, map[string]any{
				"reason": "bad secret",
			})
			s.logger.Warn().Str("ip", r.RemoteAddr).Msg("Rejected bridge connection with bad secret")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "bridge is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	connID, _ := gonanoid.New()
	if !s.track(connID, conn) {
		conn.Close()
		return
	}
	defer s.untrack(connID)

	logger := s.logger.With().Str("connId", connID).Logger()
	logger.Info().Str("ip", r.RemoteAddr).Msg("Bridge client connected")
	observability.RecordSecurityAudit(r.Context(), "connect", r.RemoteAddr, true, map[string]any{
		"connId": connID,
	})

	observability.AddBridgeConnections(1)
	defer observability.AddBridgeConnections(-1)

	s.serve(conn, logger)
	logger.Info().Msg("Bridge client disconnected")
}

func (s *Server) track(id string, conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[id] = conn
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

// Connections returns the number of connected clients
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close refuses new connections and closes the open ones. Calls still pending on a
// closed connection fail with ErrClosed on the client side.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for _, c := range conns {
		_ = c.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge shutting down"),
			deadline,
		)
		c.Close()
	}
}

func (s *Server) serve(conn *websocket.Conn, logger zerolog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	defer func() {
		cancel()
		wg.Wait()
		conn.Close()
	}()

	write := func(rep Reply) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(rep); err != nil {
			logger.Error().Err(err).Str("frameId", rep.ID).Msg("Failed to send reply")
		}
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}

		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			write(Reply{OK: false, Error: "invalid frame: " + err.Error()})
			continue
		}
		if req.ID == "" || req.Method == "" {
			write(Reply{ID: req.ID, OK: false, Error: "invalid frame: id and method are required"})
			continue
		}

		callCtx := tracing.NewCallContext(ctx, req.CallID, req.Method)
		reply := tagqueue.NewCompletion()
		s.sink.Invoke(callCtx, req.invocation(), reply)

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			select {
			case <-reply.Done():
			case <-ctx.Done():
				return
			}
			result, _ := reply.Result()
			if result.Err != nil {
				write(Reply{ID: id, OK: false, Error: result.Err.Error()})
				return
			}
			write(Reply{ID: id, OK: true, Message: result.Message})
		}(req.ID)
	}
}
