package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/connectorhost/connectorhost/internal/cache"
	"github.com/connectorhost/connectorhost/internal/connector/registry"
	"github.com/connectorhost/connectorhost/internal/metrics"
	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
	"github.com/connectorhost/connectorhost/pkg/logger"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Config configures a Session's connection to the remote control plane.
type Config struct {
	ServerURL   string
	ServiceName string
	Token       TokenConfig
}

// Session owns one outbound WebSocket connection to a control plane,
// reconnecting with bounded exponential backoff on close, error, or token
// failure, and dispatching inbound frames through a Dispatcher.
type Session struct {
	cfg   Config
	token *TokenProvider
	disp  *Dispatcher
	log   *zap.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	reconnectAt  time.Duration
	reconnecting bool
	shuttingDown bool
	shutdownCh   chan struct{}
	reconnectTimer *time.Timer
}

// New builds a Session for reg, sharing sharedCache across every Facade
// the dispatcher lazily creates.
func New(cfg Config, reg *registry.Registry, sharedCache *cache.Cache) *Session {
	return &Session{
		cfg:         cfg,
		token:       NewTokenProvider(cfg.Token, nil),
		disp:        NewDispatcher(reg, sharedCache),
		log:         logger.With(zap.String("component", "session")),
		reconnectAt: initialReconnectDelay,
		shutdownCh:  make(chan struct{}),
	}
}

// Start opens the first connection and returns immediately; reconnects are
// scheduled in the background on failure.
func (s *Session) Start(ctx context.Context) {
	go s.connectLoop(ctx)
}

// Shutdown cancels any scheduled reconnect, closes the socket with an
// orderly close frame, and prevents further reconnects.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return
	}
	s.shuttingDown = true
	close(s.shutdownCh)

	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}

	if s.conn != nil {
		deadline := time.Now().Add(2 * time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"), deadline)
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Session) isShuttingDown() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

// connectLoop performs one connect-serve attempt and, unless shutting
// down, schedules the next one on failure; each scheduled attempt
// re-enters connectLoop from its own timer, so no loop construct is
// needed here.
func (s *Session) connectLoop(ctx context.Context) {
	if s.isShuttingDown() {
		return
	}

	if err := s.connectOnce(ctx); err != nil {
		s.log.Warn("connection attempt failed", zap.Error(err))
		if cherrors.IsType(err, cherrors.ErrorTypeTokenRequestFailed) {
			s.token.Invalidate()
		}
	}

	if s.isShuttingDown() {
		return
	}
	s.scheduleReconnect(ctx)
}

func (s *Session) scheduleReconnect(ctx context.Context) {
	s.mu.Lock()
	if s.reconnecting || s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	delay := s.reconnectAt
	s.reconnectAt = nextDelay(s.reconnectAt)
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
		metrics.SessionReconnects.Inc()
		s.connectLoop(ctx)
	})
	s.mu.Unlock()
}

func nextDelay(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxReconnectDelay {
		return maxReconnectDelay
	}
	return next
}

// connectOnce performs a single connect-serve cycle: fetch a token, dial,
// announce, and read frames until the connection drops.
func (s *Session) connectOnce(ctx context.Context) error {
	token, err := s.token.Token(ctx)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.ServerURL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return cherrors.Wrapf(err, cherrors.ErrorTypeTokenRequestFailed, "websocket upgrade rejected with status %d", resp.StatusCode)
		}
		return cherrors.Wrap(err, cherrors.ErrorTypeBackendError, "websocket dial failed")
	}

	s.mu.Lock()
	s.conn = conn
	s.reconnectAt = initialReconnectDelay
	s.mu.Unlock()

	s.log.Info("session connected", zap.String("url", s.cfg.ServerURL))

	if err := s.announce(conn); err != nil {
		_ = conn.Close()
		return err
	}

	return s.serve(ctx, conn)
}

func (s *Session) announce(conn *websocket.Conn) error {
	frame := serviceInfoFrame{
		Type:       FrameTypeServiceInfo,
		Service:    s.cfg.ServiceName,
		StartedAt:  time.Now().UTC().Format(time.RFC3339),
		Connectors: s.disp.ConnectorIDs(),
	}
	return conn.WriteJSON(frame)
}

func (s *Session) serve(ctx context.Context, conn *websocket.Conn) error {
	for {
		if s.isShuttingDown() {
			return nil
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return cherrors.Wrap(err, cherrors.ErrorTypeBackendError, "websocket read failed")
		}

		reply, err := s.disp.Handle(ctx, message)
		if err != nil {
			s.log.Warn("frame handling failed", zap.Error(err))
			continue
		}
		if reply == nil {
			continue
		}

		s.mu.Lock()
		writeErr := conn.WriteMessage(websocket.TextMessage, reply)
		s.mu.Unlock()
		if writeErr != nil {
			return cherrors.Wrap(writeErr, cherrors.ErrorTypeBackendError, "websocket write failed")
		}
	}
}
