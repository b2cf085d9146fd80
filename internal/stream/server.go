package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"marketfeed/internal/ledger"
	"marketfeed/internal/market"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const livenessBody = "Crypto WebSocket server is running\n"

// closeFrameTimeout bounds how long a close frame may wait behind a stalled write.
const closeFrameTimeout = time.Second

type Options struct {
	PriceUpdateInterval time.Duration
	MaxConnections      int
	MaxMessageSize      int64
	WriteTimeout        time.Duration
	QuoteCurrency       string // suffix of wire symbols, e.g. "cad" -> "BTC_CAD"
}

func DefaultOptions() Options {
	return Options{
		PriceUpdateInterval: time.Second,
		MaxConnections:      1000,
		MaxMessageSize:      1024,
		WriteTimeout:        5 * time.Second,
		QuoteCurrency:       "cad",
	}
}

// Server accepts feed connections on Path and runs one Session per connection.
type Server struct {
	opts     Options
	market   *market.State
	registry *Registry
	recorder ledger.Recorder
	logger   *zap.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// NewServer builds the feed handler. A nil recorder keeps session records in memory.
func NewServer(state *market.State, recorder ledger.Recorder, opts Options, logger *zap.Logger) *Server {
	if recorder == nil {
		recorder = ledger.NewMemoryRecorder()
	}

	s := &Server{
		opts:     opts,
		market:   state,
		registry: NewRegistry(opts.MaxConnections),
		recorder: recorder,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: make(map[*Session]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWS)
	mux.HandleFunc("/", s.handleLiveness)
	s.mux = mux

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// LiveConnections returns the number of accepted, not yet closed sessions.
func (s *Server) LiveConnections() int {
	return s.registry.Count()
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(livenessBody))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.registry.TryAcquire() {
		s.reject(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.registry.Release()
		s.logger.Warn("websocket upgrade failed", zap.String("client_ip", r.RemoteAddr), zap.Error(err))
		return
	}

	session := newSession(conn, r.RemoteAddr, s.market, s.opts, s.logger)
	if !s.track(session) {
		s.registry.Release()
		session.shutdown(time.Now().Add(closeFrameTimeout))
		return
	}

	session.logger.Info("new client connected", zap.Int("total_connections", s.registry.Count()))

	reason := session.serve()
	session.close(reason)

	s.untrack(session)
	s.registry.Release()

	session.logger.Info("client disconnected",
		zap.String("reason", reason),
		zap.Int64("frames_sent", session.framesSent.Load()),
		zap.Int("total_connections", s.registry.Count()))

	s.record(session)
	s.wg.Done()
}

// reject completes the upgrade only to close with 1013 so the client sees the reason.
func (s *Server) reject(w http.ResponseWriter, r *http.Request) {
	s.logger.Error("max connections reached, rejecting connection",
		zap.String("client_ip", r.RemoteAddr),
		zap.Int("max_connections", s.registry.Max()))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, CloseReasonMaxConnections)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		s.logger.Debug("failed to send rejection close frame", zap.Error(err))
	}
}

func (s *Server) track(session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.sessions[session] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session)
}

func (s *Server) record(session *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.recorder.Record(ctx, session.Record(time.Now())); err != nil {
		session.logger.Warn("failed to record session", zap.Error(err))
	}
}

// Shutdown closes every live session with a going-away frame and waits until
// their teardown (including broadcast loops) has finished or ctx expires.
// New connections arriving afterwards are closed immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	live := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		live = append(live, session)
	}
	s.mu.Unlock()

	deadline := time.Now().Add(closeFrameTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.logger.Info("closing live sessions", zap.Int("count", len(live)))
	for _, session := range live {
		go session.shutdown(deadline)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
