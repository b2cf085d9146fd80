package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"marketfeed/internal/ledger"
	"marketfeed/internal/market"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type SessionState int32

const (
	StateConnected SessionState = iota
	StateSubscribed
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Close reasons recorded in the session ledger.
const (
	reasonClientClosed   = "client closed"
	reasonReadError      = "read error"
	reasonMessageTooBig  = "message too big"
	reasonWriteFailed    = "write failed"
	reasonServerShutdown = "server shutdown"
)

// Session is the per-connection state: subscription flag, its broadcast loop and counters.
type Session struct {
	id     string
	remote string
	conn   *websocket.Conn
	market *market.State
	opts   Options
	logger *zap.Logger

	writeMu sync.Mutex

	mu           sync.Mutex
	state        SessionState
	cancel       context.CancelFunc
	tickerDone   chan struct{}
	subscribedAt *time.Time
	closeReason  string
	shuttingDown bool

	connectedAt time.Time
	framesSent  atomic.Int64
	errorsSent  atomic.Int64

	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, remote string, state *market.State, opts Options, logger *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		remote:      remote,
		conn:        conn,
		market:      state,
		opts:        opts,
		logger:      logger.With(zap.String("session", id), zap.String("client_ip", remote)),
		state:       StateConnected,
		connectedAt: time.Now(),
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// serve reads control frames until the transport fails or is closed, then returns the close reason.
func (s *Session) serve() string {
	s.conn.SetReadLimit(s.opts.MaxMessageSize)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return s.readFailureReason(err)
		}
		s.handleMessage(payload)
	}
}

func (s *Session) readFailureReason(err error) string {
	s.mu.Lock()
	shuttingDown, recorded := s.shuttingDown, s.closeReason
	s.mu.Unlock()

	switch {
	case shuttingDown:
		return reasonServerShutdown
	case recorded != "":
		return recorded
	case errors.Is(err, websocket.ErrReadLimit):
		s.logger.Warn("inbound frame exceeds limit", zap.Int64("limit", s.opts.MaxMessageSize))
		return reasonMessageTooBig
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		return reasonClientClosed
	default:
		s.logger.Warn("websocket error", zap.Error(err))
		return reasonReadError
	}
}

func (s *Session) handleMessage(payload []byte) {
	msg, err := ParseControlMessage(payload)
	if err != nil {
		s.logger.Warn("error processing message", zap.Error(err), zap.Int("bytes", len(payload)))
		s.sendError(MsgInvalidFormat)
		return
	}

	if msg.IsRatesSubscription() && s.subscribe() {
		s.logger.Info("client subscribed to rates")
		return
	}

	s.logger.Debug("rejected control message", zap.String("event", msg.Event), zap.String("channel", msg.Channel))
	s.sendError(MsgInvalidChannel)
}

// subscribe moves Connected -> Subscribed and starts the broadcast loop.
// It reports false when the session is not in the Connected state.
func (s *Session) subscribe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()

	s.state = StateSubscribed
	s.subscribedAt = &now
	s.cancel = cancel
	s.tickerDone = make(chan struct{})

	go s.broadcastLoop(ctx, s.tickerDone)
	return true
}

// broadcastLoop pushes a snapshot every interval. A tick that fires while a
// snapshot is still being written is skipped, so a slow consumer never queues snapshots.
func (s *Session) broadcastLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.opts.PriceUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pushSnapshot(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("failed to send market data", zap.Error(err))
				s.fail(reasonWriteFailed)
				return
			}
			dropPendingTick(ticker.C)
		}
	}
}

// dropPendingTick discards the tick buffered by a time.Ticker, if any.
func dropPendingTick(c <-chan time.Time) {
	select {
	case <-c:
	default:
	}
}

// pushSnapshot sends one data frame per catalog asset, in catalog order.
func (s *Session) pushSnapshot(ctx context.Context) error {
	now := time.Now()
	for _, asset := range s.market.Catalog() {
		if ctx.Err() != nil {
			return nil
		}

		q, err := s.market.Quote(asset.Symbol, now)
		if errors.Is(err, market.ErrNotInitialized) {
			s.logger.Debug("market not initialized, skipping tick")
			return nil
		}
		if err != nil {
			return err
		}

		if err := s.writeJSON(NewDataFrame(q, s.opts.QuoteCurrency)); err != nil {
			return err
		}
		s.framesSent.Add(1)
	}
	return nil
}

func (s *Session) sendError(message string) {
	if err := s.writeJSON(NewErrorFrame(message)); err != nil {
		s.logger.Warn("failed to send error frame", zap.Error(err))
		s.fail(reasonWriteFailed)
		return
	}
	s.errorsSent.Add(1)
}

func (s *Session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.opts.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	return s.conn.WriteJSON(v)
}

// fail records reason and closes the transport so serve returns.
func (s *Session) fail(reason string) {
	s.mu.Lock()
	if s.closeReason == "" {
		s.closeReason = reason
	}
	s.mu.Unlock()
	s.conn.Close()
}

// shutdown sends a going-away close frame and closes the transport. The frame
// is abandoned at deadline when a stalled write holds the connection.
func (s *Session) shutdown(deadline time.Time) {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	s.conn.Close()
}

// close moves the session to Closed, cancels the broadcast loop and waits for it to exit.
func (s *Session) close(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		if s.closeReason == "" {
			s.closeReason = reason
		}
		cancel, done := s.cancel, s.tickerDone
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.conn.Close()
		if done != nil {
			<-done
		}
	})
}

// Record summarizes the session for the ledger.
func (s *Session) Record(disconnectedAt time.Time) ledger.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ledger.SessionRecord{
		ID:             s.id,
		RemoteAddr:     s.remote,
		ConnectedAt:    s.connectedAt,
		SubscribedAt:   s.subscribedAt,
		DisconnectedAt: disconnectedAt,
		FramesSent:     s.framesSent.Load(),
		ErrorsSent:     s.errorsSent.Load(),
		CloseReason:    s.closeReason,
	}
}
