package ratesclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marketfeed/internal/ledger"
	"marketfeed/internal/market"
	"marketfeed/internal/stream"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func wsURL(hs *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(hs.URL, "http") + path
}

type collected struct {
	mu     sync.Mutex
	frames []Frame
}

func (c *collected) add(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
}

func (c *collected) snapshot() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestClientReceivesRates(t *testing.T) {
	catalog := market.Catalog{{Symbol: "BTC", CoinGeckoID: "bitcoin"}}
	state := market.NewState(catalog, market.DefaultPolicy(), market.NewSeededRand(7))
	if err := state.Initialize(map[string]float64{"BTC": 50000}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	opts := stream.DefaultOptions()
	opts.PriceUpdateInterval = 20 * time.Millisecond
	srv := stream.NewServer(state, ledger.NewMemoryRecorder(), opts, zap.NewNop())
	hs := httptest.NewServer(srv)
	defer hs.Close()
	defer srv.Shutdown(context.Background())

	got := &collected{}
	c := NewClient(wsURL(hs, stream.Path), 50*time.Millisecond, zap.NewNop())
	c.SetFrameHandler(got.add)

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Listen(ctx) }()

	waitFor(t, "data frames", func() bool { return len(got.snapshot()) >= 3 })
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Listen returned %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}

	for _, f := range got.snapshot() {
		if f.Event != "data" || f.Channel != "rates" || f.Data == nil {
			t.Fatalf("unexpected frame %+v", f)
		}
		if f.Data.Symbol != "BTC_CAD" {
			t.Fatalf("symbol = %q, want BTC_CAD", f.Data.Symbol)
		}
		if !(f.Data.Bid < f.Data.Spot && f.Data.Spot < f.Data.Ask) {
			t.Fatalf("bid/spot/ask out of order: %+v", f.Data)
		}
	}
}

// flakyFeed drops the first connection after one frame and serves the rest normally.
func flakyFeed(t *testing.T, subscribes *atomic.Int32) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil || req.Event != "subscribe" || req.Channel != "rates" {
			return
		}
		n := subscribes.Add(1)

		frame := Frame{Channel: "rates", Event: "data", Data: &Rate{Symbol: "BTC_CAD", Bid: 1, Ask: 3, Spot: 2}}
		if n == 1 {
			conn.WriteJSON(frame)
			return
		}
		for {
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}))
}

func TestClientResubscribesAfterReconnect(t *testing.T) {
	var subscribes atomic.Int32
	hs := flakyFeed(t, &subscribes)
	defer hs.Close()

	got := &collected{}
	c := NewClient(wsURL(hs, "/"), 20*time.Millisecond, zap.NewNop())
	c.SetFrameHandler(got.add)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	go c.Listen(ctx)

	waitFor(t, "second subscription", func() bool { return subscribes.Load() >= 2 })
	waitFor(t, "frames after reconnect", func() bool { return len(got.snapshot()) >= 3 })
}

func TestListenBeforeConnect(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/markets/ws", time.Millisecond, zap.NewNop())
	if err := c.Listen(context.Background()); err == nil {
		t.Fatal("expected error when listening without a connection")
	}
}

func TestConnectFailure(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/markets/ws", time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatal("expected dial error")
	}
}
