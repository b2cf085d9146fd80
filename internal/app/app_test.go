package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"marketfeed/config"
	"marketfeed/internal/ledger"
	"marketfeed/internal/stream"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Env: "dev",
		Server: config.ServerConfig{
			Port:                "0",
			PriceUpdateInterval: 20 * time.Millisecond,
			MaxConnections:      4,
			MaxMessageSize:      1024,
			WriteTimeout:        time.Second,
			ReconnectInterval:   time.Second,
		},
		Market: config.MarketConfig{
			TrendBias:         0.48,
			Band:              0.10,
			DefaultVolatility: 0.03,
			MaxPriceChange:    0.5,
			FixedBaseline:     100,
		},
		Oracle: config.OracleConfig{
			Enabled:    false,
			Timeout:    time.Second,
			VsCurrency: "cad",
		},
		Ledger: config.LedgerConfig{Retention: 24 * time.Hour},
	}
}

func TestBuildSeedsEveryAsset(t *testing.T) {
	feed, err := Build(context.Background(), testConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !feed.Market.Initialized() {
		t.Fatal("market not initialized")
	}
	for _, a := range feed.Market.Catalog() {
		b, err := feed.Market.Baseline(a.Symbol)
		if err != nil || b != 100 {
			t.Fatalf("baseline %s = %v, %v; want 100", a.Symbol, b, err)
		}
	}
	if _, ok := feed.Recorder.(*ledger.MemoryRecorder); !ok {
		t.Fatalf("recorder = %T, want memory recorder", feed.Recorder)
	}
}

func TestBuildUsesOracle(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bitcoin":{"cad":91000.5}}`))
	}))
	defer api.Close()

	dir := t.TempDir()
	catalogFile := filepath.Join(dir, "catalog.yaml")
	body := "assets:\n  - symbol: BTC\n    coingecko_id: bitcoin\n  - symbol: NOPE\n    coingecko_id: not-a-coin\n"
	if err := os.WriteFile(catalogFile, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Market.FixedBaseline = 0
	cfg.Market.CatalogFile = catalogFile
	cfg.Oracle.Enabled = true
	cfg.Oracle.BaseURL = api.URL

	feed, err := Build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got, _ := feed.Market.Baseline("BTC"); got != 91000.5 {
		t.Fatalf("BTC baseline = %v, want 91000.5", got)
	}
	if got, _ := feed.Market.Baseline("NOPE"); got <= 0 || got >= 100 {
		t.Fatalf("fallback baseline = %v, want (0,100)", got)
	}
}

func TestBuildBadCatalog(t *testing.T) {
	cfg := testConfig()
	cfg.Market.CatalogFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := Build(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for missing catalog file")
	}
}

func TestServeAndShutdown(t *testing.T) {
	feed, err := Build(context.Background(), testConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- feed.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + stream.Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribe","channel":"rates"}`)); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame stream.DataFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Event != stream.EventData || !strings.HasSuffix(frame.Data.Symbol, "_CAD") {
		t.Fatalf("unexpected frame %s", msg)
	}

	cancel()

	// Drain queued data frames until the going-away close arrives.
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err = conn.ReadMessage(); err != nil {
			break
		}
	}
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("close error = %v, want 1001", err)
	}

	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	records := feed.Recorder.(*ledger.MemoryRecorder).Records()
	if len(records) != 1 || records[0].CloseReason != "server shutdown" {
		t.Fatalf("records = %+v, want one server shutdown record", records)
	}
}
