package market

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

// scriptedRand replays a fixed sequence of samples, cycling when exhausted.
type scriptedRand struct {
	mu      sync.Mutex
	samples []float64
	i       int
}

func (r *scriptedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.samples[r.i%len(r.samples)]
	r.i++
	return v
}

func newTestState(t *testing.T, rnd Rand, baselines map[string]float64) *State {
	t.Helper()
	catalog := Catalog{
		{Symbol: "BTC", CoinGeckoID: "bitcoin", Volatility: 0.02},
		{Symbol: "DOGE", CoinGeckoID: "dogecoin", Volatility: 0.05},
		{Symbol: "XYZ"},
	}
	s := NewState(catalog, DefaultPolicy(), rnd)
	if err := s.Initialize(baselines); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s
}

var testBaselines = map[string]float64{"BTC": 100, "DOGE": 0.25, "XYZ": 42}

func TestGeneratePriceStaysInBand(t *testing.T) {
	s := newTestState(t, NewSeededRand(7), testBaselines)

	for _, sym := range []string{"BTC", "DOGE", "XYZ"} {
		base := testBaselines[sym]
		for i := 0; i < 10000; i++ {
			p, err := s.GeneratePrice(sym)
			if err != nil {
				t.Fatalf("GeneratePrice(%s): %v", sym, err)
			}
			if p <= 0 {
				t.Fatalf("%s: non-positive price %v", sym, p)
			}
			if p < 0.9*base || p > 1.1*base {
				t.Fatalf("%s: price %v escaped band around %v at step %d", sym, p, base, i)
			}
		}
	}
}

func TestGeneratePriceStep(t *testing.T) {
	// 0.98 - 0.48 = +0.5 trend; BTC volatility 0.02 => +1% per step
	s := newTestState(t, &scriptedRand{samples: []float64{0.98}}, testBaselines)

	p, err := s.GeneratePrice("BTC")
	if err != nil {
		t.Fatalf("GeneratePrice: %v", err)
	}
	if math.Abs(p-101) > 1e-9 {
		t.Errorf("first step = %v, want 101", p)
	}

	p, _ = s.GeneratePrice("BTC")
	if math.Abs(p-102.01) > 1e-9 {
		t.Errorf("second step = %v, want 102.01", p)
	}

	last, _ := s.LastPrice("BTC")
	if last != p {
		t.Errorf("LastPrice = %v, want %v", last, p)
	}
}

func TestGeneratePriceClampsToBand(t *testing.T) {
	up := newTestState(t, &scriptedRand{samples: []float64{0.999}}, testBaselines)
	down := newTestState(t, &scriptedRand{samples: []float64{0}}, testBaselines)

	var p float64
	for i := 0; i < 500; i++ {
		p, _ = up.GeneratePrice("XYZ")
	}
	if math.Abs(p-42*1.1) > 1e-9 {
		t.Errorf("upper clamp = %v, want %v", p, 42*1.1)
	}

	for i := 0; i < 500; i++ {
		p, _ = down.GeneratePrice("XYZ")
	}
	if math.Abs(p-42*0.9) > 1e-9 {
		t.Errorf("lower clamp = %v, want %v", p, 42*0.9)
	}
}

func TestMaxPriceChangeCapsDelta(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxPriceChange = 0.001
	policy.Band = 0.5

	s := NewState(Catalog{{Symbol: "BTC", Volatility: 1}}, policy, &scriptedRand{samples: []float64{0.999}})
	if err := s.Initialize(map[string]float64{"BTC": 100}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	p, _ := s.GeneratePrice("BTC")
	if math.Abs(p-100.1) > 1e-9 {
		t.Errorf("capped step = %v, want 100.1", p)
	}
}

func TestVolatilityDefaults(t *testing.T) {
	s := newTestState(t, nil, testBaselines)

	tests := map[string]float64{"BTC": 0.02, "DOGE": 0.05, "XYZ": 0.03}
	for sym, want := range tests {
		got, err := s.Volatility(sym)
		if err != nil {
			t.Fatalf("Volatility(%s): %v", sym, err)
		}
		if got != want {
			t.Errorf("Volatility(%s) = %v, want %v", sym, got, want)
		}
	}
}

func TestGeneratePriceErrors(t *testing.T) {
	s := NewState(Catalog{{Symbol: "BTC"}}, DefaultPolicy(), nil)

	if _, err := s.GeneratePrice("BTC"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("before init: got %v, want ErrNotInitialized", err)
	}

	if err := s.Initialize(map[string]float64{"BTC": 10}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := s.GeneratePrice("ETH"); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("unknown symbol: got %v, want ErrUnknownSymbol", err)
	}
	if err := s.Initialize(map[string]float64{"BTC": 10}); err == nil {
		t.Error("second Initialize should fail")
	}
}

func TestInitializeRejectsBadBaselines(t *testing.T) {
	s := NewState(Catalog{{Symbol: "BTC"}, {Symbol: "ETH"}}, DefaultPolicy(), nil)

	if err := s.Initialize(map[string]float64{"BTC": 10}); err == nil {
		t.Error("expected error for missing baseline")
	}
	if err := s.Initialize(map[string]float64{"BTC": 10, "ETH": 0}); err == nil {
		t.Error("expected error for zero baseline")
	}
	if s.Initialized() {
		t.Error("state should remain uninitialized after rejected baselines")
	}
}

// go test -race -v --run TestConcurrentWalkersShareState
func TestConcurrentWalkersShareState(t *testing.T) {
	s := newTestState(t, NewSeededRand(1), testBaselines)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				p, err := s.GeneratePrice("BTC")
				if err != nil || p < 90 || p > 110 {
					t.Errorf("price %v err %v", p, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	last, _ := s.LastPrice("BTC")
	if last < 90 || last > 110 {
		t.Errorf("last price %v outside band", last)
	}
}

func TestQuoteDerivation(t *testing.T) {
	s := newTestState(t, &scriptedRand{samples: []float64{0.1, 0.9, 0.48}}, testBaselines)
	now := time.Unix(1700000000, 500)

	for i := 0; i < 20; i++ {
		q, err := s.Quote("BTC", now)
		if err != nil {
			t.Fatalf("Quote: %v", err)
		}
		if q.Timestamp != 1700000000 {
			t.Errorf("timestamp = %d", q.Timestamp)
		}
		if math.Abs(q.Bid-q.Spot*0.995) > 1e-9 || math.Abs(q.Ask-q.Spot*1.005) > 1e-9 {
			t.Errorf("bad spread: %+v", q)
		}
		if !(q.Bid < q.Spot && q.Spot < q.Ask) {
			t.Errorf("expected bid < spot < ask: %+v", q)
		}
		want := (q.Spot - 100) / 100 * 100
		if math.Abs(q.Change-want) > 1e-9 {
			t.Errorf("change = %v, want %v", q.Change, want)
		}
		if q.Spot < 100 && q.Change >= 0 {
			t.Errorf("change should be negative below baseline: %+v", q)
		}
	}
}
