package market

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrNotInitialized = errors.New("market state not initialized")
)

// Policy holds the tunable constants of the random walk.
type Policy struct {
	TrendBias         float64 // subtracted from U[0,1); below 0.5 gives an upward drift
	Band              float64 // prices stay within baseline*(1±Band)
	DefaultVolatility float64 // used for assets without an override
	MaxPriceChange    float64 // cap on |delta| as a fraction of the last price
}

func DefaultPolicy() Policy {
	return Policy{
		TrendBias:         0.48,
		Band:              0.10,
		DefaultVolatility: 0.03,
		MaxPriceChange:    0.5,
	}
}

type assetState struct {
	mu         sync.Mutex
	baseline   float64
	last       float64
	volatility float64
}

// State is the shared simulated market. Every session advances the same
// per-asset walk; writes to one asset are serialized by that asset's lock.
type State struct {
	policy  Policy
	rand    Rand
	catalog Catalog

	globalMu    sync.RWMutex
	assets      map[string]*assetState
	initialized bool
}

// NewState builds an uninitialized market for catalog. A nil rnd uses process entropy.
func NewState(catalog Catalog, policy Policy, rnd Rand) *State {
	if rnd == nil {
		rnd = DefaultRand()
	}

	assets := make(map[string]*assetState, len(catalog))
	for _, a := range catalog {
		vol := a.Volatility
		if vol <= 0 {
			vol = policy.DefaultVolatility
		}
		assets[a.Symbol] = &assetState{volatility: vol}
	}

	return &State{
		policy:  policy,
		rand:    rnd,
		catalog: catalog,
		assets:  assets,
	}
}

// Initialize fixes the baseline of every asset and resets its last price to it.
// It may only succeed once.
func (s *State) Initialize(baselines map[string]float64) error {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	if s.initialized {
		return fmt.Errorf("market state already initialized")
	}

	for _, a := range s.catalog {
		price, ok := baselines[a.Symbol]
		if !ok {
			return fmt.Errorf("missing baseline for %s", a.Symbol)
		}
		if price <= 0 {
			return fmt.Errorf("baseline for %s must be positive, got %v", a.Symbol, price)
		}
	}

	for _, a := range s.catalog {
		st := s.assets[a.Symbol]
		st.mu.Lock()
		st.baseline = baselines[a.Symbol]
		st.last = st.baseline
		st.mu.Unlock()
	}
	s.initialized = true
	return nil
}

func (s *State) Initialized() bool {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	return s.initialized
}

// Catalog returns the tracked assets in broadcast order.
func (s *State) Catalog() Catalog {
	return s.catalog
}

func (s *State) asset(symbol string) (*assetState, error) {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	st, ok := s.assets[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return st, nil
}

// GeneratePrice advances the walk for symbol by one step and returns the new price.
func (s *State) GeneratePrice(symbol string) (float64, error) {
	st, err := s.asset(symbol)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	return s.step(st), nil
}

// step must be called with st.mu held.
func (s *State) step(st *assetState) float64 {
	trend := s.rand.Float64() - s.policy.TrendBias
	delta := st.last * st.volatility * trend

	limit := st.last * s.policy.MaxPriceChange
	delta = clamp(delta, -limit, limit)

	price := clamp(st.last+delta,
		st.baseline*(1-s.policy.Band),
		st.baseline*(1+s.policy.Band))

	st.last = price
	return price
}

// Baseline returns the fixed reference price of symbol.
func (s *State) Baseline(symbol string) (float64, error) {
	st, err := s.asset(symbol)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.baseline, nil
}

// LastPrice returns the current spot price of symbol without advancing the walk.
func (s *State) LastPrice(symbol string) (float64, error) {
	st, err := s.asset(symbol)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.last, nil
}

// Volatility returns the per-step volatility used for symbol.
func (s *State) Volatility(symbol string) (float64, error) {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	st, ok := s.assets[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return st.volatility, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
