package market

import "time"

// Spread factors applied to the spot price.
const (
	BidFactor = 0.995
	AskFactor = 1.005
)

// Quote is one simulated observation of an asset.
type Quote struct {
	Symbol    string
	Timestamp int64 // unix seconds
	Bid       float64
	Ask       float64
	Spot      float64
	Change    float64 // percent vs baseline, signed
}

// Quote advances symbol by one step and derives the spread and change from the new spot.
func (s *State) Quote(symbol string, now time.Time) (Quote, error) {
	st, err := s.asset(symbol)
	if err != nil {
		return Quote{}, err
	}

	st.mu.Lock()
	spot := s.step(st)
	baseline := st.baseline
	st.mu.Unlock()

	return Quote{
		Symbol:    symbol,
		Timestamp: now.Unix(),
		Bid:       spot * BidFactor,
		Ask:       spot * AskFactor,
		Spot:      spot,
		Change:    (spot - baseline) / baseline * 100,
	}, nil
}
