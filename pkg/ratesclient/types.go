package ratesclient

// Frame is any message pushed by the feed. Data is set for "data" events,
// Message for "error" events.
type Frame struct {
	Channel string `json:"channel,omitempty"`
	Event   string `json:"event"`
	Message string `json:"message,omitempty"`
	Data    *Rate  `json:"data,omitempty"`
}

// Rate is one quote for a trading pair, e.g. "BTC_CAD".
type Rate struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Spot      float64 `json:"spot"`
	Change    float64 `json:"change"`
}

type subscribeRequest struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
}
