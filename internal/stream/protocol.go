package stream

import (
	"encoding/json"
	"errors"
	"strings"

	"marketfeed/internal/market"
)

const (
	Path = "/markets/ws"

	ChannelRates = "rates"

	EventSubscribe = "subscribe"
	EventData      = "data"
	EventError     = "error"
)

// Error frame messages.
const (
	MsgInvalidFormat  = "Invalid message format"
	MsgInvalidChannel = "Invalid channel or already subscribed"
)

const CloseReasonMaxConnections = "Maximum connections reached"

var errInvalidFormat = errors.New(MsgInvalidFormat)

// ControlMessage is a client request, e.g. {"event":"subscribe","channel":"rates"}.
type ControlMessage struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
}

// RateData is the payload of one data frame.
type RateData struct {
	Symbol    string  `json:"symbol"`    // e.g. "BTC_CAD"
	Timestamp int64   `json:"timestamp"` // unix seconds
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Spot      float64 `json:"spot"`
	Change    float64 `json:"change"` // percent vs baseline
}

type DataFrame struct {
	Channel string   `json:"channel"`
	Event   string   `json:"event"`
	Data    RateData `json:"data"`
}

type ErrorFrame struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// ParseControlMessage decodes a client frame. Both fields are required.
func ParseControlMessage(payload []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ControlMessage{}, errInvalidFormat
	}
	if msg.Event == "" || msg.Channel == "" {
		return ControlMessage{}, errInvalidFormat
	}
	return msg, nil
}

// IsRatesSubscription reports whether msg asks for the only supported feed.
func (m ControlMessage) IsRatesSubscription() bool {
	return m.Event == EventSubscribe && m.Channel == ChannelRates
}

// PairSymbol formats the wire symbol of an asset, e.g. ("BTC", "cad") -> "BTC_CAD".
func PairSymbol(asset, quoteCurrency string) string {
	return asset + "_" + strings.ToUpper(quoteCurrency)
}

func NewDataFrame(q market.Quote, quoteCurrency string) DataFrame {
	return DataFrame{
		Channel: ChannelRates,
		Event:   EventData,
		Data: RateData{
			Symbol:    PairSymbol(q.Symbol, quoteCurrency),
			Timestamp: q.Timestamp,
			Bid:       q.Bid,
			Ask:       q.Ask,
			Spot:      q.Spot,
			Change:    q.Change,
		},
	}
}

func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Event: EventError, Message: message}
}
