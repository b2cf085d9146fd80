package coingecko

import "github.com/shopspring/decimal"

// SimplePriceResponse is the body of /api/v3/simple/price:
//
//	{"bitcoin": {"cad": 91234.5}, "ethereum": {"cad": 3012.77}}
//
// Prices are kept as decimals until the caller needs a float.
type SimplePriceResponse map[string]map[string]decimal.Decimal

// ErrorResponse is returned by the API on rate limiting and bad requests.
type ErrorResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Error string `json:"error"`
}

func (e ErrorResponse) message() string {
	if e.Status.ErrorMessage != "" {
		return e.Status.ErrorMessage
	}
	return e.Error
}
