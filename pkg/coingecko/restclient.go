package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const demoKeyHeader = "x-cg-demo-api-key"

type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithAPIKey sets the demo API key sent with every request.
func (c *RESTClient) WithAPIKey(key string) *RESTClient {
	c.apiKey = key
	return c
}

// SimplePrice fetches the current price of every id in vsCurrency with one request.
// Ids missing from the response, or without a vsCurrency entry, are absent from the result.
func (c *RESTClient) SimplePrice(ctx context.Context, ids []string, vsCurrency string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", vsCurrency)
	endpoint := c.baseURL + "/api/v3/simple/price?" + q.Encode()

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(demoKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.message() != "" {
			return nil, fmt.Errorf("coingecko error (%d): %s", resp.StatusCode, apiErr.message())
		}
		return nil, fmt.Errorf("coingecko error (%d): %s", resp.StatusCode, body)
	}

	var raw SimplePriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	vs := strings.ToLower(vsCurrency)
	prices := make(map[string]float64, len(raw))
	for id, quotes := range raw {
		price, ok := quotes[vs]
		if !ok {
			continue
		}
		prices[id] = price.InexactFloat64()
	}
	return prices, nil
}
