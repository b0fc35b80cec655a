package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPProvider reads {"rates": {...}} from <baseURL>/<base>.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type ratesResponse struct {
	Rates map[string]json.Number `json:"rates"`
}

func NewHTTPProvider(baseURL, apiKey string, httpClient *http.Client) *HTTPProvider {
	client := httpClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return &HTTPProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: client,
	}
}

func (p *HTTPProvider) Fetch(ctx context.Context, base string) (Rates, error) {
	if p == nil || p.baseURL == "" {
		return nil, errors.New("exchange rate provider is not configured")
	}

	endpoint, err := url.Parse(p.baseURL + "/" + url.PathEscape(Normalize(base)))
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(endpoint.Scheme, "https") && !strings.EqualFold(endpoint.Scheme, "http") {
		return nil, errors.New("invalid exchange rate endpoint")
	}
	if p.apiKey != "" {
		query := endpoint.Query()
		query.Set("apikey", p.apiKey)
		endpoint.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("exchange rate api returned status %d", resp.StatusCode)
	}

	var payload ratesResponse
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, err
	}

	rates := make(Rates, len(Supported))
	for _, code := range Supported {
		raw, ok := payload.Rates[code]
		if !ok {
			continue
		}
		value, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, fmt.Errorf("parse %s rate: %w", code, err)
		}
		rates[code] = value
	}
	return rates, nil
}
