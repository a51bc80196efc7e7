package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// AlpacaConfig Alpaca REST 客户端配置。
type AlpacaConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
	Limiter   RateLimiter
}

// AlpacaClient 基于 Alpaca v2 REST API 的 Client 实现。
// HTTPClient 可注入 httptest，不发起真实网络调用即可测试。
type AlpacaClient struct {
	cfg        AlpacaConfig
	HTTPClient *http.Client
}

// NewAlpacaClient 校验凭证并构造客户端。凭证缺失视为不可恢复的启动失败。
func NewAlpacaClient(cfg AlpacaConfig) (*AlpacaClient, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://paper-api.alpaca.markets"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Limiter == nil {
		cfg.Limiter = nopLimiter{}
	}
	return &AlpacaClient{
		cfg:        cfg,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type clockResp struct {
	IsOpen bool `json:"is_open"`
}

// IsMarketOpen 查询 /v2/clock。任何失败都交给调用方按开市处理。
func (c *AlpacaClient) IsMarketOpen(ctx context.Context) (bool, error) {
	var cr clockResp
	if err := c.getJSON(ctx, "/v2/clock", &cr); err != nil {
		return false, err
	}
	return cr.IsOpen, nil
}

type positionResp struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
}

// ListPositions 查询 /v2/positions 并换算为数值。
func (c *AlpacaClient) ListPositions(ctx context.Context) (map[string]Position, error) {
	var rows []positionResp
	if err := c.getJSON(ctx, "/v2/positions", &rows); err != nil {
		return nil, &PositionRetrievalError{Err: err}
	}
	out := make(map[string]Position, len(rows))
	for _, r := range rows {
		qty, err := strconv.ParseFloat(r.Qty, 64)
		if err != nil {
			return nil, &PositionRetrievalError{Err: fmt.Errorf("parse qty %q for %s: %w", r.Qty, r.Symbol, err)}
		}
		avg, err := strconv.ParseFloat(r.AvgEntryPrice, 64)
		if err != nil {
			return nil, &PositionRetrievalError{Err: fmt.Errorf("parse avg price %q for %s: %w", r.AvgEntryPrice, r.Symbol, err)}
		}
		out[r.Symbol] = Position{Ticker: r.Symbol, Quantity: qty, AvgEntryPrice: avg}
	}
	return out, nil
}

type accountResp struct {
	Equity   string `json:"equity"`
	Currency string `json:"currency"`
}

// GetAccount 查询 /v2/account。
func (c *AlpacaClient) GetAccount(ctx context.Context) (Account, error) {
	var ar accountResp
	if err := c.getJSON(ctx, "/v2/account", &ar); err != nil {
		return Account{}, err
	}
	eq, err := strconv.ParseFloat(ar.Equity, 64)
	if err != nil {
		return Account{}, fmt.Errorf("parse equity %q: %w", ar.Equity, err)
	}
	return Account{Equity: eq, Currency: ar.Currency}, nil
}

type orderReq struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id"`
}

type orderResp struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Qty           string `json:"qty"`
	Status        string `json:"status"`
}

// SubmitMarketOrder 提交市价单到 /v2/orders，时效固定为 day。
func (c *AlpacaClient) SubmitMarketOrder(ctx context.Context, symbol, side string, qty int64, clientOrderID string) (Ack, error) {
	if qty <= 0 {
		return Ack{}, &SubmissionError{Symbol: symbol, ClientOrderID: clientOrderID, Err: fmt.Errorf("quantity %d must be > 0", qty)}
	}
	body, err := json.Marshal(orderReq{
		Symbol:        symbol,
		Qty:           strconv.FormatInt(qty, 10),
		Side:          side,
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		return Ack{}, &SubmissionError{Symbol: symbol, ClientOrderID: clientOrderID, Err: err}
	}

	raw, status, err := c.do(ctx, http.MethodPost, "/v2/orders", body)
	if err != nil {
		return Ack{}, &SubmissionError{Symbol: symbol, ClientOrderID: clientOrderID, Err: err}
	}
	if status >= 300 {
		return Ack{}, &SubmissionError{Symbol: symbol, ClientOrderID: clientOrderID, StatusCode: status, Body: string(raw)}
	}

	var or orderResp
	if err := json.Unmarshal(raw, &or); err != nil {
		return Ack{}, &SubmissionError{Symbol: symbol, ClientOrderID: clientOrderID, Err: err}
	}
	ackQty, _ := strconv.ParseFloat(or.Qty, 64)
	return Ack{
		BrokerOrderID: or.ID,
		ClientOrderID: or.ClientOrderID,
		Symbol:        or.Symbol,
		Side:          or.Side,
		Qty:           ackQty,
		Status:        or.Status,
		Raw:           json.RawMessage(raw),
	}, nil
}

func (c *AlpacaClient) getJSON(ctx context.Context, path string, out interface{}) error {
	raw, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("%s status %d: %s", path, status, raw)
	}
	return json.Unmarshal(raw, out)
}

func (c *AlpacaClient) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	if err := c.cfg.Limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("APCA-API-KEY-ID", c.cfg.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.cfg.APISecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}
