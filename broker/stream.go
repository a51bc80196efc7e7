package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// TradeUpdate 订单回报事件。fill / partial_fill 携带成交价。
type TradeUpdate struct {
	Event         string
	ClientOrderID string
	Symbol        string
	Side          string
	FilledQty     float64
	FillPrice     float64
	BrokerOrderID string
	Raw           json.RawMessage
}

// StreamConfig 订单回报流配置。
type StreamConfig struct {
	URL       string // 例如 wss://paper-api.alpaca.markets/stream
	APIKey    string
	APISecret string
	// ReconnectWait 断线重连的起始等待，指数退避到 MaxReconnectWait。
	ReconnectWait    time.Duration
	MaxReconnectWait time.Duration
}

// Stream 通过 websocket 订阅券商订单回报，把 fill 事件交给回调。
// 只在常驻模式下使用；单次执行路径不依赖它。
type Stream struct {
	cfg      StreamConfig
	Dialer   *websocket.Dialer
	OnUpdate func(TradeUpdate)
	OnError  func(error)
}

func NewStream(cfg StreamConfig, onUpdate func(TradeUpdate)) (*Stream, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("stream url is required")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = time.Second
	}
	if cfg.MaxReconnectWait <= 0 {
		cfg.MaxReconnectWait = 30 * time.Second
	}
	return &Stream{
		cfg:      cfg,
		Dialer:   websocket.DefaultDialer,
		OnUpdate: onUpdate,
	}, nil
}

// Run 维持连接直到 ctx 取消。单次连接失败只触发退避重连，不向上冒泡。
func (s *Stream) Run(ctx context.Context) error {
	wait := s.cfg.ReconnectWait
	for {
		if err := s.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.OnError != nil {
				s.OnError(err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > s.cfg.MaxReconnectWait {
			wait = s.cfg.MaxReconnectWait
		}
	}
}

func (s *Stream) runOnce(ctx context.Context) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	auth := map[string]interface{}{
		"action": "auth",
		"key":    s.cfg.APIKey,
		"secret": s.cfg.APISecret,
	}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("auth stream: %w", err)
	}
	listen := map[string]interface{}{
		"action": "listen",
		"data":   map[string]interface{}{"streams": []string{"trade_updates"}},
	}
	if err := conn.WriteJSON(listen); err != nil {
		return fmt.Errorf("subscribe trade_updates: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(70 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		update, err := ParseTradeUpdate(msg)
		if err != nil {
			if s.OnError != nil {
				s.OnError(err)
			}
			continue
		}
		if update != nil && s.OnUpdate != nil {
			s.OnUpdate(*update)
		}
	}
}

type streamEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		Event string `json:"event"`
		Price string `json:"price"`
		Qty   string `json:"qty"`
		Order struct {
			ID            string `json:"id"`
			ClientOrderID string `json:"client_order_id"`
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			FilledQty     string `json:"filled_qty"`
			FilledAvgPx   string `json:"filled_avg_price"`
		} `json:"order"`
	} `json:"data"`
}

// ParseTradeUpdate 解析一条流消息。非 trade_updates 消息返回 (nil, nil)。
func ParseTradeUpdate(msg []byte) (*TradeUpdate, error) {
	var env streamEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, fmt.Errorf("parse stream message: %w", err)
	}
	if env.Stream != "trade_updates" {
		return nil, nil
	}
	update := &TradeUpdate{
		Event:         env.Data.Event,
		ClientOrderID: env.Data.Order.ClientOrderID,
		Symbol:        env.Data.Order.Symbol,
		Side:          env.Data.Order.Side,
		BrokerOrderID: env.Data.Order.ID,
		Raw:           json.RawMessage(msg),
	}
	if env.Data.Qty != "" {
		update.FilledQty, _ = strconv.ParseFloat(env.Data.Qty, 64)
	} else if env.Data.Order.FilledQty != "" {
		update.FilledQty, _ = strconv.ParseFloat(env.Data.Order.FilledQty, 64)
	}
	if env.Data.Price != "" {
		update.FillPrice, _ = strconv.ParseFloat(env.Data.Price, 64)
	} else if env.Data.Order.FilledAvgPx != "" {
		update.FillPrice, _ = strconv.ParseFloat(env.Data.Order.FilledAvgPx, 64)
	}
	return update, nil
}
