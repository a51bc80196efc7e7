package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trade-executor-go/order"
	"trade-executor-go/signal"
)

// signalRow signals 表：上游模型写入，这里只读。
type signalRow struct {
	ID     uint      `gorm:"primaryKey"`
	Ts     time.Time `gorm:"index"`
	Ticker string    `gorm:"size:16;index"`
	Prob   float64
	Signal string  `gorm:"size:8"`
	ATRPct float64 `gorm:"column:atr_pct"`
	Price  float64
	H      string `gorm:"size:8"`
	Regime string `gorm:"size:16"`
}

func (signalRow) TableName() string { return "signals" }

// orderRow orders 表。client_order_id 上的唯一索引是幂等的最后防线。
type orderRow struct {
	ID            uint   `gorm:"primaryKey"`
	ClientOrderID string `gorm:"size:64;uniqueIndex"`
	Ts            time.Time
	Ticker        string `gorm:"size:16;index"`
	Side          string `gorm:"size:4"`
	Qty           int64
	Type          string `gorm:"size:8"`
	TimeInForce   string `gorm:"size:8"`
	Status        string `gorm:"size:16;index"`
	SignalProb    float64
	SignalHorizon string `gorm:"size:8"`
	Regime        string `gorm:"size:16"`
}

func (orderRow) TableName() string { return "orders" }

type fillRow struct {
	ID            uint   `gorm:"primaryKey"`
	Ticker        string `gorm:"size:16;index"`
	Side          string `gorm:"size:4"`
	Qty           float64
	Price         *float64
	BrokerOrderID string `gorm:"size:64"`
	ClientOrderID string `gorm:"size:64;index"`
	Raw           string `gorm:"type:text"`
}

func (fillRow) TableName() string { return "fills" }

type positionRow struct {
	Ticker   string `gorm:"size:16;primaryKey"`
	Qty      float64
	AvgPrice float64
}

func (positionRow) TableName() string { return "positions" }

type metricRow struct {
	ID    uint   `gorm:"primaryKey"`
	Name  string `gorm:"size:64;index"`
	Ts    time.Time
	Value float64
}

func (metricRow) TableName() string { return "metrics" }

type equityRow struct {
	D  string `gorm:"size:10;primaryKey"`
	Eq float64
}

func (equityRow) TableName() string { return "equity" }

// cycleRow execution_cycles 表。唯一约束实现周期的事务性占用。
type cycleRow struct {
	CycleID   string `gorm:"size:32;uniqueIndex"`
	ClaimedAt time.Time
}

func (cycleRow) TableName() string { return "execution_cycles" }

// Postgres 基于 gorm 的存储实现。
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres 建连并迁移表结构。
func OpenPostgres(dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&signalRow{}, &orderRow{}, &fillRow{}, &positionRow{}, &metricRow{}, &equityRow{}, &cycleRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{db: db}, nil
}

// LatestSignals 拉最近 limit 行，按 ticker 保留最新一条。
func (p *Postgres) LatestSignals(ctx context.Context, limit int) ([]signal.Signal, error) {
	if limit <= 0 {
		limit = 300
	}
	var rows []signalRow
	if err := p.db.WithContext(ctx).
		Order("ts DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	out := make([]signal.Signal, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	// rows 已经按 ts 倒序，首次出现的就是该 ticker 的最新一条
	for _, r := range rows {
		if _, ok := seen[r.Ticker]; ok {
			continue
		}
		seen[r.Ticker] = struct{}{}
		out = append(out, signal.Signal{
			Ticker:      r.Ticker,
			Probability: r.Prob,
			Direction:   signal.Direction(r.Signal),
			ATRPct:      r.ATRPct,
			Price:       r.Price,
			Horizon:     r.H,
			Regime:      r.Regime,
			Timestamp:   r.Ts,
		})
	}
	return out, nil
}

func (p *Postgres) Insert(ctx context.Context, o order.Order) error {
	row := orderRow{
		ClientOrderID: o.ClientOrderID,
		Ts:            o.CreatedAt,
		Ticker:        o.Ticker,
		Side:          string(o.Side),
		Qty:           o.Quantity,
		Type:          "market",
		TimeInForce:   "day",
		Status:        string(o.Status),
		SignalProb:    o.Probability,
		SignalHorizon: o.Horizon,
		Regime:        o.Regime,
	}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert order %s: %w", o.ClientOrderID, err)
	}
	return nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, cid string, st order.Status) error {
	res := p.db.WithContext(ctx).Model(&orderRow{}).
		Where("client_order_id = ?", cid).
		Update("status", string(st))
	if res.Error != nil {
		return fmt.Errorf("update order %s: %w", cid, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update order %s: not found", cid)
	}
	return nil
}

func (p *Postgres) ExistingClientOrderIDs(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	if err := p.db.WithContext(ctx).Model(&orderRow{}).
		Pluck("client_order_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("query client order ids: %w", err)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// ClaimCycle 借助唯一索引抢占周期：冲突时不报错、零行写入。
func (p *Postgres) ClaimCycle(ctx context.Context, cycleID string) (bool, error) {
	row := cycleRow{CycleID: cycleID, ClaimedAt: time.Now().UTC()}
	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("claim cycle %s: %w", cycleID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// pgFills FillStore 实现。
type pgFills struct{ db *gorm.DB }

func (f pgFills) Insert(ctx context.Context, fill order.Fill) error {
	row := fillRow{
		Ticker:        fill.Ticker,
		Side:          string(fill.Side),
		Qty:           fill.Quantity,
		Price:         fill.Price,
		BrokerOrderID: fill.BrokerOrderID,
		ClientOrderID: fill.ClientOrderID,
		Raw:           fill.Raw,
	}
	if err := f.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert fill %s: %w", fill.ClientOrderID, err)
	}
	return nil
}

func (f pgFills) UpdatePrice(ctx context.Context, cid string, price float64) error {
	res := f.db.WithContext(ctx).Model(&fillRow{}).
		Where("client_order_id = ?", cid).
		Update("price", price)
	if res.Error != nil {
		return fmt.Errorf("update fill price %s: %w", cid, res.Error)
	}
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, ticker string, qty, avgPrice float64) error {
	row := positionRow{Ticker: ticker, Qty: qty, AvgPrice: avgPrice}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ticker"}},
			DoUpdates: clause.AssignmentColumns([]string{"qty", "avg_price"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", ticker, err)
	}
	return nil
}

type pgMetrics struct{ db *gorm.DB }

func (s pgMetrics) Insert(ctx context.Context, name string, ts time.Time, value float64) error {
	row := metricRow{Name: name, Ts: ts, Value: value}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert metric %s: %w", name, err)
	}
	return nil
}

type pgEquity struct{ db *gorm.DB }

func (s pgEquity) Upsert(ctx context.Context, day string, equity float64) error {
	row := equityRow{D: day, Eq: equity}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "d"}},
			DoUpdates: clause.AssignmentColumns([]string{"eq"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert equity %s: %w", day, err)
	}
	return nil
}

// AsStores 返回接口捆绑。
func (p *Postgres) AsStores() Stores {
	return Stores{
		Signals:   p,
		Orders:    p,
		Fills:     pgFills{p.db},
		Positions: p,
		Metrics:   pgMetrics{p.db},
		Equity:    pgEquity{p.db},
	}
}
