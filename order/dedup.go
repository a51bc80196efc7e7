package order

import (
	"context"
	"fmt"
)

// IDSource 提供历史上所有已提交过的 client_order_id。
type IDSource interface {
	ExistingClientOrderIDs(ctx context.Context) (map[string]struct{}, error)
}

// Deduplicator 过滤掉幂等键已存在的候选。
// 崩溃重跑同一周期时，已提交过的订单在这里被拦下，
// 券商不会收到第二次相同的 client_order_id。
type Deduplicator struct {
	src IDSource
}

func NewDeduplicator(src IDSource) *Deduplicator {
	return &Deduplicator{src: src}
}

// Filter 返回幂等键尚未出现过的候选，保持输入顺序。
func (d *Deduplicator) Filter(ctx context.Context, cands []Candidate) ([]Candidate, int, error) {
	existing, err := d.src.ExistingClientOrderIDs(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load existing client order ids: %w", err)
	}
	out := make([]Candidate, 0, len(cands))
	skipped := 0
	for _, c := range cands {
		if _, ok := existing[c.ClientOrderID]; ok {
			skipped++
			continue
		}
		out = append(out, c)
	}
	return out, skipped, nil
}
