package order

import (
	"context"
	"errors"
	"testing"
)

type fakeIDSource struct {
	ids map[string]struct{}
	err error
}

func (f *fakeIDSource) ExistingClientOrderIDs(context.Context) (map[string]struct{}, error) {
	return f.ids, f.err
}

func TestDeduplicatorFilters(t *testing.T) {
	src := &fakeIDSource{ids: map[string]struct{}{"AAPL-c1": {}}}
	d := NewDeduplicator(src)

	cands := []Candidate{
		{Ticker: "AAPL", ClientOrderID: "AAPL-c1"},
		{Ticker: "MSFT", ClientOrderID: "MSFT-c1"},
	}
	out, skipped, err := d.Filter(context.Background(), cands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Ticker != "MSFT" {
		t.Fatalf("unexpected survivors: %+v", out)
	}
	if skipped != 1 {
		t.Fatalf("expected 1 skipped, got %d", skipped)
	}
}

// 对同一批候选和同一份已提交集合做两次去重，第二次必须一单不剩。
func TestDeduplicatorIdempotent(t *testing.T) {
	ids := map[string]struct{}{}
	src := &fakeIDSource{ids: ids}
	d := NewDeduplicator(src)

	cands := []Candidate{
		{Ticker: "AAPL", ClientOrderID: "AAPL-c1"},
		{Ticker: "MSFT", ClientOrderID: "MSFT-c1"},
	}
	first, _, err := d.Filter(context.Background(), cands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected all candidates on first pass, got %d", len(first))
	}
	// 模拟第一轮全部提交完成
	for _, c := range first {
		ids[c.ClientOrderID] = struct{}{}
	}

	second, skipped, err := d.Filter(context.Background(), cands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 0 || skipped != 2 {
		t.Fatalf("expected zero new orders on second pass, got %d (skipped %d)", len(second), skipped)
	}
}

func TestDeduplicatorPropagatesStoreError(t *testing.T) {
	d := NewDeduplicator(&fakeIDSource{err: errors.New("db down")})
	_, _, err := d.Filter(context.Background(), []Candidate{{ClientOrderID: "x"}})
	if err == nil {
		t.Fatalf("expected error")
	}
}
