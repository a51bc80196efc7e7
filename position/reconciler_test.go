package position

import (
	"context"
	"testing"

	"trade-executor-go/broker"
	"trade-executor-go/infrastructure/logger"
)

type fakeBroker struct {
	positions map[string]broker.Position
	err       error
}

func (f *fakeBroker) IsMarketOpen(context.Context) (bool, error) { return true, nil }
func (f *fakeBroker) GetAccount(context.Context) (broker.Account, error) {
	return broker.Account{}, nil
}
func (f *fakeBroker) SubmitMarketOrder(context.Context, string, string, int64, string) (broker.Ack, error) {
	return broker.Ack{}, nil
}
func (f *fakeBroker) ListPositions(context.Context) (map[string]broker.Position, error) {
	return f.positions, f.err
}

type fakeStore struct {
	rows map[string][2]float64
}

func (f *fakeStore) Upsert(_ context.Context, ticker string, qty, avg float64) error {
	if f.rows == nil {
		f.rows = map[string][2]float64{}
	}
	f.rows[ticker] = [2]float64{qty, avg}
	return nil
}

func TestSyncOverwritesSnapshot(t *testing.T) {
	fb := &fakeBroker{positions: map[string]broker.Position{
		"AAPL":    {Ticker: "AAPL", Quantity: 10, AvgEntryPrice: 187.2},
		"BTC-USD": {Ticker: "BTC-USD", Quantity: 0.5, AvgEntryPrice: 60000},
	}}
	st := &fakeStore{rows: map[string][2]float64{
		// 本地的旧值会被券商真值整体覆盖
		"AAPL": {3, 150},
	}}
	r := NewReconciler(fb, st, logger.Nop())

	if err := r.Sync(context.Background()); err != nil {
		t.Fatalf("sync err: %v", err)
	}
	if got := st.rows["AAPL"]; got != [2]float64{10, 187.2} {
		t.Fatalf("AAPL not overwritten: %v", got)
	}
	if got := st.rows["BTC-USD"]; got != [2]float64{0.5, 60000} {
		t.Fatalf("BTC-USD missing: %v", got)
	}
}

func TestSyncPropagatesRetrievalError(t *testing.T) {
	fb := &fakeBroker{err: &broker.PositionRetrievalError{}}
	r := NewReconciler(fb, &fakeStore{}, logger.Nop())
	if err := r.Sync(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
