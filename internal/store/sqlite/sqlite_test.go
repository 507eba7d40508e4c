package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"breakout-trader/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLedger_InsertGetDelete(t *testing.T) {
	ctx := context.Background()
	l := openTestDB(t).Ledger()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if got, err := l.Get(ctx, ts); err != nil || got != nil {
		t.Fatalf("expected nil entry before insert, got %v, %v", got, err)
	}

	if err := l.Insert(ctx, model.PL{Timestamp: ts, Equity: 1.25, Side: model.SideLong}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := l.Get(ctx, ts)
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.Equity != 1.25 || got.Side != model.SideLong || !got.Timestamp.Equal(ts) {
		t.Errorf("unexpected entry %+v", got)
	}

	if err := l.Delete(ctx, ts); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := l.Get(ctx, ts); got != nil {
		t.Errorf("entry still present after delete: %+v", got)
	}
	if err := l.Delete(ctx, ts); err != nil {
		t.Errorf("deleting a missing entry should succeed, got %v", err)
	}
}

func TestLedger_DuplicateSwallowed(t *testing.T) {
	ctx := context.Background()
	l := openTestDB(t).Ledger()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var dupes int
	l.OnDuplicate = func(time.Time) { dupes++ }

	if err := l.Insert(ctx, model.PL{Timestamp: ts, Equity: 1}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := l.Insert(ctx, model.PL{Timestamp: ts, Equity: 2}); err != nil {
		t.Fatalf("duplicate insert should be swallowed, got %v", err)
	}
	if dupes != 1 {
		t.Errorf("OnDuplicate called %d times, want 1", dupes)
	}
	got, _ := l.Get(ctx, ts)
	if got == nil || got.Equity != 1 || got.Side != model.SideNone {
		t.Errorf("original entry should be kept, got %+v", got)
	}

	err := l.InsertStrict(ctx, model.PL{Timestamp: ts, Equity: 3})
	var pie *model.PersistenceIntegrityError
	if !errors.As(err, &pie) || !errors.Is(err, model.ErrDuplicateKey) {
		t.Errorf("expected PersistenceIntegrityError, got %v", err)
	}
}

func TestLedger_Recent(t *testing.T) {
	ctx := context.Background()
	l := openTestDB(t).Ledger()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		l.Insert(ctx, model.PL{Timestamp: base.Add(time.Duration(i) * time.Minute), Equity: float64(i)})
	}
	got, err := l.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 || got[0].Equity != 4 || got[2].Equity != 2 {
		t.Errorf("unexpected recent entries %+v", got)
	}
}

func TestJournal_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	j := openTestDB(t).Journal()

	intent := model.OrderIntent{Side: model.OrderBuy, Type: model.OrderMarket, Qty: 125, LinkID: "link-1"}
	if err := j.RecordOrder(ctx, model.JournalEntry{
		Intent: intent, Ack: model.OrderAck{OrderID: "o1", Status: "Created"},
		Reason: "open", Price: 50, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}
	if err := j.RecordOrder(ctx, model.JournalEntry{
		Intent: model.OrderIntent{Side: model.OrderSell, Type: model.OrderMarket, Qty: 125, LinkID: "link-2"},
		Reason: "close", Err: "timeout",
	}); err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}

	recs, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].LinkID != "link-2" || recs[0].Error != "timeout" || recs[0].OrderID != "" {
		t.Errorf("unexpected newest record %+v", recs[0])
	}
	if recs[1].Price == nil || *recs[1].Price != 50 || recs[1].Qty != 125 {
		t.Errorf("unexpected oldest record %+v", recs[1])
	}
}

func TestBarArchive_SaveRead(t *testing.T) {
	ctx := context.Background()
	a := openTestDB(t).Bars()
	base := time.Unix(1700000000, 0).UTC()

	bars := make([]model.Bar, 5)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = model.Bar{OpenTime: base.Add(time.Duration(i) * time.Minute), Open: p, High: p + 1, Low: p - 1, Close: p}
	}
	if err := a.Save(ctx, "BTCUSD", "1", bars); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Overlapping save replaces.
	bars[4].Close = 999
	if err := a.Save(ctx, "BTCUSD", "1", bars[3:]); err != nil {
		t.Fatalf("Save overlap: %v", err)
	}

	got, err := a.Read(ctx, "BTCUSD", "1", base.Add(2*time.Minute), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 3 || got[2].Close != 999 || !got[0].OpenTime.Equal(bars[2].OpenTime) {
		t.Errorf("unexpected bars %+v", got)
	}

	last, err := a.LastOpenTime(ctx, "BTCUSD", "1")
	if err != nil || !last.Equal(bars[4].OpenTime) {
		t.Errorf("LastOpenTime = %v, %v", last, err)
	}
	if none, _ := a.LastOpenTime(ctx, "ETHUSD", "1"); !none.IsZero() {
		t.Errorf("expected zero time for empty archive, got %v", none)
	}
}
