package marketdata

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"fixengine/internal/fix"
	"fixengine/internal/pool"
	"fixengine/pkg/types"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time   { return f.t }
func (f fixedClock) Monotonic() int64 { return f.t.UnixNano() }

type fakeSender struct {
	id      string
	msgType string
	fields  []pool.Field
}

func (f *fakeSender) Send(msgType string, fields []pool.Field) error {
	f.msgType = msgType
	f.fields = fields
	return nil
}

func (f *fakeSender) SessionID() string { return f.id }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager() (*Manager, *fakeSender, *types.NormalizedUpdate) {
	sender := &fakeSender{id: "ENGINE->VENUE1"}
	c := fixedClock{t: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)}
	var last types.NormalizedUpdate
	m := New(sender, c, discardLogger(), func(u types.NormalizedUpdate) { last = u })
	return m, sender, &last
}

func snapshotMessage(symbol string, entries []struct {
	typ   string
	id    string
	px    string
	sz    string
}) fix.Message {
	e := &pool.Envelope{MsgType: fix.MsgTypeMarketDataSnapshot}
	msg := fix.Wrap(e)
	msg.Set(fix.TagSymbol, symbol)
	for _, ent := range entries {
		msg.Set(fix.TagMDEntryType, ent.typ)
		msg.Set(fix.TagMDEntryID, ent.id)
		msg.Set(fix.TagMDEntryPx, ent.px)
		msg.Set(fix.TagMDEntrySize, ent.sz)
	}
	return msg
}

func TestSubscribeSendsMarketDataRequest(t *testing.T) {
	t.Parallel()

	m, sender, _ := newTestManager()
	reqID, err := m.Subscribe("MSFT", 5)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if sender.msgType != fix.MsgTypeMarketDataRequest {
		t.Errorf("sent msgType = %q, want MarketDataRequest", sender.msgType)
	}
	if reqID == "" {
		t.Error("Subscribe() returned empty reqID")
	}
}

func TestSubscribeRejectsEmptySymbol(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	if _, err := m.Subscribe("", 5); err == nil {
		t.Fatal("Subscribe() with empty symbol should fail")
	}
}

func TestUnsubscribeUnknownFails(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	if err := m.Unsubscribe("nope"); err == nil {
		t.Fatal("Unsubscribe() on unknown subscription should fail")
	}
}

func TestOnMarketDataSnapshotBuildsBookAndNotifies(t *testing.T) {
	t.Parallel()

	m, _, last := newTestManager()
	m.Subscribe("MSFT", 0)

	msg := snapshotMessage("MSFT", []struct {
		typ, id, px, sz string
	}{
		{"0", "B1", "300.00", "100"},
		{"1", "A1", "300.50", "200"},
		{"2", "T1", "300.25", "50"},
	})
	m.OnMarketData(msg)

	if last.Symbol != "MSFT" {
		t.Errorf("Symbol = %q, want MSFT", last.Symbol)
	}
	if last.BidPrice.String() != "300" {
		t.Errorf("BidPrice = %v, want 300", last.BidPrice)
	}
	if last.AskPrice.String() != "300.5" {
		t.Errorf("AskPrice = %v, want 300.5", last.AskPrice)
	}
	if last.LastPrice.String() != "300.25" {
		t.Errorf("LastPrice = %v, want 300.25", last.LastPrice)
	}
}

func TestOnMarketDataIncrementalDeleteRemovesEntry(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	m.Subscribe("MSFT", 0)
	m.OnMarketData(snapshotMessage("MSFT", []struct{ typ, id, px, sz string }{
		{"0", "B1", "300.00", "100"},
		{"1", "A1", "300.50", "200"},
	}))

	e := &pool.Envelope{MsgType: fix.MsgTypeMarketDataIncRefresh}
	inc := fix.Wrap(e)
	inc.Set(fix.TagSymbol, "MSFT")
	inc.Set(fix.TagMDEntryType, "0")
	inc.Set(fix.TagMDUpdateAction, "2")
	inc.Set(fix.TagMDEntryID, "B1")
	m.OnMarketData(inc)

	book, ok := m.Book("MSFT")
	if !ok {
		t.Fatal("Book(MSFT) not found")
	}
	if !book.BidPrice.IsZero() {
		t.Errorf("BidPrice after delete = %v, want zero (no bids left)", book.BidPrice)
	}
}

func TestStaleSymbolsReportsSymbolsPastMaxAge(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	m.Subscribe("MSFT", 0)
	m.OnMarketData(snapshotMessage("MSFT", []struct{ typ, id, px, sz string }{
		{"0", "B1", "300.00", "100"},
		{"1", "A1", "300.50", "200"},
	}))

	clockRef := m.clock.(fixedClock)
	clockRef.t = clockRef.t.Add(time.Hour)
	m.clock = clockRef

	stale := m.StaleSymbols(time.Minute)
	if len(stale) != 1 || stale[0] != "MSFT" {
		t.Errorf("StaleSymbols() = %v, want [MSFT]", stale)
	}
}
