package marketdata

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fixengine/internal/clock"
	"fixengine/internal/errs"
	"fixengine/internal/fix"
	"fixengine/internal/pool"
	"fixengine/pkg/types"
)

// Sender is the narrow session capability the market-data manager depends
// on, mirroring the order manager's Sender interface.
type Sender interface {
	Send(msgType string, fields []pool.Field) error
	SessionID() string
}

type subscription struct {
	reqID  string
	symbol string
}

// Manager owns every market-data subscription routed through one session
// and the normalized books they feed.
type Manager struct {
	sender Sender
	clock  clock.Clock
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]subscription // reqID -> subscription
	byBook map[string]*Book        // symbol -> book

	onUpdate func(types.NormalizedUpdate)

	reqSeq uint64
}

// New creates a market-data manager bound to a single session. onUpdate,
// if non-nil, is invoked synchronously after every snapshot or
// incremental refresh is applied.
func New(sender Sender, c clock.Clock, logger *slog.Logger, onUpdate func(types.NormalizedUpdate)) *Manager {
	return &Manager{
		sender:   sender,
		clock:    c,
		logger:   logger.With("component", "marketdata", "session", sender.SessionID()),
		subs:     make(map[string]subscription),
		byBook:   make(map[string]*Book),
		onUpdate: onUpdate,
	}
}

func (m *Manager) nextReqID() string {
	m.reqSeq++
	return fmt.Sprintf("MD-%s-%d", m.sender.SessionID(), m.reqSeq)
}

// Subscribe requests a snapshot-plus-updates feed for symbol at the given
// book depth (0 requests the venue's default / full book).
func (m *Manager) Subscribe(symbol string, depth int) (reqID string, err error) {
	if symbol == "" {
		return "", errs.New(errs.Validation, "symbol is required")
	}

	reqID = m.nextReqID()
	m.mu.Lock()
	m.subs[reqID] = subscription{reqID: reqID, symbol: symbol}
	if _, ok := m.byBook[symbol]; !ok {
		m.byBook[symbol] = NewBook(symbol)
	}
	m.mu.Unlock()

	fields := []pool.Field{
		{Tag: fix.TagMDReqID, Value: []byte(reqID)},
		{Tag: fix.TagSubscriptionRequestType, Value: []byte("1")},
		{Tag: fix.TagMarketDepth, Value: []byte(fmt.Sprintf("%d", depth))},
		{Tag: fix.TagNoMDEntryTypes, Value: []byte("3")},
		{Tag: fix.TagMDEntryType, Value: []byte(types.MDBid.FIXTag())},
		{Tag: fix.TagMDEntryType, Value: []byte(types.MDOffer.FIXTag())},
		{Tag: fix.TagMDEntryType, Value: []byte(types.MDTrade.FIXTag())},
		{Tag: fix.TagSymbol, Value: []byte(symbol)},
	}
	if err := m.sender.Send(fix.MsgTypeMarketDataRequest, fields); err != nil {
		m.mu.Lock()
		delete(m.subs, reqID)
		m.mu.Unlock()
		return "", err
	}
	return reqID, nil
}

// Unsubscribe disables a previously established subscription by reusing
// its request id with SubscriptionRequestType=2.
func (m *Manager) Unsubscribe(reqID string) error {
	m.mu.Lock()
	sub, ok := m.subs[reqID]
	if !ok {
		m.mu.Unlock()
		return errs.New(errs.Validation, "unknown market data subscription %q", reqID)
	}
	delete(m.subs, reqID)
	m.mu.Unlock()

	fields := []pool.Field{
		{Tag: fix.TagMDReqID, Value: []byte(sub.reqID)},
		{Tag: fix.TagSubscriptionRequestType, Value: []byte("2")},
		{Tag: fix.TagSymbol, Value: []byte(sub.symbol)},
	}
	return m.sender.Send(fix.MsgTypeMarketDataRequest, fields)
}

// OnMarketData folds an inbound MarketDataSnapshot or
// MarketDataIncrementalRefresh into the relevant book and, if a callback
// was configured, delivers the resulting normalized view.
func (m *Manager) OnMarketData(msg fix.Message) {
	symbol, _ := msg.Get(fix.TagSymbol)
	entries := groupMDEntries(msg.All())
	now := m.clock.Now()

	m.mu.Lock()
	book, ok := m.byBook[symbol]
	if !ok {
		book = NewBook(symbol)
		m.byBook[symbol] = book
	}
	m.mu.Unlock()

	switch msg.MsgType() {
	case fix.MsgTypeMarketDataSnapshot:
		bids := make(map[string]types.PriceLevel)
		asks := make(map[string]types.PriceLevel)
		var last *types.PriceLevel
		for i, e := range entries {
			lvl := types.PriceLevel{Price: e.price, Size: e.size}
			switch e.entryType {
			case types.MDBid:
				bids[entryKey(e, i)] = lvl
			case types.MDOffer:
				asks[entryKey(e, i)] = lvl
			case types.MDTrade:
				last = &lvl
			}
		}
		book.ReplaceSnapshot(bids, asks, last, now)

	case fix.MsgTypeMarketDataIncRefresh:
		for i, e := range entries {
			lvl := types.PriceLevel{Price: e.price, Size: e.size}
			book.ApplyEntry(e.entryType, e.action, entryKey(e, i), lvl, now)
		}

	default:
		m.logger.Warn("unexpected message type routed to market data manager", "msgType", msg.MsgType())
		return
	}

	if m.onUpdate != nil {
		m.onUpdate(book.Normalized())
	}
}

func entryKey(e mdEntry, fallbackIndex int) string {
	if e.entryID != "" {
		return e.entryID
	}
	return fmt.Sprintf("idx-%d", fallbackIndex)
}

// mdEntry is one decoded repeating-group entry from a NoMDEntries block.
type mdEntry struct {
	entryType types.MDEntryType
	action    string // MDUpdateAction: "0" New, "1" Change, "2" Delete
	entryID   string
	price     decimal.Decimal
	size      decimal.Decimal
}

// groupMDEntries splits a flat field list into repeating-group entries.
// Each entry starts at an MDEntryType (269) field and absorbs the
// following MDUpdateAction/MDEntryID/MDEntryPx/MDEntrySize fields up to
// the next MDEntryType or the end of the list. This mirrors the spec's
// dynamic-field-map approach to repeating groups rather than a
// fixed-offset parser.
func groupMDEntries(fields []pool.Field) []mdEntry {
	var entries []mdEntry
	var cur *mdEntry

	for _, f := range fields {
		switch f.Tag {
		case fix.TagMDEntryType:
			if cur != nil {
				entries = append(entries, *cur)
			}
			cur = &mdEntry{entryType: mdEntryTypeFromTag(string(f.Value))}
		case fix.TagMDUpdateAction:
			if cur != nil {
				cur.action = string(f.Value)
			}
		case fix.TagMDEntryID:
			if cur != nil {
				cur.entryID = string(f.Value)
			}
		case fix.TagMDEntryPx:
			if cur != nil {
				cur.price, _ = decimal.NewFromString(string(f.Value))
			}
		case fix.TagMDEntrySize:
			if cur != nil {
				cur.size, _ = decimal.NewFromString(string(f.Value))
			}
		}
	}
	if cur != nil {
		entries = append(entries, *cur)
	}
	return entries
}

func mdEntryTypeFromTag(v string) types.MDEntryType {
	switch v {
	case "0":
		return types.MDBid
	case "1":
		return types.MDOffer
	case "2":
		return types.MDTrade
	default:
		return types.MDBid
	}
}

// Book returns the current normalized view for symbol, if subscribed.
func (m *Manager) Book(symbol string) (types.NormalizedUpdate, bool) {
	m.mu.RLock()
	book, ok := m.byBook[symbol]
	m.mu.RUnlock()
	if !ok {
		return types.NormalizedUpdate{}, false
	}
	return book.Normalized(), true
}

// StaleSymbols returns every subscribed symbol whose book hasn't updated
// within maxAge, for housekeeping (cancel-on-stale-book style checks).
func (m *Manager) StaleSymbols(maxAge time.Duration) []string {
	now := m.clock.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stale []string
	for symbol, book := range m.byBook {
		if book.IsStale(maxAge, now) {
			stale = append(stale, symbol)
		}
	}
	return stale
}
