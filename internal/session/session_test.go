package session

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"fixengine/internal/fix"
	"fixengine/internal/pool"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }
func (f fixedClock) Monotonic() int64 { return f.t.UnixNano() }

type memStore struct {
	out, in map[string]uint32
}

func newMemStore() *memStore {
	return &memStore{out: map[string]uint32{}, in: map[string]uint32{}}
}

func (m *memStore) Load(id string) (uint32, uint32, error) {
	return m.out[id], m.in[id], nil
}

func (m *memStore) Save(id string, out, in uint32) error {
	m.out[id] = out
	m.in[id] = in
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeMessage(t *testing.T, seq uint32) fix.Message {
	t.Helper()
	e := &pool.Envelope{MsgSeqNum: seq}
	return fix.Wrap(e)
}

// fakeWire builds real SOH-framed bytes for seq carrying msgType, so tests
// that exercise the gap-buffer replay path have something checkSequence can
// actually re-parse via fix.Parse.
func fakeWire(t *testing.T, seq uint32, msgType string, fields []pool.Field) []byte {
	t.Helper()
	h := fix.Header{
		SenderCompID: "VENUE1",
		TargetCompID: "ENGINE",
		MsgSeqNum:    seq,
		SendingTime:  time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
	}
	out, err := fix.Build(make([]byte, 0, 256), msgType, h, fields)
	if err != nil {
		t.Fatalf("fix.Build() error = %v", err)
	}
	return out
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	cfg := Config{
		SenderCompID: "ENGINE",
		TargetCompID: "VENUE1",
		Host:         "127.0.0.1",
		Port:         0,
		HeartBtInt:   30 * time.Second,
	}
	c := fixedClock{t: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)}
	s := New(cfg, nil, c, nil, Callbacks{}, discardLogger())
	return s
}

func TestPhaseStringValues(t *testing.T) {
	t.Parallel()

	cases := map[Phase]string{
		Disconnected: "disconnected",
		Connecting:   "connecting",
		LoggedOn:     "logged_on",
		LoggingOut:   "logging_out",
		Faulted:      "faulted",
	}
	for phase, want := range cases {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}

func TestSessionIDComposesCompIDs(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	if got, want := s.SessionID(), "ENGINE->VENUE1"; got != want {
		t.Errorf("SessionID() = %q, want %q", got, want)
	}
}

func TestCheckSequenceInOrderAdvances(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	s.inSeq = 5
	if ok := s.checkSequence(6, nil, fakeMessage(t, 6)); !ok {
		t.Fatal("checkSequence(6) = false, want true")
	}
	if s.inSeq != 6 {
		t.Errorf("inSeq = %d, want 6", s.inSeq)
	}
}

func TestCheckSequenceGapDoesNotAdvance(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	s.conn = nil // Send() would fail to write; acceptable since Phase isn't LoggedOn
	s.inSeq = 5

	if ok := s.checkSequence(9, fakeWire(t, 9, fix.MsgTypeHeartbeat, nil), fakeMessage(t, 9)); ok {
		t.Fatal("checkSequence(9) = true, want false (gap)")
	}
	if s.inSeq != 5 {
		t.Errorf("inSeq = %d, want unchanged 5", s.inSeq)
	}
	if s.pendingGap == nil {
		t.Fatal("expected pendingGap to be set after detecting a gap")
	}
	if s.pendingGap.expectedFrom != 6 || s.pendingGap.expectedTo != 8 {
		t.Errorf("pendingGap = %+v, want {expectedFrom:6 expectedTo:8}", s.pendingGap)
	}
	if len(s.pendingGap.buffered) != 1 || s.pendingGap.buffered[0].seq != 9 {
		t.Fatalf("pendingGap.buffered = %+v, want one entry for seq 9", s.pendingGap.buffered)
	}
}

// TestCheckSequenceGapRepliesAppliedOnceResendFillsIt exercises spec
// scenario 4 end to end: seq 5 arrives while 3 is expected, the session
// must buffer 5 rather than drop it, and once the resend delivers 3 and 4
// the buffered message 5 is replayed and its execution-report callback
// fires — not just pendingGap bookkeeping.
func TestCheckSequenceGapRepliesAppliedOnceResendFillsIt(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	s.conn = nil
	s.inSeq = 2

	var gotExec []uint32
	s.cb.OnExecution = func(m fix.Message) {
		gotExec = append(gotExec, m.Env.MsgSeqNum)
	}

	fields := []pool.Field{{Tag: 39, Value: []byte("0")}}
	raw5 := fakeWire(t, 5, fix.MsgTypeExecutionReport, fields)
	env5 := &pool.Envelope{Buffer: append([]byte(nil), raw5...)}
	if _, err := fix.Parse(env5); err != nil {
		t.Fatalf("fix.Parse(seq 5) error = %v", err)
	}

	if ok := s.checkSequence(5, raw5, fix.Wrap(env5)); ok {
		t.Fatal("checkSequence(5) with expected 3 = true, want false (gap)")
	}
	if s.inSeq != 2 {
		t.Fatalf("inSeq = %d, want unchanged 2", s.inSeq)
	}
	if len(gotExec) != 0 {
		t.Fatalf("OnExecution fired before the gap was filled: %v", gotExec)
	}

	raw3 := fakeWire(t, 3, fix.MsgTypeHeartbeat, nil)
	env3 := &pool.Envelope{Buffer: append([]byte(nil), raw3...)}
	if _, err := fix.Parse(env3); err != nil {
		t.Fatalf("fix.Parse(seq 3) error = %v", err)
	}
	if ok := s.checkSequence(3, raw3, fix.Wrap(env3)); !ok {
		t.Fatal("checkSequence(3) = false, want true")
	}
	if s.inSeq != 3 {
		t.Fatalf("inSeq = %d, want 3", s.inSeq)
	}

	raw4 := fakeWire(t, 4, fix.MsgTypeHeartbeat, nil)
	env4 := &pool.Envelope{Buffer: append([]byte(nil), raw4...)}
	if _, err := fix.Parse(env4); err != nil {
		t.Fatalf("fix.Parse(seq 4) error = %v", err)
	}
	if ok := s.checkSequence(4, raw4, fix.Wrap(env4)); !ok {
		t.Fatal("checkSequence(4) = false, want true")
	}

	// inSeq must now have caught up through the replayed buffered message
	// (seq 5), and the gap must be fully closed.
	if s.inSeq != 5 {
		t.Fatalf("inSeq = %d, want 5 (buffered seq 5 replayed)", s.inSeq)
	}
	if s.pendingGap != nil {
		t.Fatalf("pendingGap = %+v, want nil after drain", s.pendingGap)
	}
	if len(gotExec) != 1 || gotExec[0] != 5 {
		t.Fatalf("OnExecution calls = %v, want exactly [5] (the replayed message)", gotExec)
	}
}

func TestCheckSequenceDuplicateWithPossDupIgnored(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	s.inSeq = 10

	m := fakeMessage(t, 3)
	m.Set(269, "") // unrelated field, ensures Fields is non-empty
	m.Set(43, "Y")

	if ok := s.checkSequence(3, nil, m); ok {
		t.Fatal("checkSequence(3) with PossDupFlag=Y = true, want false")
	}
	if s.Phase() == Faulted {
		t.Error("duplicate with PossDupFlag=Y should not fault the session")
	}
}

func TestCheckSequenceBackwardsWithoutPossDupFaults(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	s.inSeq = 10

	if ok := s.checkSequence(3, nil, fakeMessage(t, 3)); ok {
		t.Fatal("checkSequence(3) without PossDupFlag = true, want false")
	}
	if s.Phase() != Faulted {
		t.Errorf("Phase() = %v, want Faulted", s.Phase())
	}
}

func TestErrorRateWindowsOutOldEntries(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	s.clock = fixedClock{t: base}
	s.recordError()

	s.clock = fixedClock{t: base.Add(2 * time.Minute)}
	if got := s.ErrorRate(); got != 0 {
		t.Errorf("ErrorRate() after window expiry = %v, want 0", got)
	}
}

func TestLoadSequenceAppliesStore(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.Save("ENGINE->VENUE1", 42, 17)

	s := newTestSession(t)
	s.store = store
	if err := s.loadSequence(); err != nil {
		t.Fatalf("loadSequence() error = %v", err)
	}
	if s.outSeq != 42 {
		t.Errorf("outSeq = %d, want 42", s.outSeq)
	}
	if s.inSeq != 17 {
		t.Errorf("inSeq = %d, want 17", s.inSeq)
	}
}
