package fix

import (
	"testing"
	"time"

	"fixengine/internal/pool"
)

func buildSample(t *testing.T, fields []pool.Field) []byte {
	t.Helper()
	h := Header{
		SenderCompID: "ENGINE",
		TargetCompID: "VENUE1",
		MsgSeqNum:    1,
		SendingTime:  time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
	}
	out, err := Build(make([]byte, 0, 256), MsgTypeNewOrderSingle, h, fields)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return out
}

func TestBuildNewOrderSingleFieldOrder(t *testing.T) {
	t.Parallel()

	fields := []pool.Field{
		{Tag: TagClOrdID, Value: []byte("ORD_001")},
		{Tag: TagHandlInst, Value: []byte("1")},
		{Tag: TagSymbol, Value: []byte("MSFT")},
		{Tag: TagSide, Value: []byte("1")},
		{Tag: TagTransactTime, Value: []byte("20260730-12:00:00.000")},
		{Tag: TagOrdType, Value: []byte("2")},
		{Tag: TagOrderQty, Value: []byte("100")},
		{Tag: TagPrice, Value: []byte("300.00")},
		{Tag: TagTimeInForce, Value: []byte("0")},
	}
	out := buildSample(t, fields)

	e := &pool.Envelope{Buffer: out}
	n, err := Parse(e)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if n != len(out) {
		t.Fatalf("consumed = %d, want %d", n, len(out))
	}
	if e.MsgType != MsgTypeNewOrderSingle {
		t.Errorf("MsgType = %q, want %q", e.MsgType, MsgTypeNewOrderSingle)
	}

	m := Wrap(e)
	wantOrder := []int{TagMsgType, TagMsgSeqNum, TagSenderCompID, TagTargetCompID, TagSendingTime,
		TagClOrdID, TagHandlInst, TagSymbol, TagSide, TagTransactTime, TagOrdType, TagOrderQty, TagPrice, TagTimeInForce}
	if len(m.All()) != len(wantOrder) {
		t.Fatalf("field count = %d, want %d", len(m.All()), len(wantOrder))
	}
	for i, f := range m.All() {
		if f.Tag != wantOrder[i] {
			t.Errorf("field[%d].Tag = %d, want %d", i, f.Tag, wantOrder[i])
		}
	}

	if clOrdID, _ := m.Get(TagClOrdID); clOrdID != "ORD_001" {
		t.Errorf("ClOrdID = %q, want ORD_001", clOrdID)
	}
	if err := Validate(m); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestParseBuildRoundTrip(t *testing.T) {
	t.Parallel()

	fields := []pool.Field{
		{Tag: TagClOrdID, Value: []byte("ORD_002")},
		{Tag: TagHandlInst, Value: []byte("1")},
		{Tag: TagSymbol, Value: []byte("AAPL")},
		{Tag: TagSide, Value: []byte("2")},
		{Tag: TagTransactTime, Value: []byte("20260730-12:00:00.000")},
		{Tag: TagOrdType, Value: []byte("1")},
	}
	out := buildSample(t, fields)

	e := &pool.Envelope{Buffer: out}
	if _, err := Parse(e); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	for i, f := range Wrap(e).All()[5:] { // skip header fields
		if string(f.Value) != string(fields[i].Value) {
			t.Errorf("field %d value = %q, want %q", i, f.Value, fields[i].Value)
		}
	}
}

func TestParseChecksumMismatch(t *testing.T) {
	t.Parallel()

	out := buildSample(t, nil)
	// Corrupt the checksum digits (last 4 bytes are "NNN\x01").
	out[len(out)-2] = '9'
	out[len(out)-3] = '9'

	e := &pool.Envelope{Buffer: out}
	_, err := Parse(e)
	if err != ErrBadChecksum {
		t.Fatalf("Parse() error = %v, want ErrBadChecksum", err)
	}
}

func TestParseNeedsMoreBytes(t *testing.T) {
	t.Parallel()

	out := buildSample(t, nil)
	partial := out[:len(out)-5]

	e := &pool.Envelope{Buffer: partial}
	consumed, err := Parse(e)
	if err != ErrNeedMore {
		t.Fatalf("Parse() error = %v, want ErrNeedMore", err)
	}
	if consumed != 0 {
		t.Errorf("consumed = %d, want 0", consumed)
	}
}

func TestParseMalformedHeaderWrongFirstTag(t *testing.T) {
	t.Parallel()

	bad := []byte("9=5\x0135=0\x0110=000\x01")
	e := &pool.Envelope{Buffer: bad}
	_, err := Parse(e)
	if err != ErrMalformedHeader {
		t.Fatalf("Parse() error = %v, want ErrMalformedHeader", err)
	}
}

func TestBuildRejectsDelimiterInValue(t *testing.T) {
	t.Parallel()

	h := Header{SenderCompID: "A", TargetCompID: "B", MsgSeqNum: 1, SendingTime: time.Now()}
	bad := []pool.Field{{Tag: TagText, Value: []byte("has\x01soh")}}
	_, err := Build(make([]byte, 0, 64), MsgTypeReject, h, bad)
	if err != ErrDelimiterInValue {
		t.Fatalf("Build() error = %v, want ErrDelimiterInValue", err)
	}
}

func TestChecksumArithmeticExcludesChecksumField(t *testing.T) {
	t.Parallel()

	out := buildSample(t, nil)
	checksumFieldStart := len(out) - 7
	want := checksumOf(out[:checksumFieldStart])

	wantStr := zeroPad(itoa(want), 3)
	gotStr := string(out[checksumFieldStart+3 : checksumFieldStart+6])
	if gotStr != wantStr {
		t.Errorf("rendered checksum = %q, want %q", gotStr, wantStr)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
