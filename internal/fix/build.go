package fix

import (
	"strconv"
	"time"

	"fixengine/internal/clock"
	"fixengine/internal/pool"
)

// Header carries the session-scoped fields every outbound message emits
// right after tag 35: MsgSeqNum, SenderCompID, TargetCompID, SendingTime.
type Header struct {
	SenderCompID string
	TargetCompID string
	MsgSeqNum    uint32
	SendingTime  time.Time
}

// bodyLenWidth is the fixed-width space reserved for tag 9's value before
// the actual body length is known. Six digits comfortably covers the
// MaxMessageSize default (4096) and then some; Build errors rather than
// silently truncating if a message ever exceeds it.
const bodyLenWidth = 6

// Build serializes msgType, the session header, and fields (in insertion
// order) into out, returning the finished byte range. out is truncated to
// length 0 and reused as the destination — callers pass a buffer rented
// from the pool (e.g. via pool.Pool.AcquireWithBuffer) to keep the order
// path allocation-free.
//
// Tag 60 (TransactTime) is not implied automatically; callers include it
// as a regular field, rendered via clock.FormatSendingTime. Values
// containing the SOH delimiter are rejected.
func Build(out []byte, msgType string, h Header, fields []pool.Field) ([]byte, error) {
	out = out[:0]

	out = append(out, '8', '=')
	out = append(out, BeginString...)
	out = append(out, SOH)

	out = append(out, '9', '=')
	bodyLenPos := len(out)
	for i := 0; i < bodyLenWidth; i++ {
		out = append(out, '0')
	}
	out = append(out, SOH)
	bodyStart := len(out)

	var err error
	out, err = appendField(out, TagMsgType, msgType)
	if err != nil {
		return nil, err
	}
	out, err = appendField(out, TagMsgSeqNum, strconv.FormatUint(uint64(h.MsgSeqNum), 10))
	if err != nil {
		return nil, err
	}
	out, err = appendField(out, TagSenderCompID, h.SenderCompID)
	if err != nil {
		return nil, err
	}
	out, err = appendField(out, TagTargetCompID, h.TargetCompID)
	if err != nil {
		return nil, err
	}
	out, err = appendField(out, TagSendingTime, clock.FormatSendingTime(h.SendingTime))
	if err != nil {
		return nil, err
	}

	for _, f := range fields {
		out, err = appendField(out, f.Tag, string(f.Value))
		if err != nil {
			return nil, err
		}
	}

	bodyLen := len(out) - bodyStart
	digits := strconv.Itoa(bodyLen)
	if len(digits) > bodyLenWidth {
		return nil, ErrBadLength
	}
	copy(out[bodyLenPos:bodyLenPos+bodyLenWidth], zeroPad(digits, bodyLenWidth))

	checksum := checksumOf(out)
	out = append(out, '1', '0', '=')
	out = append(out, zeroPad(strconv.Itoa(checksum), 3)...)
	out = append(out, SOH)

	return out, nil
}

func appendField(out []byte, tag int, value string) ([]byte, error) {
	for i := 0; i < len(value); i++ {
		if value[i] == SOH {
			return nil, ErrDelimiterInValue
		}
	}
	out = strconv.AppendInt(out, int64(tag), 10)
	out = append(out, '=')
	out = append(out, value...)
	out = append(out, SOH)
	return out, nil
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	pad := make([]byte, width-len(s))
	for i := range pad {
		pad[i] = '0'
	}
	return string(pad) + s
}
