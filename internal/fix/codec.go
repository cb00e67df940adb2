// Package fix implements the streaming FIX 4.4 wire codec (component C2):
// parse, build, and validate for the SOH-delimited tag=value format.
package fix

import (
	"strconv"

	"fixengine/internal/clock"
	"fixengine/internal/pool"
)

// Parse scans e.Buffer for one complete FIX message starting at offset 0
// and, on success, populates e's header fields and field table with
// slices borrowed from e.Buffer (zero-copy). It returns the number of
// bytes consumed; on ErrNeedMore, consumed is always 0 and the caller
// retains the buffer to append more bytes and retry.
//
// Any error other than ErrNeedMore means the byte stream can no longer be
// trusted and the caller must disconnect the session (§4.2).
func Parse(e *pool.Envelope) (consumed int, err error) {
	data := e.Buffer
	pos := 0

	tag, val, next, err := scanField(data, pos)
	if err != nil {
		return 0, err
	}
	if tag != TagBeginString || string(val) != BeginString {
		return 0, ErrMalformedHeader
	}
	pos = next

	tag, val, next, err = scanField(data, pos)
	if err != nil {
		return 0, err
	}
	if tag != TagBodyLength {
		return 0, ErrMalformedHeader
	}
	bodyLength, perr := strconv.Atoi(string(val))
	if perr != nil {
		return 0, ErrMalformedHeader
	}
	bodyStart := next
	pos = next

	// The full message runs from byte 0 through bodyStart+bodyLength
	// (the body) plus the trailing "10=xxx\x01" checksum field.
	checksumFieldStart := bodyStart + bodyLength
	if checksumFieldStart > len(data) {
		return 0, ErrNeedMore
	}
	// Checksum field is exactly "10=" + 3 digits + SOH = 7 bytes.
	totalLen := checksumFieldStart + 7
	if totalLen > len(data) {
		return 0, ErrNeedMore
	}

	tag, val, next, err = scanField(data, pos)
	if err != nil {
		return 0, err
	}
	if tag != TagMsgType {
		return 0, ErrMalformedHeader
	}
	e.MsgType = string(val)
	pos = next

	e.Fields = e.Fields[:0]
	e.Fields = append(e.Fields, pool.Field{Tag: TagMsgType, Value: val})

	for pos < checksumFieldStart {
		tag, val, next, err = scanField(data, pos)
		if err != nil {
			return 0, err
		}
		e.Fields = append(e.Fields, pool.Field{Tag: tag, Value: val})

		switch tag {
		case TagMsgSeqNum:
			if n, perr := strconv.ParseUint(string(val), 10, 32); perr == nil {
				e.MsgSeqNum = uint32(n)
			}
		case TagSenderCompID:
			e.SenderCompID = string(val)
		case TagTargetCompID:
			e.TargetCompID = string(val)
		case TagSendingTime:
			if t, perr := clock.ParseSendingTime(string(val)); perr == nil {
				e.SendingTime = t.UnixNano()
			}
		}

		pos = next
		if pos > checksumFieldStart {
			return 0, ErrBadLength
		}
	}
	if pos != checksumFieldStart {
		return 0, ErrBadLength
	}

	tag, val, next, err = scanField(data, pos)
	if err != nil {
		return 0, err
	}
	if tag != TagCheckSum {
		return 0, ErrMalformedHeader
	}
	wantChecksum, perr := strconv.Atoi(string(val))
	if perr != nil || len(val) != 3 {
		return 0, ErrBadChecksum
	}

	gotChecksum := checksumOf(data[:checksumFieldStart])
	if gotChecksum != wantChecksum {
		return 0, ErrBadChecksum
	}

	return next, nil
}

// scanField reads one "tag=value" field starting at pos, returning the tag,
// the value (a slice into data), and the offset just past the trailing
// SOH. It returns ErrNeedMore if no SOH terminates the field within data.
func scanField(data []byte, pos int) (tag int, value []byte, next int, err error) {
	eq := -1
	soh := -1
	for i := pos; i < len(data); i++ {
		switch data[i] {
		case '=':
			if eq == -1 {
				eq = i
			}
		case SOH:
			soh = i
		}
		if soh != -1 {
			break
		}
	}
	if soh == -1 {
		return 0, nil, 0, ErrNeedMore
	}
	if eq == -1 || eq >= soh {
		return 0, nil, 0, ErrMalformedHeader
	}

	tagNum, perr := strconv.Atoi(string(data[pos:eq]))
	if perr != nil || tagNum < 0 || tagNum > 65535 {
		return 0, nil, 0, ErrMalformedHeader
	}

	return tagNum, data[eq+1 : soh], soh + 1, nil
}

// checksumOf computes (sum of bytes mod 256), the FIX checksum algorithm,
// over b (which must not include the checksum field's own bytes).
func checksumOf(b []byte) int {
	var sum int
	for _, c := range b {
		sum += int(c)
	}
	return sum % 256
}
