package fix

import "errors"

// Sentinel parse errors, per the codec's error-condition table. Callers
// that receive anything other than ErrNeedMore must disconnect the
// session — these all indicate the byte stream can no longer be trusted.
var (
	// ErrNeedMore means the buffer does not yet hold a full message;
	// consumed bytes is always 0 and the caller retains the buffer.
	ErrNeedMore = errors.New("fix: need more bytes")
	// ErrBadChecksum means the trailing checksum field did not match.
	ErrBadChecksum = errors.New("fix: checksum mismatch")
	// ErrMalformedHeader means tag 8, 9, or 35 is missing or out of
	// position.
	ErrMalformedHeader = errors.New("fix: malformed header")
	// ErrBadLength means the declared body length does not match the
	// actual body.
	ErrBadLength = errors.New("fix: body length mismatch")
	// ErrDelimiterInValue means a field value contains the SOH byte,
	// which build() rejects outright.
	ErrDelimiterInValue = errors.New("fix: value contains delimiter byte")
)

// ValidationError reports a message failing validate()'s required-tag
// check for its message type.
type ValidationError struct {
	MsgType   string
	MissingTag int
}

func (e *ValidationError) Error() string {
	return "fix: message type " + e.MsgType + " missing required tag"
}
