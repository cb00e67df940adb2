package fix

import (
	"strconv"

	"fixengine/internal/pool"
)

// Message wraps a pooled envelope with typed accessors over its field
// table. It never copies the envelope's backing buffer; field values
// parsed from the wire remain borrowed slices into it until the envelope
// is released.
type Message struct {
	Env *pool.Envelope
}

// Wrap adapts a pooled envelope into a Message.
func Wrap(e *pool.Envelope) Message { return Message{Env: e} }

// Get returns the first value for tag, or ("", false) if absent.
func (m Message) Get(tag int) (string, bool) {
	for _, f := range m.Env.Fields {
		if f.Tag == tag {
			return string(f.Value), true
		}
	}
	return "", false
}

// GetInt parses the first value for tag as a decimal integer.
func (m Message) GetInt(tag int) (int64, bool) {
	v, ok := m.Get(tag)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set appends a tag=value field, owning a copy of value (not a slice into
// any shared buffer) so builder-constructed messages are safe to mutate
// after the call returns.
func (m *Message) Set(tag int, value string) {
	m.Env.Fields = append(m.Env.Fields, pool.Field{Tag: tag, Value: []byte(value)})
}

// SetInt appends an integer-valued field.
func (m *Message) SetInt(tag int, value int64) {
	m.Set(tag, strconv.FormatInt(value, 10))
}

// All returns every field in wire order, including repeating-group
// entries the codec does not interpret.
func (m Message) All() []pool.Field { return m.Env.Fields }

// MsgType returns the parsed/decoded message type.
func (m Message) MsgType() string { return m.Env.MsgType }
