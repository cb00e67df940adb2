package fix

// requiredTags lists the message-type-specific required fields validate()
// checks, per §4.2.
var requiredTags = map[string][]int{
	MsgTypeNewOrderSingle:     {TagClOrdID, TagHandlInst, TagSymbol, TagSide, TagTransactTime, TagOrdType},
	MsgTypeOrderCancelRequest: {TagClOrdID, TagOrigClOrdID, TagSymbol, TagSide, TagTransactTime},
	MsgTypeOrderCancelReplace: {TagClOrdID, TagOrigClOrdID, TagSymbol, TagSide, TagTransactTime, TagOrdType, TagOrderQty},
	MsgTypeExecutionReport:    {TagOrderID, TagExecID, TagExecType, TagOrdStatus, TagSymbol, TagSide},
}

// Validate checks that m carries every tag required for its message type.
// Message types with no entry in requiredTags (session-level messages:
// Logon, Heartbeat, etc.) always pass — their required fields are the
// fixed header ones the codec already enforces.
func Validate(m Message) error {
	tags, ok := requiredTags[m.MsgType()]
	if !ok {
		return nil
	}
	for _, tag := range tags {
		if _, present := m.Get(tag); !present {
			return &ValidationError{MsgType: m.MsgType(), MissingTag: tag}
		}
	}
	return nil
}
