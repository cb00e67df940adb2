package fix

// Well-known FIX 4.4 tag numbers used by the codec, session, order manager,
// and market-data manager.
const (
	TagBeginString   = 8
	TagBodyLength    = 9
	TagMsgType       = 35
	TagCheckSum      = 10
	TagMsgSeqNum     = 34
	TagSenderCompID  = 49
	TagTargetCompID  = 56
	TagSendingTime   = 52
	TagPossDupFlag   = 43

	TagClOrdID        = 11
	TagOrigClOrdID    = 41
	TagOrderID        = 37
	TagSymbol         = 55
	TagSide           = 54
	TagTransactTime   = 60
	TagOrdType        = 40
	TagOrderQty       = 38
	TagPrice          = 44
	TagStopPx         = 99
	TagTimeInForce    = 59
	TagExpireTime     = 126
	TagHandlInst      = 21
	TagAlgorithmID    = 7928
	TagTradingCapacity = 1815

	TagOrdStatus   = 39
	TagExecType    = 150
	TagExecID      = 17
	TagCumQty      = 14
	TagAvgPx       = 6
	TagLastQty     = 32
	TagLastPx      = 31
	TagLeavesQty   = 151

	TagCxlRejReason      = 102
	TagCxlRejResponseTo  = 434
	TagText              = 58

	TagBeginSeqNo = 7
	TagEndSeqNo   = 16
	TagNewSeqNo   = 36
	TagGapFillFlag = 123

	TagHeartBtInt     = 108
	TagEncryptMethod  = 98
	TagResetSeqNumFlag = 141
	TagTestReqID      = 112

	TagMassCancelRequestType = 530
	TagMassCancelResponse    = 531

	TagMDReqID       = 262
	TagSubscriptionRequestType = 263
	TagMarketDepth   = 264
	TagNoMDEntryTypes = 267
	TagMDEntryType   = 269
	TagNoMDEntries   = 268
	TagMDEntryID     = 278
	TagMDUpdateAction = 279
	TagMDEntryPx     = 270
	TagMDEntrySize   = 271
)

// MsgType values (FIX tag 35).
const (
	MsgTypeHeartbeat          = "0"
	MsgTypeTestRequest        = "1"
	MsgTypeResendRequest      = "2"
	MsgTypeReject             = "3"
	MsgTypeSequenceReset      = "4"
	MsgTypeLogout             = "5"
	MsgTypeExecutionReport    = "8"
	MsgTypeOrderCancelReject  = "9"
	MsgTypeLogon              = "A"
	MsgTypeNewOrderSingle     = "D"
	MsgTypeOrderCancelRequest = "F"
	MsgTypeOrderCancelReplace = "G"
	MsgTypeMarketDataRequest  = "V"
	MsgTypeMarketDataSnapshot = "W"
	MsgTypeMarketDataIncRefresh = "X"
	MsgTypeOrderMassCancelRequest = "q"
)

// BeginString is the literal FIX 4.4 BeginString value.
const BeginString = "FIX.4.4"

// SOH is the single-byte FIX field delimiter.
const SOH = byte(0x01)
