package wire

// Transport message ids (outer frame layer).
const (
	IDScout     byte = 0x01
	IDHello     byte = 0x02
	IDInit      byte = 0x03
	IDOpen      byte = 0x04
	IDClose     byte = 0x05
	IDKeepAlive byte = 0x06
	IDFrame     byte = 0x07
)

// Zenoh message ids (carried inside a FRAME's payload).
const (
	IDDeclare      byte = 0x01
	IDData         byte = 0x02
	IDUnit         byte = 0x03
	IDPull         byte = 0x04
	IDQuery        byte = 0x05
	IDReplyContext byte = 0x06 // decorator, precedes the DATA/UNIT it decorates
	IDAttachment   byte = 0x07 // decorator, precedes the message it decorates
)

// Declaration ids (carried inside a DECLARE body).
const (
	DeclResource         byte = 0x01
	DeclForgetResource   byte = 0x02
	DeclPublisher        byte = 0x03
	DeclForgetPublisher  byte = 0x04
	DeclSubscriber       byte = 0x05
	DeclForgetSubscriber byte = 0x06
	DeclQueryable        byte = 0x07
	DeclForgetQueryable  byte = 0x08
)

// CloseReason values carried in a CLOSE message body.
type CloseReason byte

const (
	CloseGeneric     CloseReason = 0
	CloseInvalid     CloseReason = 1
	CloseUnsupported CloseReason = 2
	CloseExpired     CloseReason = 3
	CloseMaxSessions CloseReason = 4
	CloseMaxLinks    CloseReason = 5
)

// SubMode distinguishes push delivery from pull-on-demand delivery,
// carried in a SUBSCRIBER declaration's SubInfo (Z_S).
type SubMode byte

const (
	SubModePush SubMode = 0
	SubModePull SubMode = 1
)

// Target selects which matching queryables a QUERY addresses. The
// zero value is ALL, the default when Z_Q is unset.
type Target byte

const (
	TargetAll        Target = 0
	TargetBestMatch  Target = 1
	TargetComplete   Target = 2
)

// Consolidation selects how a query engine merges replies from
// multiple queryables.
type Consolidation byte

const (
	ConsolidationNone Consolidation = 0
	ConsolidationLazy Consolidation = 1
	ConsolidationFull Consolidation = 2
)

// CongestionControl selects the outbound behavior when a lane's
// window is full: Block waits, Drop discards the message.
type CongestionControl byte

const (
	CongestionBlock CongestionControl = 0
	CongestionDrop  CongestionControl = 1
)
