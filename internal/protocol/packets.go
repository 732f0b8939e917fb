// Package protocol implements the framing layer of the game link: a
// length-delimited frame assembler, the message-type dispatcher and the
// helpers used to build frames for replay and tests. Frame headers are
// big-endian with a 4-byte length prefix that covers the whole frame.
package protocol

// MessageType is the low 15 bits of the frame type word.
type MessageType uint16

const (
	MsgNone      MessageType = 0
	MsgCall      MessageType = 1
	MsgNotify    MessageType = 2
	MsgReturn    MessageType = 3
	MsgEcho      MessageType = 4
	MsgFrameUp   MessageType = 5
	MsgFrameDown MessageType = 6
)

var messageTypeStrings = map[MessageType]string{
	MsgNone:      "none",
	MsgCall:      "call",
	MsgNotify:    "notify",
	MsgReturn:    "return",
	MsgEcho:      "echo",
	MsgFrameUp:   "frame_up",
	MsgFrameDown: "frame_down",
}

// String returns the lowercase name of the message type.
func (t MessageType) String() string {
	if s, ok := messageTypeStrings[t]; ok {
		return s
	}
	return "unknown"
}

const (
	// LengthPrefixSize is the size of the big-endian frame length.
	LengthPrefixSize = 4

	// TypeWordSize is the size of the type/flags word after the length.
	TypeWordSize = 2

	// MinFrameSize is the smallest valid frame: length prefix plus type word.
	MinFrameSize = LengthPrefixSize + TypeWordSize

	// DefaultMaxFrameSize is the upper bound on a declared frame length.
	DefaultMaxFrameSize = 1 << 20

	// CompressedFlag marks a zstd-compressed payload in the type word.
	CompressedFlag uint16 = 0x8000

	// TypeMask selects the message type from the type word.
	TypeMask uint16 = 0x7fff
)

// ServiceUUID identifies the game-world service whose notifications carry
// combat and entity sync data.
const ServiceUUID uint64 = 0x0000000063335342

// Notify method ids of the game-world service.
const (
	MethodSyncNearEntities       uint32 = 0x06
	MethodSyncContainerData      uint32 = 0x15
	MethodSyncContainerDirtyData uint32 = 0x16
	MethodSyncServerTime         uint32 = 0x2b
	MethodSyncNearDeltaInfo      uint32 = 0x2d
	MethodSyncToMeDeltaInfo      uint32 = 0x2e
)

// Notify is a decoded notification header with its (decompressed) body.
type Notify struct {
	ServiceUUID uint64
	StubID      uint32
	MethodID    uint32
	Compressed  bool
	Body        []byte
}
