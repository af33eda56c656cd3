// Package dispatch implements the ioctl dispatcher (spec §4.7): it maps
// a parsed DRM ioctl request onto the pkg/kms object graph and commit
// engine, and builds the corresponding reply. It has no opinion on wire
// byte layout beyond the fixed structures in internal/wire that a real
// libdrm client would expect (mode-info, event, property-flag shapes);
// everything dispatch-specific is a plain Go struct, decoded from a
// transport.Request's head/tail by the caller (the daemon's per-File
// receive loop) before Dispatcher ever sees it.
package dispatch

import "github.com/ChengyuZhu6/drmcore/internal/wire"

// ResourcesReply is MODE_GETRESOURCES's reply.
type ResourcesReply struct {
	CrtcIDs      []uint32
	EncoderIDs   []uint32
	ConnectorIDs []uint32
	FbIDs        []uint32
	MinWidth, MaxWidth   uint32
	MinHeight, MaxHeight uint32
}

// GetConnectorRequest is MODE_GETCONNECTOR's input.
type GetConnectorRequest struct {
	ConnectorID uint32
	MaxModes    uint32 // 0 means "probe only, don't transmit the mode array"
}

// ConnectorReply is MODE_GETCONNECTOR's fixed-size half; the mode array and
// property id/value pairs are returned as separate slices (the "paired
// main/side-channel buffers" spec §4.7 calls for).
type ConnectorReply struct {
	ConnectorID     uint32
	ConnectorType   uint32
	EncoderID       uint32 // 0 if none
	Status          uint32
	PhysWidthMM     uint32
	PhysHeightMM    uint32
	Subpixel        uint32
	ModeCount       uint32
	PropertyValues  []PropValue
}

// PropValue is one (property_id, value) pair, the wire shape
// MODE_OBJ_GETPROPERTIES and MODE_GETCONNECTOR both emit.
type PropValue struct {
	PropertyID uint32
	Value      uint64
}

// EncoderReply is MODE_GETENCODER's reply.
type EncoderReply struct {
	EncoderID      uint32
	EncoderType    uint32
	CrtcID         uint32 // 0 if none
	PossibleCrtcs  uint32
	PossibleClones uint32
}

// PlaneReply is MODE_GETPLANE's fixed-size half; supported formats are
// returned as a separate slice.
type PlaneReply struct {
	PlaneID       uint32
	PossibleCrtcs uint32
	CrtcID        uint32 // 0 if none
	FbID          uint32 // 0 if none
	Formats       []uint32
}

// CrtcReply is MODE_GETCRTC's reply.
type CrtcReply struct {
	CrtcID    uint32
	FbID      uint32 // 0 if none
	X, Y      uint32
	ModeValid bool
	Mode      wire.ModeInfo
	GammaSize uint32
}

// SetCrtcRequest is MODE_SETCRTC's input, already resolved from wire ids to
// this request's own ids (the dispatcher resolves them against the
// Device/File before calling into kms).
type SetCrtcRequest struct {
	CrtcID       uint32
	FbID         uint32
	X, Y         uint32
	ConnectorIDs []uint32
	Mode         *wire.ModeInfo // nil disables the Crtc
}

// AddFBRequest is the legacy MODE_ADDFB input.
type AddFBRequest struct {
	Handle uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	BPP    uint32
	Depth  uint32
}

// AddFB2Request is MODE_ADDFB2's input.
type AddFB2Request struct {
	Handle      uint32
	Width       uint32
	Height      uint32
	Pitch       uint32
	Fourcc      uint32
	Modifier    uint64
	HasModifier bool // whether DRM_MODE_FB_MODIFIERS was set
}

// GetFB2Reply is MODE_GETFB2's reply.
type GetFB2Reply struct {
	Width, Height uint32
	Fourcc        uint32
	Modifier      uint64
}

// CursorRequest carries both MODE_CURSOR and MODE_CURSOR2's fields; SetBO
// requests a new cursor buffer (plus a move to X/Y), MoveOnly requests just
// the move. The caller derives both from the wire request's flags.
type CursorRequest struct {
	CrtcID   uint32
	SetBO    bool
	MoveOnly bool
	Handle   uint32
	Width    uint32
	Height   uint32
	X, Y     int32
}

// PageFlipRequest is MODE_PAGE_FLIP's input.
type PageFlipRequest struct {
	CrtcID    uint32
	FbID      uint32
	Flags     uint32
	UserData  uint64
}

// PropertyReply is MODE_GETPROPERTY's reply.
type PropertyReply struct {
	PropertyID uint32
	Name       string
	Flags      uint32
	IntMin, IntMax     uint64
	SIntMin, SIntMax   int64
	ObjectTypeFlags    uint32
	Enum               []wire.PropertyEnumPair
}

// AtomicRequest is MODE_ATOMIC's flattened (obj, prop, value) triples plus
// its flags.
type AtomicRequest struct {
	Flags      uint32
	UserData   uint64
	ObjectIDs  []uint32
	PropCounts []uint32 // per-object count of (propID,value) pairs that follow
	PropertyIDs []uint32
	Values      []uint64
}
