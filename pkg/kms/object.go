// Package kms implements the device-independent core of a DRM/KMS mode
// setting server: the mode-object graph, the property registry, atomic
// state, and the Device that owns them. It has no knowledge of any real
// display hardware; that comes from a Driver supplied by the caller.
package kms

import (
	"context"

	"github.com/ChengyuZhu6/drmcore/internal/wire"
)

// ObjectType identifies the kind of a ModeObject, mirroring
// DRM_MODE_OBJECT_* without the UAPI's deliberately-ugly magic numbers;
// those are applied at the wire boundary in pkg/dispatch.
type ObjectType int

const (
	ObjectTypeConnector ObjectType = iota
	ObjectTypeEncoder
	ObjectTypeCrtc
	ObjectTypeFrameBuffer
	ObjectTypePlane
)

func (t ObjectType) String() string {
	switch t {
	case ObjectTypeConnector:
		return "connector"
	case ObjectTypeEncoder:
		return "encoder"
	case ObjectTypeCrtc:
		return "crtc"
	case ObjectTypeFrameBuffer:
		return "framebuffer"
	case ObjectTypePlane:
		return "plane"
	default:
		return "unknown"
	}
}

// Object is implemented by every member of the mode-object graph: Crtc,
// Encoder, Connector, FrameBuffer and Plane all carry a device-wide id and
// participate in property get/set.
type Object interface {
	ID() uint32
	Type() ObjectType

	// Assignments returns the object's current property values, for
	// MODE_OBJ_GETPROPERTIES and MODE_GETCONNECTOR's property list. An
	// atomic commit does not use it: AtomicState clones live state directly.
	Assignments(dev *Device) []Assignment
}

type base struct {
	id  uint32
	typ ObjectType
}

func (b *base) ID() uint32      { return b.id }
func (b *base) Type() ObjectType { return b.typ }

// MemoryHandle is an opaque host shared-memory handle: the core never
// interprets it, only forwards it to a Transport so a client can mmap an
// exported BufferObject (§6.1's memory() hook).
type MemoryHandle interface{}

// BufferObject is the minimal surface the core needs from a
// driver-allocated dumb buffer: its dimensions, byte size, the host memory
// backing it, and its mmap-offset slot, which the core assigns lazily and
// idempotently on first MODE_MAP_DUMB.
type BufferObject interface {
	Width() uint32
	Height() uint32
	Size() uint64
	// Memory returns the host shared-memory handle backing this BO and
	// the byte offset within it the BO's data starts at.
	Memory() (handle MemoryHandle, innerOffset uint64)
	Mapping() (offset uint64, ok bool)
	SetMapping(offset uint64)
}

// Blob is an immutable, client-opaque byte blob (e.g. a MODE_ID property's
// mode-info payload, or a plane's IN_FORMATS table).
type Blob struct {
	id   uint32
	data []byte
}

func (b *Blob) ID() uint32    { return b.id }
func (b *Blob) Size() int     { return len(b.data) }
func (b *Blob) Data() []byte  { return b.data }

// Encoder links a Connector to the set of Crtcs it can be driven by.
type Encoder struct {
	base

	encoderType   uint32
	possibleCrtcs []*Crtc
	possibleClones []*Encoder

	currentCrtc *Crtc
}

func (e *Encoder) EncoderType() uint32        { return e.encoderType }
func (e *Encoder) PossibleCrtcs() []*Crtc     { return e.possibleCrtcs }
func (e *Encoder) PossibleClones() []*Encoder { return e.possibleClones }
func (e *Encoder) CurrentCrtc() *Crtc         { return e.currentCrtc }
func (e *Encoder) SetCurrentCrtc(c *Crtc)     { e.currentCrtc = c }

func (e *Encoder) Assignments(dev *Device) []Assignment { return nil }

// Crtc drives one scanout timing generator. Its mutable, commit-visible
// state lives in CrtcState, reached through DrmState(); Crtc itself holds
// only the static topology a driver establishes at registration time.
type Crtc struct {
	base
	index int

	primaryPlane *Plane
	cursorPlane  *Plane

	state *CrtcState
}

// CrtcState is the copy-on-write, commit-visible state of a Crtc.
type CrtcState struct {
	crtc   *Crtc
	Active bool
	Mode   *Blob // nil when inactive
}

func (c *Crtc) Index() int            { return c.index }
func (c *Crtc) PrimaryPlane() *Plane  { return c.primaryPlane }
func (c *Crtc) CursorPlane() *Plane   { return c.cursorPlane }
func (c *Crtc) DrmState() *CrtcState  { return c.state }
func (c *Crtc) SetDrmState(s *CrtcState) { c.state = s }

func (c *Crtc) Assignments(dev *Device) []Assignment {
	return []Assignment{
		AssignmentInt(c, dev.ActiveProperty(), boolToUint64(c.state.Active)),
		AssignmentBlob(c, dev.ModeIDProperty(), c.state.Mode),
	}
}

func (cs *CrtcState) Crtc() *Crtc { return cs.crtc }

// Clone returns a shallow copy of cs bound to crtc, used by AtomicState's
// clone-on-first-touch logic.
func (cs *CrtcState) Clone(crtc *Crtc) *CrtcState {
	n := *cs
	n.crtc = crtc
	return &n
}

// Connector represents a physical or virtual display output.
type Connector struct {
	base
	connectorType   uint32
	physicalWidth   uint32
	physicalHeight  uint32
	subpixel        uint32
	currentStatus   uint32
	currentEncoder  *Encoder
	possibleEncoders []*Encoder
	modeList        []wire.ModeInfo

	// Probe, if non-nil, lets a driver re-enumerate this connector's
	// status and mode list asynchronously (e.g. reading EDID over a slow
	// bus). Device.ProbeConnector calls it with the request's context.
	Probe func(ctx context.Context) (status uint32, modes []wire.ModeInfo, err error)

	state *ConnectorState
}

// ConnectorState is the copy-on-write, commit-visible state of a
// Connector.
type ConnectorState struct {
	connector *Connector
	Crtc      *Crtc // nil when not attached
	DPMS      uint32
}

func (c *Connector) ConnectorType() uint32 { return c.connectorType }
func (c *Connector) PhysicalSize() (w, h uint32) { return c.physicalWidth, c.physicalHeight }
func (c *Connector) Subpixel() uint32 { return c.subpixel }
func (c *Connector) Status() uint32 { return c.currentStatus }
func (c *Connector) SetStatus(s uint32) { c.currentStatus = s }
func (c *Connector) CurrentEncoder() *Encoder { return c.currentEncoder }
func (c *Connector) SetCurrentEncoder(e *Encoder) { c.currentEncoder = e }
func (c *Connector) PossibleEncoders() []*Encoder { return c.possibleEncoders }
func (c *Connector) ModeList() []wire.ModeInfo { return c.modeList }
func (c *Connector) SetModeList(m []wire.ModeInfo) { c.modeList = m }
func (c *Connector) DrmState() *ConnectorState { return c.state }
func (c *Connector) SetDrmState(s *ConnectorState) { c.state = s }

func (c *Connector) Assignments(dev *Device) []Assignment {
	return []Assignment{
		AssignmentInt(c, dev.DPMSProperty(), uint64(c.state.DPMS)),
		AssignmentObject(c, dev.CrtcIDProperty(), crtcObject(c.state.Crtc)),
	}
}

func (cs *ConnectorState) Connector() *Connector { return cs.connector }

func (cs *ConnectorState) Clone(connector *Connector) *ConnectorState {
	n := *cs
	n.connector = connector
	return &n
}

// PlaneType classifies a Plane's role, mirroring the "type" property's
// enum (overlay/primary/cursor).
type PlaneType uint32

const (
	PlaneTypeOverlay PlaneType = wire.PlaneTypeOverlay
	PlaneTypePrimary PlaneType = wire.PlaneTypePrimary
	PlaneTypeCursor  PlaneType = wire.PlaneTypeCursor
)

// Plane is a hardware scanout layer: a rectangular region of a
// FrameBuffer, scaled and positioned onto a Crtc.
type Plane struct {
	base
	planeType     PlaneType
	possibleCrtcs []*Crtc
	formats       []uint32 // supported fourcc codes, for IN_FORMATS
	modifiers     []uint64 // supported modifiers, for IN_FORMATS

	currentFB *FrameBuffer

	state *PlaneState
}

// PlaneState is the copy-on-write, commit-visible state of a Plane. All
// four SRC_* fields are stored in 16.16 fixed point on the wire but as
// plain integers here; conversion happens at the property boundary so the
// rest of the core works in whole pixels.
type PlaneState struct {
	plane *Plane

	Crtc *Crtc
	FB   *FrameBuffer

	SrcX, SrcY, SrcW, SrcH     uint32
	CrtcX, CrtcY               int32
	CrtcW, CrtcH               uint32
}

func (p *Plane) PlaneType() PlaneType       { return p.planeType }
func (p *Plane) PossibleCrtcs() []*Crtc     { return p.possibleCrtcs }

// SetPossibleCrtcs overrides the Crtc membership MODE_GETPLANE reports, for
// bring-up code that registers a Plane before the Crtc it belongs to exists
// (AddCrtc itself requires its primary/cursor Planes up front).
func (p *Plane) SetPossibleCrtcs(crtcs []*Crtc) { p.possibleCrtcs = crtcs }
func (p *Plane) Formats() []uint32          { return p.formats }
func (p *Plane) Modifiers() []uint64        { return p.modifiers }
func (p *Plane) CurrentFrameBuffer() *FrameBuffer { return p.currentFB }
func (p *Plane) SetCurrentFrameBuffer(fb *FrameBuffer) { p.currentFB = fb }
func (p *Plane) DrmState() *PlaneState      { return p.state }
func (p *Plane) SetDrmState(s *PlaneState)  { p.state = s }

func (p *Plane) Assignments(dev *Device) []Assignment {
	st := p.state
	return []Assignment{
		AssignmentInt(p, dev.PlaneTypeProperty(), uint64(p.planeType)),
		AssignmentObject(p, dev.CrtcIDProperty(), crtcObject(st.Crtc)),
		AssignmentInt(p, dev.SrcHProperty(), uint64(st.SrcH)<<16),
		AssignmentInt(p, dev.SrcWProperty(), uint64(st.SrcW)<<16),
		AssignmentInt(p, dev.CrtcHProperty(), uint64(st.CrtcH)),
		AssignmentInt(p, dev.CrtcWProperty(), uint64(st.CrtcW)),
		AssignmentInt(p, dev.SrcXProperty(), uint64(st.SrcX)<<16),
		AssignmentInt(p, dev.SrcYProperty(), uint64(st.SrcY)<<16),
		AssignmentSignedInt(p, dev.CrtcXProperty(), int64(st.CrtcX)),
		AssignmentSignedInt(p, dev.CrtcYProperty(), int64(st.CrtcY)),
		AssignmentObject(p, dev.FbIDProperty(), frameBufferObject(st.FB)),
		AssignmentBlob(p, dev.InFormatsProperty(), p.inFormatsBlob(dev)),
	}
}

func (p *Plane) inFormatsBlob(dev *Device) *Blob {
	b, ok := dev.blobForPlane(p)
	if ok {
		return b
	}
	return nil
}

func (ps *PlaneState) Plane() *Plane { return ps.plane }
func (ps *PlaneState) Type() PlaneType { return ps.plane.planeType }

func (ps *PlaneState) Clone(plane *Plane) *PlaneState {
	n := *ps
	n.plane = plane
	return &n
}

// FrameBuffer wraps a driver-allocated BufferObject with the metadata KMS
// needs: dimensions, pitch, pixel format and (optionally) a modifier.
type FrameBuffer struct {
	base

	Width, Height uint32
	Pitch         uint32
	Fourcc        uint32
	Modifier      uint64
	BO            BufferObject

	notifyDirty func(ctx context.Context) error
}

func (fb *FrameBuffer) Assignments(dev *Device) []Assignment { return nil }

// NotifyDirty invokes the driver's dirty-region callback, if any,
// signalling that userspace has written new pixel data into this
// framebuffer's backing store outside of a commit (MODE_DIRTYFB).
func (fb *FrameBuffer) NotifyDirty(ctx context.Context) error {
	if fb.notifyDirty == nil {
		return nil
	}
	return fb.notifyDirty(ctx)
}

func crtcObject(c *Crtc) Object {
	if c == nil {
		return nil
	}
	return c
}

func frameBufferObject(fb *FrameBuffer) Object {
	if fb == nil {
		return nil
	}
	return fb
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
