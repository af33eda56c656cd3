package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ChengyuZhu6/drmcore/internal/wire"
	"github.com/ChengyuZhu6/drmcore/pkg/kms"
	"github.com/ChengyuZhu6/drmcore/pkg/transport"
)

// Dispatcher turns a parsed ioctl request into calls against a shared
// kms.Device and a request's kms.File, matching spec §4.7 one method per
// command. It holds no per-connection state of its own; that lives in the
// File the caller passes to each method.
type Dispatcher struct {
	dev *kms.Device
	log zerolog.Logger
}

// New constructs a Dispatcher bound to dev.
func New(dev *kms.Device, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{dev: dev, log: log}
}

// Errno maps a kms sentinel error onto the ioctl return code a Transport's
// caller should translate into a negative-errno reply, per spec §7.
func Errno(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, kms.ErrWouldBlock):
		return wire.ErrnoAgain
	case errors.Is(err, kms.ErrNoBackingDevice), errors.Is(err, kms.ErrIllegalArgument):
		return wire.ErrnoInvalid
	default:
		return wire.ErrnoInvalid
	}
}

// ---- VERSION / GET_CAP / SET_CLIENT_CAP -----------------------------------

// Version answers DRM_IOCTL_VERSION.
func (d *Dispatcher) Version() (major, minor, patch int, name, desc, date string) {
	major, minor, patch = d.dev.DriverVersion()
	name, desc, date = d.dev.DriverInfo()
	return
}

// GetCap answers DRM_IOCTL_GET_CAP.
func (d *Dispatcher) GetCap(capID uint64) (uint64, error) {
	switch capID {
	case wire.CapDumbBuffer, wire.CapTimestampMono, wire.CapCrtcInVBlankEvt:
		return 1, nil
	case wire.CapCursorWidth:
		return uint64(d.dev.CursorWidth()), nil
	case wire.CapCursorHeight:
		return uint64(d.dev.CursorHeight()), nil
	case wire.CapPrime:
		return wire.PrimeCapImport | wire.PrimeCapExport, nil
	case wire.CapAddFB2Modifiers:
		if d.dev.AddFB2ModifiersSupported() {
			return 1, nil
		}
		return 0, nil
	default:
		d.log.Debug().Uint64("cap", capID).Msg("dispatch: unknown GET_CAP")
		return 0, kms.ErrIllegalArgument
	}
}

// SetClientCap answers DRM_IOCTL_SET_CLIENT_CAP.
func (d *Dispatcher) SetClientCap(f *kms.File, capID, val uint64) error {
	return f.SetClientCap(capID, val)
}

// ---- MODE_GETRESOURCES -----------------------------------------------------

// GetResources answers MODE_GETRESOURCES.
func (d *Dispatcher) GetResources(f *kms.File) ResourcesReply {
	var reply ResourcesReply
	for _, c := range d.dev.Crtcs() {
		reply.CrtcIDs = append(reply.CrtcIDs, c.ID())
	}
	for _, e := range d.dev.Encoders() {
		reply.EncoderIDs = append(reply.EncoderIDs, e.ID())
	}
	for _, c := range d.dev.Connectors() {
		reply.ConnectorIDs = append(reply.ConnectorIDs, c.ID())
	}
	for _, fb := range f.FrameBuffers() {
		reply.FbIDs = append(reply.FbIDs, fb.ID())
	}
	reply.MinWidth, reply.MinHeight, reply.MaxWidth, reply.MaxHeight = d.dev.DimensionLimits()
	return reply
}

// ---- MODE_GETCONNECTOR ------------------------------------------------------

// GetConnector answers MODE_GETCONNECTOR. modes is truncated to
// req.MaxModes; a MaxModes of 0 triggers a driver probe and transmits no
// modes, matching libdrm's two-call count-then-fetch pattern.
func (d *Dispatcher) GetConnector(ctx context.Context, req GetConnectorRequest) (ConnectorReply, []wire.ModeInfo, error) {
	obj, ok := d.dev.Object(req.ConnectorID)
	if !ok {
		return ConnectorReply{}, nil, fmt.Errorf("dispatch: %w: unknown connector %d", kms.ErrIllegalArgument, req.ConnectorID)
	}
	conn, ok := obj.(*kms.Connector)
	if !ok {
		return ConnectorReply{}, nil, fmt.Errorf("dispatch: %w: object %d is not a connector", kms.ErrIllegalArgument, req.ConnectorID)
	}
	if req.MaxModes == 0 {
		if err := d.dev.ProbeConnector(ctx, conn); err != nil {
			return ConnectorReply{}, nil, fmt.Errorf("dispatch: probing connector %d: %w", req.ConnectorID, err)
		}
	}
	reply := ConnectorReply{
		ConnectorID:   conn.ID(),
		ConnectorType: conn.ConnectorType(),
		Status:        conn.Status(),
		Subpixel:      conn.Subpixel(),
		ModeCount:     uint32(len(conn.ModeList())),
	}
	reply.PhysWidthMM, reply.PhysHeightMM = conn.PhysicalSize()
	if e := conn.CurrentEncoder(); e != nil {
		reply.EncoderID = e.ID()
	}
	for _, a := range conn.Assignments(d.dev) {
		reply.PropertyValues = append(reply.PropertyValues, PropValue{PropertyID: a.Property.ID(), Value: kms.AssignmentWireValue(a)})
	}

	var modes []wire.ModeInfo
	if req.MaxModes > 0 {
		all := conn.ModeList()
		n := req.MaxModes
		if uint32(len(all)) < n {
			n = uint32(len(all))
		}
		modes = append(modes, all[:n]...)
	}
	return reply, modes, nil
}

// ---- MODE_GETENCODER --------------------------------------------------------

// GetEncoder answers MODE_GETENCODER.
func (d *Dispatcher) GetEncoder(encoderID uint32) (EncoderReply, error) {
	obj, ok := d.dev.Object(encoderID)
	if !ok {
		return EncoderReply{}, fmt.Errorf("dispatch: %w: unknown encoder %d", kms.ErrIllegalArgument, encoderID)
	}
	enc, ok := obj.(*kms.Encoder)
	if !ok {
		return EncoderReply{}, fmt.Errorf("dispatch: %w: object %d is not an encoder", kms.ErrIllegalArgument, encoderID)
	}
	reply := EncoderReply{
		EncoderID:      enc.ID(),
		EncoderType:    enc.EncoderType(),
		PossibleCrtcs:  kms.PossibleCrtcMask(enc.PossibleCrtcs()),
		PossibleClones: kms.PossibleEncoderMask(d.dev.Encoders(), enc.PossibleClones()),
	}
	if c := enc.CurrentCrtc(); c != nil {
		reply.CrtcID = c.ID()
	}
	return reply, nil
}

// ---- MODE_GETPLANE / MODE_GETPLANERESOURCES ---------------------------------

// GetPlane answers MODE_GETPLANE.
func (d *Dispatcher) GetPlane(planeID uint32) (PlaneReply, error) {
	obj, ok := d.dev.Object(planeID)
	if !ok {
		return PlaneReply{}, fmt.Errorf("dispatch: %w: unknown plane %d", kms.ErrIllegalArgument, planeID)
	}
	p, ok := obj.(*kms.Plane)
	if !ok {
		return PlaneReply{}, fmt.Errorf("dispatch: %w: object %d is not a plane", kms.ErrIllegalArgument, planeID)
	}
	st := p.DrmState()
	reply := PlaneReply{
		PlaneID:       p.ID(),
		PossibleCrtcs: kms.PossibleCrtcMask(p.PossibleCrtcs()),
		Formats:       append([]uint32(nil), p.Formats()...),
	}
	if st.Crtc != nil {
		reply.CrtcID = st.Crtc.ID()
	}
	if st.FB != nil {
		reply.FbID = st.FB.ID()
	}
	return reply, nil
}

// GetPlaneResources answers MODE_GETPLANERESOURCES: every Crtc's primary
// plane, plus its cursor plane when present.
func (d *Dispatcher) GetPlaneResources() []uint32 {
	var ids []uint32
	for _, c := range d.dev.Crtcs() {
		ids = append(ids, c.PrimaryPlane().ID())
		if cursor := c.CursorPlane(); cursor != nil {
			ids = append(ids, cursor.ID())
		}
	}
	return ids
}

// ---- MODE_GETCRTC / MODE_SETCRTC -------------------------------------------

// GetCrtc answers MODE_GETCRTC.
func (d *Dispatcher) GetCrtc(crtcID uint32) (CrtcReply, error) {
	obj, ok := d.dev.Object(crtcID)
	if !ok {
		return CrtcReply{}, fmt.Errorf("dispatch: %w: unknown crtc %d", kms.ErrIllegalArgument, crtcID)
	}
	crtc, ok := obj.(*kms.Crtc)
	if !ok {
		return CrtcReply{}, fmt.Errorf("dispatch: %w: object %d is not a crtc", kms.ErrIllegalArgument, crtcID)
	}
	reply := CrtcReply{CrtcID: crtc.ID()}
	st := crtc.DrmState()
	if st.Mode == nil {
		return reply, nil
	}
	mi, ok := wire.DecodeModeInfo(st.Mode.Data())
	if !ok {
		return CrtcReply{}, fmt.Errorf("dispatch: crtc %d holds a malformed mode blob", crtcID)
	}
	reply.ModeValid = true
	reply.Mode = mi
	primary := crtc.PrimaryPlane()
	pst := primary.DrmState()
	reply.X, reply.Y = pst.SrcX, pst.SrcY
	if pst.FB != nil {
		reply.FbID = pst.FB.ID()
	}
	return reply, nil
}

// SetCrtc answers MODE_SETCRTC: the legacy mode-set path (§4.4).
func (d *Dispatcher) SetCrtc(ctx context.Context, req SetCrtcRequest) error {
	obj, ok := d.dev.Object(req.CrtcID)
	if !ok {
		return fmt.Errorf("dispatch: %w: unknown crtc %d", kms.ErrIllegalArgument, req.CrtcID)
	}
	crtc, ok := obj.(*kms.Crtc)
	if !ok {
		return fmt.Errorf("dispatch: %w: object %d is not a crtc", kms.ErrIllegalArgument, req.CrtcID)
	}

	legacy := kms.SetCrtcRequest{Crtc: crtc, X: req.X, Y: req.Y, Mode: req.Mode}
	if req.Mode != nil {
		fbObj, ok := d.dev.Object(req.FbID)
		if !ok {
			return fmt.Errorf("dispatch: %w: unknown fb %d", kms.ErrIllegalArgument, req.FbID)
		}
		fb, ok := fbObj.(*kms.FrameBuffer)
		if !ok {
			return fmt.Errorf("dispatch: %w: object %d is not a framebuffer", kms.ErrIllegalArgument, req.FbID)
		}
		legacy.FB = fb
		for _, id := range req.ConnectorIDs {
			cObj, ok := d.dev.Object(id)
			if !ok {
				return fmt.Errorf("dispatch: %w: unknown connector %d", kms.ErrIllegalArgument, id)
			}
			conn, ok := cObj.(*kms.Connector)
			if !ok {
				return fmt.Errorf("dispatch: %w: object %d is not a connector", kms.ErrIllegalArgument, id)
			}
			legacy.Connectors = append(legacy.Connectors, conn)
		}
	}
	return d.dev.LegacySetCrtc(ctx, legacy)
}

// ---- Framebuffers -----------------------------------------------------------

// AddFB answers the legacy MODE_ADDFB.
func (d *Dispatcher) AddFB(ctx context.Context, f *kms.File, req AddFBRequest) (uint32, error) {
	bo, ok := f.ResolveHandle(req.Handle)
	if !ok {
		return 0, fmt.Errorf("dispatch: %w: unknown handle %d", kms.ErrIllegalArgument, req.Handle)
	}
	fourcc, err := wire.ConvertLegacyFormat(req.BPP, req.Depth)
	if err != nil {
		return 0, fmt.Errorf("dispatch: %w: %v", kms.ErrIllegalArgument, err)
	}
	fb, err := d.dev.CreateFrameBuffer(ctx, bo, req.Width, req.Height, fourcc, req.Pitch, 0)
	if err != nil {
		return 0, err
	}
	f.AttachFrameBuffer(fb)
	return fb.ID(), nil
}

// AddFB2 answers MODE_ADDFB2. A modifier is only honoured when
// req.HasModifier is set (DRM_MODE_FB_MODIFIERS), per spec §8.3; otherwise
// it is overridden to 0 (LINEAR) regardless of the field's value.
func (d *Dispatcher) AddFB2(ctx context.Context, f *kms.File, req AddFB2Request) (uint32, error) {
	bo, ok := f.ResolveHandle(req.Handle)
	if !ok {
		return 0, fmt.Errorf("dispatch: %w: unknown handle %d", kms.ErrIllegalArgument, req.Handle)
	}
	modifier := uint64(0)
	if req.HasModifier {
		modifier = req.Modifier
	}
	fb, err := d.dev.CreateFrameBuffer(ctx, bo, req.Width, req.Height, req.Fourcc, req.Pitch, modifier)
	if err != nil {
		return 0, err
	}
	f.AttachFrameBuffer(fb)
	return fb.ID(), nil
}

// GetFB2 answers MODE_GETFB2.
func (d *Dispatcher) GetFB2(fbID uint32) (GetFB2Reply, error) {
	obj, ok := d.dev.Object(fbID)
	if !ok {
		return GetFB2Reply{}, fmt.Errorf("dispatch: %w: unknown fb %d", kms.ErrIllegalArgument, fbID)
	}
	fb, ok := obj.(*kms.FrameBuffer)
	if !ok {
		return GetFB2Reply{}, fmt.Errorf("dispatch: %w: object %d is not a framebuffer", kms.ErrIllegalArgument, fbID)
	}
	return GetFB2Reply{Width: fb.Width, Height: fb.Height, Fourcc: fb.Fourcc, Modifier: fb.Modifier}, nil
}

// RmFB answers MODE_RMFB: detach from f's list. Per the Open Question
// decision, any Plane still referencing this fb keeps a stale reference
// until its next commit.
func (d *Dispatcher) RmFB(f *kms.File, fbID uint32) error {
	if _, ok := f.DetachFrameBuffer(fbID); !ok {
		return fmt.Errorf("dispatch: %w: fb %d not attached to this file", kms.ErrIllegalArgument, fbID)
	}
	return nil
}

// DirtyFB answers MODE_DIRTYFB.
func (d *Dispatcher) DirtyFB(ctx context.Context, fbID uint32) error {
	obj, ok := d.dev.Object(fbID)
	if !ok {
		return fmt.Errorf("dispatch: %w: unknown fb %d", kms.ErrIllegalArgument, fbID)
	}
	fb, ok := obj.(*kms.FrameBuffer)
	if !ok {
		return fmt.Errorf("dispatch: %w: object %d is not a framebuffer", kms.ErrIllegalArgument, fbID)
	}
	return fb.NotifyDirty(ctx)
}

// ---- Dumb buffers -----------------------------------------------------------

// CreateDumb answers MODE_CREATE_DUMB: allocate, install its mapping, and
// hand the caller a fresh File-local handle.
func (d *Dispatcher) CreateDumb(ctx context.Context, f *kms.File, width, height, bpp uint32) (handle, pitch uint32, size uint64, err error) {
	bo, pitch, err := d.dev.CreateDumb(ctx, width, height, bpp)
	if err != nil {
		return 0, 0, 0, err
	}
	d.dev.InstallMapping(bo)
	handle, err = f.CreateHandle(bo)
	if err != nil {
		return 0, 0, 0, err
	}
	return handle, pitch, bo.Size(), nil
}

// MapDumb answers MODE_MAP_DUMB.
func (d *Dispatcher) MapDumb(f *kms.File, handle uint32) (uint64, error) {
	bo, ok := f.ResolveHandle(handle)
	if !ok {
		return 0, fmt.Errorf("dispatch: %w: unknown handle %d", kms.ErrIllegalArgument, handle)
	}
	return d.dev.InstallMapping(bo), nil
}

// DestroyDumb answers MODE_DESTROY_DUMB and GEM_CLOSE alike: both just drop
// the File's handle.
func (d *Dispatcher) DestroyDumb(f *kms.File, handle uint32) error {
	return f.CloseHandle(handle)
}

// ---- Cursor -----------------------------------------------------------------

// Cursor answers MODE_CURSOR/MODE_CURSOR2, desugaring per req's SetBO/
// MoveOnly flags into Assignments against the Crtc's cursor plane and
// running them as a single commit.
func (d *Dispatcher) Cursor(ctx context.Context, f *kms.File, req CursorRequest) error {
	obj, ok := d.dev.Object(req.CrtcID)
	if !ok {
		return fmt.Errorf("dispatch: %w: unknown crtc %d", kms.ErrIllegalArgument, req.CrtcID)
	}
	crtc, ok := obj.(*kms.Crtc)
	if !ok {
		return fmt.Errorf("dispatch: %w: object %d is not a crtc", kms.ErrIllegalArgument, req.CrtcID)
	}

	var assignments []kms.Assignment
	if req.SetBO {
		a, err := d.dev.CursorBOAssignments(ctx, f, crtc, req.Handle, req.Width, req.Height)
		if err != nil {
			return err
		}
		assignments = append(assignments, a...)
	}
	if req.SetBO || req.MoveOnly {
		a, err := d.dev.CursorMoveAssignments(crtc, req.X, req.Y)
		if err != nil {
			return err
		}
		assignments = append(assignments, a...)
	}
	if len(assignments) == 0 {
		return nil
	}
	return d.dev.CommitNow(ctx, assignments)
}

// ---- Page flip --------------------------------------------------------------

// PageFlip answers MODE_PAGE_FLIP. emit, if non-nil, is called with the
// Crtc's id once the flip lands, provided req requested an event.
func (d *Dispatcher) PageFlip(ctx context.Context, req PageFlipRequest, emit func(crtcID uint32)) error {
	obj, ok := d.dev.Object(req.CrtcID)
	if !ok {
		return fmt.Errorf("dispatch: %w: unknown crtc %d", kms.ErrIllegalArgument, req.CrtcID)
	}
	crtc, ok := obj.(*kms.Crtc)
	if !ok {
		return fmt.Errorf("dispatch: %w: object %d is not a crtc", kms.ErrIllegalArgument, req.CrtcID)
	}
	fbObj, ok := d.dev.Object(req.FbID)
	if !ok {
		return fmt.Errorf("dispatch: %w: unknown fb %d", kms.ErrIllegalArgument, req.FbID)
	}
	fb, ok := fbObj.(*kms.FrameBuffer)
	if !ok {
		return fmt.Errorf("dispatch: %w: object %d is not a framebuffer", kms.ErrIllegalArgument, req.FbID)
	}
	wantEvent := req.Flags&wire.PageFlipEvent != 0
	return d.dev.PageFlip(ctx, crtc, fb, wantEvent, req.UserData, emit)
}

// ---- Properties and blobs ---------------------------------------------------

// ObjGetProperties answers MODE_OBJ_GETPROPERTIES. Object kinds the
// dispatcher has no property binding for (Encoder, FrameBuffer) return an
// empty list, matching their Assignments() returning nil.
func (d *Dispatcher) ObjGetProperties(objID uint32) ([]PropValue, error) {
	obj, ok := d.dev.Object(objID)
	if !ok {
		return nil, fmt.Errorf("dispatch: %w: unknown object %d", kms.ErrIllegalArgument, objID)
	}
	var out []PropValue
	for _, a := range obj.Assignments(d.dev) {
		out = append(out, PropValue{PropertyID: a.Property.ID(), Value: kms.AssignmentWireValue(a)})
	}
	return out, nil
}

// GetProperty answers MODE_GETPROPERTY.
func (d *Dispatcher) GetProperty(propID uint32) (PropertyReply, error) {
	p, ok := d.dev.PropertyByID(propID)
	if !ok {
		return PropertyReply{}, fmt.Errorf("dispatch: %w: unknown property %d", kms.ErrIllegalArgument, propID)
	}
	reply := PropertyReply{PropertyID: p.ID(), Name: p.Name()}
	isIntRange := p.Kind() == kms.KindIntRange
	isSignedRange := p.Kind() == kms.KindSignedRange
	isEnum := p.Kind() == kms.KindEnum
	isObject := p.Kind() == kms.KindObject
	isBlob := p.Kind() == kms.KindBlob
	reply.Flags = wire.PropertyFlags(isIntRange, isSignedRange, isEnum, isObject, isBlob, p.Immutable())

	switch {
	case isIntRange:
		reply.IntMin, reply.IntMax = p.IntRange()
	case isSignedRange:
		reply.SIntMin, reply.SIntMax = p.SignedRange()
	case isObject:
		for _, t := range p.ObjectTypes() {
			reply.ObjectTypeFlags |= wireObjectType(t)
		}
	case isEnum:
		for _, e := range p.Enum() {
			reply.Enum = append(reply.Enum, wire.PropertyEnumPair{Value: e.Value, Name: e.Name})
		}
	}
	return reply, nil
}

// SetProperty answers MODE_SETPROPERTY: a single-Assignment commit.
func (d *Dispatcher) SetProperty(ctx context.Context, objID, propID uint32, value uint64) error {
	obj, ok := d.dev.Object(objID)
	if !ok {
		return fmt.Errorf("dispatch: %w: unknown object %d", kms.ErrIllegalArgument, objID)
	}
	prop, ok := d.dev.PropertyByID(propID)
	if !ok {
		return fmt.Errorf("dispatch: %w: unknown property %d", kms.ErrIllegalArgument, propID)
	}
	a, err := d.dev.AssignmentFromWire(obj, prop, value)
	if err != nil {
		return err
	}
	return d.dev.CommitNow(ctx, []kms.Assignment{a})
}

// GetPropBlob answers MODE_GETPROPBLOB.
func (d *Dispatcher) GetPropBlob(blobID uint32) ([]byte, error) {
	b, ok := d.dev.FindBlob(blobID)
	if !ok {
		return nil, fmt.Errorf("dispatch: %w: unknown blob %d", kms.ErrIllegalArgument, blobID)
	}
	return b.Data(), nil
}

// CreatePropBlob answers MODE_CREATEPROPBLOB.
func (d *Dispatcher) CreatePropBlob(data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("dispatch: %w: zero-length blob", kms.ErrIllegalArgument)
	}
	b, err := d.dev.RegisterBlob(data)
	if err != nil {
		return 0, err
	}
	return b.ID(), nil
}

// DestroyPropBlob answers MODE_DESTROYPROPBLOB.
func (d *Dispatcher) DestroyPropBlob(blobID uint32) error {
	if !d.dev.DeleteBlob(blobID) {
		return fmt.Errorf("dispatch: %w: unknown blob %d", kms.ErrIllegalArgument, blobID)
	}
	return nil
}

// ---- Atomic -----------------------------------------------------------------

const atomicValidFlags = wire.PageFlipEvent | wire.AtomicTestOnly | wire.AtomicNonBlock | wire.AtomicAllowModeset

// Atomic answers MODE_ATOMIC. touched reports the Crtc ids the resulting
// commit (or test) actually clones state for; emit is called once per
// touched Crtc after a successful non-test-only commit when
// PAGE_FLIP_EVENT was requested.
func (d *Dispatcher) Atomic(ctx context.Context, f *kms.File, req AtomicRequest, emit func(crtcID uint32)) (touched []uint32, err error) {
	if req.Flags&^atomicValidFlags != 0 {
		return nil, fmt.Errorf("dispatch: %w: unknown ATOMIC flag bits 0x%x", kms.ErrIllegalArgument, req.Flags&^atomicValidFlags)
	}
	testOnly := req.Flags&wire.AtomicTestOnly != 0
	nonBlock := req.Flags&wire.AtomicNonBlock != 0
	wantEvent := req.Flags&wire.PageFlipEvent != 0
	if testOnly && wantEvent {
		return nil, fmt.Errorf("dispatch: %w: TEST_ONLY and PAGE_FLIP_EVENT are mutually exclusive", kms.ErrIllegalArgument)
	}
	if !f.AtomicCap() {
		return nil, fmt.Errorf("dispatch: %w: file has not enabled the ATOMIC client cap", kms.ErrIllegalArgument)
	}

	assignments, err := d.buildAtomicAssignments(req)
	if err != nil {
		return nil, err
	}

	crtcs, _, err := d.dev.AtomicCommit(ctx, assignments, testOnly, nonBlock, wantEvent, emit)
	if err != nil {
		return nil, err
	}
	for _, c := range crtcs {
		touched = append(touched, c.ID())
	}
	return touched, nil
}

// buildAtomicAssignments expands req's flattened (obj, prop-count,
// prop-id, value) arrays into Assignments, resolving every object and
// property id against the Device.
func (d *Dispatcher) buildAtomicAssignments(req AtomicRequest) ([]kms.Assignment, error) {
	if len(req.PropCounts) != len(req.ObjectIDs) {
		return nil, fmt.Errorf("dispatch: %w: ATOMIC object/prop-count array length mismatch", kms.ErrIllegalArgument)
	}
	var assignments []kms.Assignment
	cursor := 0
	for i, objID := range req.ObjectIDs {
		obj, ok := d.dev.Object(objID)
		if !ok {
			return nil, fmt.Errorf("dispatch: %w: unknown object %d", kms.ErrIllegalArgument, objID)
		}
		n := int(req.PropCounts[i])
		if cursor+n > len(req.PropertyIDs) || cursor+n > len(req.Values) {
			return nil, fmt.Errorf("dispatch: %w: ATOMIC property array shorter than prop-count sum", kms.ErrIllegalArgument)
		}
		for j := 0; j < n; j++ {
			prop, ok := d.dev.PropertyByID(req.PropertyIDs[cursor+j])
			if !ok {
				return nil, fmt.Errorf("dispatch: %w: unknown property %d", kms.ErrIllegalArgument, req.PropertyIDs[cursor+j])
			}
			a, err := d.dev.AssignmentFromWire(obj, prop, req.Values[cursor+j])
			if err != nil {
				return nil, err
			}
			assignments = append(assignments, a)
		}
		cursor += n
	}
	return assignments, nil
}

// ---- PRIME ------------------------------------------------------------------

// PrimeHandleToFD answers PRIME_HANDLE_TO_FD: resolve handle, serve its
// backing memory over a fresh lane, register that lane's credentials
// against the BO in the Device's PRIME export table, and hand back the fd.
// conn is the same transport.Conn the dispatcher's caller received the
// request on.
func (d *Dispatcher) PrimeHandleToFD(f *kms.File, conn transport.Conn, handle uint32) (int, error) {
	bo, ok := f.ResolveHandle(handle)
	if !ok {
		return 0, fmt.Errorf("dispatch: %w: unknown handle %d", kms.ErrIllegalArgument, handle)
	}
	memHandle, _ := bo.Memory()
	fd, err := conn.ServeBufferObject(memHandle, bo.Size())
	if err != nil {
		return 0, fmt.Errorf("dispatch: serving PRIME lane: %w", err)
	}
	creds, err := conn.Credentials()
	if err != nil {
		return 0, fmt.Errorf("dispatch: deriving PRIME credentials: %w", err)
	}
	if _, err := f.ExportBufferObject(handle, creds); err != nil {
		return 0, err
	}
	return fd, nil
}

// PrimeFDToHandle answers PRIME_FD_TO_HANDLE: creds identifies the sending
// lane (extracted by the caller from the fd's own connection before
// reaching the dispatcher).
func (d *Dispatcher) PrimeFDToHandle(f *kms.File, creds [16]byte) (uint32, error) {
	_, handle, err := f.ImportBufferObject(creds)
	return handle, err
}

func wireObjectType(t kms.ObjectType) uint32 {
	switch t {
	case kms.ObjectTypeConnector:
		return wire.ObjectConnector
	case kms.ObjectTypeEncoder:
		return wire.ObjectEncoder
	case kms.ObjectTypeCrtc:
		return wire.ObjectCRTC
	case kms.ObjectTypeFrameBuffer:
		return wire.ObjectFB
	case kms.ObjectTypePlane:
		return wire.ObjectPlane
	default:
		return 0
	}
}
