package kms

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ChengyuZhu6/drmcore/internal/idalloc"
	"github.com/ChengyuZhu6/drmcore/internal/wire"
)

// primeCredential is the 16-byte opaque token a Transport derives from an
// IPC-lane identity, used as the key of the PRIME export table (§3.5).
type primeCredential [16]byte

// Device owns the entire mode-object graph, the property registry, every
// id allocator, the PRIME export table and the mmap-offset space. It is
// shared by every open File; all mutation of shared state goes through
// Device's lock (§5's "single Device-level mutex" baseline).
type Device struct {
	mu sync.Mutex

	driver Driver
	log    zerolog.Logger

	// objIDs is the smallest-free allocator behind every mode-object's id
	// (Connector, Encoder, Crtc, Plane, FrameBuffer) *and* every
	// Property's id, matching upstream DRM's single mode_object idr.
	objIDs  *idalloc.Allocator
	blobIDs *idalloc.Allocator
	slots   *idalloc.Allocator // mmap memory-slot allocator (§3.4)

	objects map[uint32]Object
	blobs   map[uint32]*Blob

	connectors []*Connector
	encoders   []*Encoder
	crtcs      []*Crtc
	planes     []*Plane

	properties []*Property

	// Built-in property handles, populated once by registerBuiltinProperties.
	propSrcX, propSrcY, propSrcW, propSrcH   *Property
	propCrtcX, propCrtcY, propCrtcW, propCrtcH *Property
	propFbID, propCrtcID, propModeID         *Property
	propActive, propDPMS                     *Property
	propPlaneType, propInFormats             *Property

	minWidth, maxWidth   uint32
	minHeight, maxHeight uint32

	mappings  map[uint64]BufferObject // mmap offset -> BO, keyed by slot<<32
	prime     map[primeCredential]BufferObject
	inFormats map[*Plane]*Blob

	// commits serializes every capture/commit cycle device-wide. The spec
	// permits finer per-Crtc locking; this is the "simplest correct"
	// baseline it explicitly allows (§4.4).
	commits sync.Mutex
}

// NewDevice constructs a Device bound to driver, with no objects registered
// yet; a caller (typically the daemon's bring-up code, or a test) adds
// Connectors/Encoders/Crtcs/Planes via AddConnector etc. before serving any
// File.
func NewDevice(driver Driver, log zerolog.Logger) *Device {
	const objIDSpace = 1 << 20 // ample headroom over any plausible KMS topology
	d := &Device{
		driver:   driver,
		log:      log,
		objIDs:   idalloc.New(objIDSpace),
		blobIDs:  idalloc.New(objIDSpace),
		slots:    idalloc.New(1 << 32),
		objects:  make(map[uint32]Object),
		blobs:    make(map[uint32]*Blob),
		mappings: make(map[uint64]BufferObject),
		prime:    make(map[primeCredential]BufferObject),
		maxWidth: 16384, maxHeight: 16384,
	}
	// id 0 is never a valid mode-object or property id on the wire (it
	// doubles as "no object"/"disabled"), so it's never handed out.
	if err := d.objIDs.Reserve(0); err != nil {
		panic("kms: reserving object id 0: " + err.Error())
	}
	if err := d.blobIDs.Reserve(0); err != nil {
		panic("kms: reserving blob id 0: " + err.Error())
	}
	d.registerBuiltinProperties()
	return d
}

func (d *Device) allocObjectID() (uint32, error) {
	return d.objIDs.Allocate()
}

// ---- Topology registration (driver bring-up) -------------------------------

// AddEncoder registers a driver-constructed Encoder and returns its
// device-wide id.
func (d *Device) AddEncoder(encoderType uint32, possibleCrtcs []*Crtc) (*Encoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.allocObjectID()
	if err != nil {
		return nil, err
	}
	e := &Encoder{
		base:          base{id: id, typ: ObjectTypeEncoder},
		encoderType:   encoderType,
		possibleCrtcs: possibleCrtcs,
	}
	d.objects[id] = e
	d.encoders = append(d.encoders, e)
	return e, nil
}

// AddCrtc registers a driver-constructed Crtc bound to primary (and
// optionally cursor) planes.
func (d *Device) AddCrtc(primary, cursor *Plane) (*Crtc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.allocObjectID()
	if err != nil {
		return nil, err
	}
	c := &Crtc{
		base:         base{id: id, typ: ObjectTypeCrtc},
		index:        len(d.crtcs),
		primaryPlane: primary,
		cursorPlane:  cursor,
		state:        &CrtcState{},
	}
	c.state.crtc = c
	d.objects[id] = c
	d.crtcs = append(d.crtcs, c)
	return c, nil
}

// AddPlane registers a driver-constructed Plane.
func (d *Device) AddPlane(typ PlaneType, possibleCrtcs []*Crtc, formats []uint32, modifiers []uint64) (*Plane, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.allocObjectID()
	if err != nil {
		return nil, err
	}
	p := &Plane{
		base:          base{id: id, typ: ObjectTypePlane},
		planeType:     typ,
		possibleCrtcs: possibleCrtcs,
		formats:       formats,
		modifiers:     modifiers,
		state:         &PlaneState{},
	}
	p.state.plane = p
	d.objects[id] = p
	d.planes = append(d.planes, p)
	if len(modifiers) > 0 {
		d.registerInFormatsBlob(p, formats, modifiers)
	}
	return p, nil
}

// AddConnector registers a driver-constructed Connector.
func (d *Device) AddConnector(connectorType uint32, physW, physH, subpixel uint32, possibleEncoders []*Encoder) (*Connector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.allocObjectID()
	if err != nil {
		return nil, err
	}
	c := &Connector{
		base:             base{id: id, typ: ObjectTypeConnector},
		connectorType:    connectorType,
		physicalWidth:    physW,
		physicalHeight:   physH,
		subpixel:         subpixel,
		currentStatus:    wire.ConnectorStatusUnknown,
		possibleEncoders: possibleEncoders,
		state:            &ConnectorState{DPMS: wire.DPMSOn},
	}
	c.state.connector = c
	d.objects[id] = c
	d.connectors = append(d.connectors, c)
	return c, nil
}

// SetDimensionLimits overrides the default 16384x16384 GETRESOURCES bound
// (used when a driver reports something narrower).
func (d *Device) SetDimensionLimits(minW, minH, maxW, maxH uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.minWidth, d.minHeight = minW, minH
	if maxW != 0 {
		d.maxWidth = maxW
	}
	if maxH != 0 {
		d.maxHeight = maxH
	}
}

func (d *Device) DimensionLimits() (minW, minH, maxW, maxH uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.minWidth, d.minHeight, d.maxWidth, d.maxHeight
}

// ---- Lookups ---------------------------------------------------------------

func (d *Device) Object(id uint32) (Object, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.objects[id]
	return o, ok
}

// PropertyByID looks up a registered property by its device-wide id, for
// MODE_GETPROPERTY/MODE_SETPROPERTY/MODE_ATOMIC's flat (obj,prop,value)
// triples.
func (d *Device) PropertyByID(id uint32) (*Property, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.properties {
		if p.id == id {
			return p, true
		}
	}
	return nil, false
}

// Properties returns every registered property.
func (d *Device) Properties() []*Property {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Property(nil), d.properties...)
}

func (d *Device) Connectors() []*Connector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Connector(nil), d.connectors...)
}

func (d *Device) Encoders() []*Encoder {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Encoder(nil), d.encoders...)
}

func (d *Device) Crtcs() []*Crtc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Crtc(nil), d.crtcs...)
}

func (d *Device) Planes() []*Plane {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Plane(nil), d.planes...)
}

// PossibleCrtcMask builds the DRM bitmask (bit i set iff Crtc at index i is
// a member of crtcs), used by MODE_GETENCODER/MODE_GETPLANE.
func PossibleCrtcMask(crtcs []*Crtc) uint32 {
	var mask uint32
	for _, c := range crtcs {
		mask |= 1 << uint(c.Index())
	}
	return mask
}

// PossibleEncoderMask builds the DRM possible_clones bitmask: bit i set iff
// all[i] is a member of clones. Encoders have no dense index of their own
// (only Crtc/Plane do), so the caller supplies the Device's full Encoders()
// slice as the ordering to index against.
func PossibleEncoderMask(all []*Encoder, clones []*Encoder) uint32 {
	var mask uint32
	for i, e := range all {
		for _, c := range clones {
			if c == e {
				mask |= 1 << uint(i)
				break
			}
		}
	}
	return mask
}

// ---- Framebuffers -----------------------------------------------------------

// CreateFrameBuffer asks the Driver to wrap bo as scanout storage and
// registers the resulting FrameBuffer in the object graph.
func (d *Device) CreateFrameBuffer(ctx context.Context, bo BufferObject, width, height, fourcc, pitch uint32, modifier uint64) (*FrameBuffer, error) {
	notify, err := d.driver.CreateFrameBuffer(ctx, bo, width, height, pitch, fourcc, modifier)
	if err != nil {
		return nil, fmt.Errorf("kms: driver CreateFrameBuffer: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.allocObjectID()
	if err != nil {
		return nil, err
	}
	fb := &FrameBuffer{
		base:        base{id: id, typ: ObjectTypeFrameBuffer},
		Width:       width,
		Height:      height,
		Pitch:       pitch,
		Fourcc:      fourcc,
		Modifier:    modifier,
		BO:          bo,
		notifyDirty: notify,
	}
	d.objects[id] = fb
	return fb, nil
}

// DestroyFrameBuffer removes fb from the device-wide object table. Per the
// Open Question decision recorded in DESIGN.md, this does not touch any
// Plane currently referencing fb; a stale PlaneState.FB is left until the
// next commit re-binds that Plane.
func (d *Device) DestroyFrameBuffer(fb *FrameBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, fb.ID())
	d.objIDs.Free(fb.ID())
}

// ---- Blobs ------------------------------------------------------------------

// RegisterBlob stores data as a new Blob and returns it.
func (d *Device) RegisterBlob(data []byte) (*Blob, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("kms: zero-length blob")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.blobIDs.Allocate()
	if err != nil {
		return nil, err
	}
	cp := append([]byte(nil), data...)
	b := &Blob{id: id, data: cp}
	d.blobs[id] = b
	return b, nil
}

// FindBlob looks up a blob by id.
func (d *Device) FindBlob(id uint32) (*Blob, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.blobs[id]
	return b, ok
}

// DeleteBlob removes a blob by id. Absent is not an error at this layer;
// the dispatcher turns a false return into ILLEGAL_ARGUMENT per spec §4.7.
func (d *Device) DeleteBlob(id uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.blobs[id]; !ok {
		return false
	}
	delete(d.blobs, id)
	d.blobIDs.Free(id)
	return true
}

func (d *Device) registerInFormatsBlob(p *Plane, formats []uint32, modifiers []uint64) {
	// Encoded as every format (uint32, little-endian) followed by every
	// modifier (uint64, little-endian), with no header; the exact upstream drm_format_modifier_blob layout is an
	// implementation detail of the reference driver/compositor pair this
	// core ships with, not a wire contract this package enforces.
	buf := make([]byte, 0, len(formats)*4+len(modifiers)*8)
	for _, f := range formats {
		buf = append(buf, byte(f), byte(f>>8), byte(f>>16), byte(f>>24))
	}
	for _, m := range modifiers {
		buf = append(buf, byte(m), byte(m>>8), byte(m>>16), byte(m>>24), byte(m>>32), byte(m>>40), byte(m>>48), byte(m>>56))
	}
	id, err := d.blobIDs.Allocate()
	if err != nil {
		d.log.Error().Err(err).Msg("kms: failed to allocate IN_FORMATS blob id")
		return
	}
	b := &Blob{id: id, data: buf}
	d.blobs[id] = b
	if d.inFormats == nil {
		d.inFormats = make(map[*Plane]*Blob)
	}
	d.inFormats[p] = b
}

// blobForPlane returns the IN_FORMATS blob registered for p, if any.
func (d *Device) blobForPlane(p *Plane) (*Blob, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.inFormats[p]
	return b, ok
}

// ---- Dumb buffers & mapping --------------------------------------------------

// CreateDumb delegates to the Driver to allocate a dumb buffer.
func (d *Device) CreateDumb(ctx context.Context, width, height, bpp uint32) (BufferObject, uint32, error) {
	return d.driver.CreateDumb(ctx, width, height, bpp)
}

// InstallMapping assigns bo a memory slot on first call and returns its
// mmap offset (slot<<32); subsequent calls for the same bo are no-ops that
// return the same offset (§4.5, §4.6.1's idempotence requirement).
func (d *Device) InstallMapping(bo BufferObject) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if off, ok := bo.Mapping(); ok {
		return off
	}
	slot, err := d.slots.Allocate()
	if err != nil {
		// 2^32 live mappings would already have exhausted every other
		// resource in the system; this is unreachable in practice.
		panic("kms: memory-slot space exhausted: " + err.Error())
	}
	offset := uint64(slot) << 32
	bo.SetMapping(offset)
	d.mappings[offset] = bo
	return offset
}

// ---- PRIME export table (§3.5) ----------------------------------------------

func (d *Device) registerBufferObject(creds primeCredential, bo BufferObject) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prime[creds] = bo
}

func (d *Device) findBufferObject(creds primeCredential) (BufferObject, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bo, ok := d.prime[creds]
	return bo, ok
}

// ---- Driver passthrough ------------------------------------------------------

func (d *Device) DriverVersion() (major, minor, patch int) { return d.driver.DriverVersion() }
func (d *Device) DriverInfo() (name, desc, date string)     { return d.driver.DriverInfo() }
func (d *Device) CursorWidth() uint32                       { return d.driver.CursorWidth() }
func (d *Device) CursorHeight() uint32                      { return d.driver.CursorHeight() }
func (d *Device) AddFB2ModifiersSupported() bool            { return d.driver.AddFB2ModifiersSupported() }

// ProbeConnector asks the Driver to re-enumerate c's status/mode list, used
// by MODE_GETCONNECTOR when the caller wants a fresh probe.
func (d *Device) ProbeConnector(ctx context.Context, c *Connector) error {
	if c.Probe == nil {
		return nil
	}
	status, modes, err := c.Probe(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	c.SetStatus(status)
	c.SetModeList(modes)
	d.mu.Unlock()
	return nil
}
