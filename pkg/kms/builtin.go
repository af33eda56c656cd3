package kms

import (
	"math"

	"github.com/ChengyuZhu6/drmcore/internal/wire"
)

// registerBuiltinProperties constructs the fixed set of properties every
// Device exposes, mirroring the Device constructor that registers
// SRC_{X,Y,W,H}, CRTC_{X,Y,W,H}, FB_ID, CRTC_ID, MODE_ID, ACTIVE, DPMS,
// the plane "type" enum, and IN_FORMATS.
func (d *Device) registerBuiltinProperties() {
	noopWrite := func(Assignment, *AtomicState) error { return nil }

	d.propSrcX = d.newProperty("SRC_X", KindIntRange, func(p *Property) {
		p.intMin, p.intMax = 0, math.MaxUint32
		p.write = func(a Assignment, s *AtomicState) error {
			s.Plane(a.Object.(*Plane)).SrcX = uint32(a.Int >> 16)
			return nil
		}
	})
	d.propSrcY = d.newProperty("SRC_Y", KindIntRange, func(p *Property) {
		p.intMin, p.intMax = 0, math.MaxUint32
		p.write = func(a Assignment, s *AtomicState) error {
			s.Plane(a.Object.(*Plane)).SrcY = uint32(a.Int >> 16)
			return nil
		}
	})
	d.propSrcW = d.newProperty("SRC_W", KindIntRange, func(p *Property) {
		p.intMin, p.intMax = 0, math.MaxUint32
		p.write = func(a Assignment, s *AtomicState) error {
			s.Plane(a.Object.(*Plane)).SrcW = uint32(a.Int >> 16)
			return nil
		}
	})
	d.propSrcH = d.newProperty("SRC_H", KindIntRange, func(p *Property) {
		p.intMin, p.intMax = 0, math.MaxUint32
		p.write = func(a Assignment, s *AtomicState) error {
			s.Plane(a.Object.(*Plane)).SrcH = uint32(a.Int >> 16)
			return nil
		}
	})

	d.propCrtcX = d.newProperty("CRTC_X", KindSignedRange, func(p *Property) {
		p.sintMin, p.sintMax = math.MinInt32, math.MaxInt32
		p.write = func(a Assignment, s *AtomicState) error {
			s.Plane(a.Object.(*Plane)).CrtcX = int32(a.SInt)
			return nil
		}
	})
	d.propCrtcY = d.newProperty("CRTC_Y", KindSignedRange, func(p *Property) {
		p.sintMin, p.sintMax = math.MinInt32, math.MaxInt32
		p.write = func(a Assignment, s *AtomicState) error {
			s.Plane(a.Object.(*Plane)).CrtcY = int32(a.SInt)
			return nil
		}
	})
	d.propCrtcW = d.newProperty("CRTC_W", KindIntRange, func(p *Property) {
		p.intMin, p.intMax = 0, math.MaxUint32
		p.write = func(a Assignment, s *AtomicState) error {
			s.Plane(a.Object.(*Plane)).CrtcW = uint32(a.Int)
			return nil
		}
	})
	d.propCrtcH = d.newProperty("CRTC_H", KindIntRange, func(p *Property) {
		p.intMin, p.intMax = 0, math.MaxUint32
		p.write = func(a Assignment, s *AtomicState) error {
			s.Plane(a.Object.(*Plane)).CrtcH = uint32(a.Int)
			return nil
		}
	})

	d.propFbID = d.newProperty("FB_ID", KindObject, func(p *Property) {
		p.objectTypes = []ObjectType{ObjectTypeFrameBuffer}
		p.write = func(a Assignment, s *AtomicState) error {
			st := s.Plane(a.Object.(*Plane))
			if a.Obj == nil {
				st.FB = nil
				return nil
			}
			st.FB = a.Obj.(*FrameBuffer)
			return nil
		}
	})

	d.propCrtcID = d.newProperty("CRTC_ID", KindObject, func(p *Property) {
		p.objectTypes = []ObjectType{ObjectTypeCrtc}
		p.write = func(a Assignment, s *AtomicState) error {
			var crtc *Crtc
			if a.Obj != nil {
				crtc = a.Obj.(*Crtc)
			}
			switch obj := a.Object.(type) {
			case *Plane:
				s.Plane(obj).Crtc = crtc
			case *Connector:
				s.Connector(obj).Crtc = crtc
			}
			return nil
		}
	})

	d.propModeID = d.newProperty("MODE_ID", KindBlob, func(p *Property) {
		p.validate = func(_ *Property, a Assignment) bool {
			if a.Blob == nil {
				return true // nil MODE_ID disables the Crtc
			}
			mi, ok := wire.DecodeModeInfo(a.Blob.Data())
			if !ok {
				return false
			}
			return wire.ValidModeChain(mi)
		}
		p.write = func(a Assignment, s *AtomicState) error {
			s.Crtc(a.Object.(*Crtc)).Mode = a.Blob
			return nil
		}
	})

	d.propActive = d.newProperty("ACTIVE", KindIntRange, func(p *Property) {
		p.intMin, p.intMax = 0, 1
		p.write = func(a Assignment, s *AtomicState) error {
			s.Crtc(a.Object.(*Crtc)).Active = a.Int != 0
			return nil
		}
	})

	d.propDPMS = d.newProperty("DPMS", KindEnum, func(p *Property) {
		p.enum = []EnumEntry{
			{"On", wire.DPMSOn},
			{"Standby", wire.DPMSStandby},
			{"Suspend", wire.DPMSSuspend},
			{"Off", wire.DPMSOff},
		}
		p.write = func(a Assignment, s *AtomicState) error {
			s.Connector(a.Object.(*Connector)).DPMS = uint32(a.Int)
			return nil
		}
	})

	d.propPlaneType = d.newProperty("type", KindEnum, func(p *Property) {
		p.immutable = true
		p.enum = []EnumEntry{
			{"Overlay", uint64(PlaneTypeOverlay)},
			{"Primary", uint64(PlaneTypePrimary)},
			{"Cursor", uint64(PlaneTypeCursor)},
		}
		// Immutable properties can still be "assigned" when a client
		// echoes back every property OBJ_GETPROPERTIES reported (a common
		// compositor pattern); the only value that can ever validate is
		// the plane's own fixed type.
		p.validate = func(_ *Property, a Assignment) bool {
			plane, ok := a.Object.(*Plane)
			return ok && a.Int == uint64(plane.planeType)
		}
		p.write = noopWrite
	})

	d.propInFormats = d.newProperty("IN_FORMATS", KindBlob, func(p *Property) {
		p.immutable = true
		p.write = noopWrite
	})
}

func (d *Device) newProperty(name string, kind PropertyKind, configure func(*Property)) *Property {
	p := &Property{name: name, kind: kind}
	configure(p)
	id, err := d.objIDs.Allocate()
	if err != nil {
		// Property registration happens once at device construction, before
		// any client request could plausibly exhaust the id space.
		panic("kms: exhausted object id space registering built-in property: " + err.Error())
	}
	p.id = id
	d.properties = append(d.properties, p)
	return p
}

func (d *Device) SrcXProperty() *Property      { return d.propSrcX }
func (d *Device) SrcYProperty() *Property      { return d.propSrcY }
func (d *Device) SrcWProperty() *Property      { return d.propSrcW }
func (d *Device) SrcHProperty() *Property      { return d.propSrcH }
func (d *Device) CrtcXProperty() *Property     { return d.propCrtcX }
func (d *Device) CrtcYProperty() *Property     { return d.propCrtcY }
func (d *Device) CrtcWProperty() *Property     { return d.propCrtcW }
func (d *Device) CrtcHProperty() *Property     { return d.propCrtcH }
func (d *Device) FbIDProperty() *Property      { return d.propFbID }
func (d *Device) CrtcIDProperty() *Property    { return d.propCrtcID }
func (d *Device) ModeIDProperty() *Property    { return d.propModeID }
func (d *Device) ActiveProperty() *Property    { return d.propActive }
func (d *Device) DPMSProperty() *Property      { return d.propDPMS }
func (d *Device) PlaneTypeProperty() *Property { return d.propPlaneType }
func (d *Device) InFormatsProperty() *Property { return d.propInFormats }
