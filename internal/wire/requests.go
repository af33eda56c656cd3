package wire

import "unsafe"

// Fixed-layout request/reply heads for the ioctl commands NR* names,
// mirroring struct drm_mode_* shapes closely enough to round-trip over
// this core's own Transport framing (§6.2); a real libdrm client is not a
// goal this core needs to satisfy byte-for-byte beyond ModeInfo/EventVblank,
// which do carry upstream's exact layout since clients decode those
// directly. Every struct here is fixed-size and has no pointer fields — any
// variable-length payload (mode arrays, property id/value arrays, atomic's
// flattened triples) travels in a Request/Reply's separate Tail, not
// through unsafe.Pointer reinterpretation of embedded pointers.

// VersionReply mirrors struct drm_version's fixed half (name/desc/date
// strings are carried in the Tail, concatenated and NUL-separated).
type VersionReply struct {
	Major, Minor, Patch int32
	NameLen, DescLen, DateLen uint32
}

// GetCapRequest/GetCapReply mirror struct drm_get_cap.
type GetCapRequest struct{ CapID uint64 }
type GetCapReply struct{ Value uint64 }

// SetClientCapRequest mirrors struct drm_set_client_cap.
type SetClientCapRequest struct{ CapID, Value uint64 }

// ResourcesReplyHead mirrors struct drm_mode_card_res's fixed counts; the
// four id arrays travel in the Tail as four uint32 runs back to back, in
// Crtc/Encoder/Connector/FB order.
type ResourcesReplyHead struct {
	CrtcCount, EncoderCount, ConnectorCount, FbCount uint32
	MinWidth, MaxWidth, MinHeight, MaxHeight         uint32
}

// GetConnectorRequestHead mirrors struct drm_mode_get_connector's request
// half.
type GetConnectorRequestHead struct {
	ConnectorID uint32
	MaxModes    uint32
}

// ConnectorReplyHead mirrors struct drm_mode_get_connector's reply half;
// the mode array and (property id, value) pairs follow in the Tail.
type ConnectorReplyHead struct {
	ConnectorID, ConnectorType, EncoderID, Status     uint32
	PhysWidthMM, PhysHeightMM, Subpixel, ModeCount    uint32
	PropCount                                         uint32
}

// EncoderRequestHead mirrors struct drm_mode_get_encoder's request half.
type EncoderRequestHead struct{ EncoderID uint32 }

// EncoderReplyHead mirrors struct drm_mode_get_encoder.
type EncoderReplyHead struct {
	EncoderID, EncoderType, CrtcID, PossibleCrtcs, PossibleClones uint32
}

// PlaneRequestHead mirrors struct drm_mode_get_plane's request half.
type PlaneRequestHead struct{ PlaneID uint32 }

// PlaneReplyHead mirrors struct drm_mode_get_plane's reply half; the
// format array follows in the Tail.
type PlaneReplyHead struct {
	PlaneID, PossibleCrtcs, CrtcID, FbID, FormatCount uint32
}

// CrtcRequestHead mirrors struct drm_mode_crtc's request-side id field.
type CrtcRequestHead struct{ CrtcID uint32 }

// CrtcReplyHead mirrors struct drm_mode_crtc's reply half; Mode is only
// meaningful when ModeValid != 0.
type CrtcReplyHead struct {
	CrtcID, FbID, X, Y, ModeValid, GammaSize uint32
	Mode                                     ModeInfo
}

// SetCrtcRequestHead mirrors struct drm_mode_crtc's request half; the
// connector id array follows in the Tail. ModeValid selects whether Mode
// is meaningful (disabling the Crtc otherwise).
type SetCrtcRequestHead struct {
	CrtcID, FbID, X, Y, ConnectorCount, ModeValid uint32
	Mode                                          ModeInfo
}

// AddFBRequestHead mirrors the legacy struct drm_mode_fb_cmd.
type AddFBRequestHead struct {
	Handle, Width, Height, Pitch, BPP, Depth uint32
}

// AddFBReplyHead carries the allocated fb id.
type AddFBReplyHead struct{ FbID uint32 }

// AddFB2RequestHead mirrors struct drm_mode_fb_cmd2's single-plane subset
// this core supports (no multi-plane YUV formats).
type AddFB2RequestHead struct {
	Handle, Width, Height, Pitch, Fourcc, HasModifier uint32
	Modifier                                          uint64
}

// GetFB2RequestHead/GetFB2ReplyHead mirror struct drm_mode_fb_cmd2's
// GETFB2 direction.
type GetFB2RequestHead struct{ FbID uint32 }
type GetFB2ReplyHead struct {
	Width, Height, Fourcc uint32
	Modifier              uint64
}

// RmFBRequestHead / DirtyFBRequestHead carry just the target fb id.
type RmFBRequestHead struct{ FbID uint32 }
type DirtyFBRequestHead struct{ FbID uint32 }

// CreateDumbRequestHead mirrors struct drm_mode_create_dumb's request half.
type CreateDumbRequestHead struct{ Width, Height, BPP uint32 }

// CreateDumbReplyHead mirrors its reply half.
type CreateDumbReplyHead struct {
	Handle, Pitch uint32
	Size          uint64
}

// MapDumbRequestHead/MapDumbReplyHead mirror struct drm_mode_map_dumb.
type MapDumbRequestHead struct{ Handle uint32 }
type MapDumbReplyHead struct{ Offset uint64 }

// DestroyDumbRequestHead mirrors struct drm_mode_destroy_dumb, also reused
// for GEM_CLOSE.
type DestroyDumbRequestHead struct{ Handle uint32 }

// CursorRequestHead mirrors struct drm_mode_cursor (flags carry
// DRM_MODE_CURSOR_BO/MOVE).
type CursorRequestHead struct {
	Flags, CrtcID          uint32
	X, Y                   int32
	Width, Height, Handle  uint32
}

// Cursor2RequestHead mirrors struct drm_mode_cursor2, adding a hotspot the
// core doesn't track separately from the cursor plane's own position.
type Cursor2RequestHead struct {
	Flags, CrtcID         uint32
	X, Y                  int32
	Width, Height, Handle uint32
	HotX, HotY            int32
}

// PageFlipRequestHead mirrors struct drm_mode_crtc_page_flip.
type PageFlipRequestHead struct {
	CrtcID, FbID, Flags uint32
	UserData            uint64
}

// ObjGetPropertiesRequestHead mirrors struct drm_mode_obj_get_properties's
// request half; the reply's (property id, value) pairs travel in the Tail.
type ObjGetPropertiesRequestHead struct{ ObjID, ObjType uint32 }
type ObjGetPropertiesReplyHead struct{ PropCount uint32 }

// ObjSetPropertyRequestHead mirrors struct drm_mode_obj_set_property.
type ObjSetPropertyRequestHead struct {
	Value              uint64
	PropID, ObjID, ObjType uint32
}

// GetPropertyRequestHead mirrors struct drm_mode_get_property's request
// half; the reply's name, range bounds and enum table travel in the Tail.
type GetPropertyRequestHead struct{ PropID uint32 }
type GetPropertyReplyHead struct {
	PropID, Flags               uint32
	IntMin, IntMax               uint64
	SIntMin, SIntMax              int64
	ObjectTypeFlags, EnumCount   uint32
	NameLen                      uint32
}

// GetPropBlobRequestHead/ReplyHead mirror struct drm_mode_get_blob; the
// blob bytes travel in the Tail.
type GetPropBlobRequestHead struct{ BlobID uint32 }
type GetPropBlobReplyHead struct{ Size uint32 }

// CreatePropBlobReplyHead mirrors struct drm_mode_create_blob's reply half;
// the blob bytes are the request's Tail.
type CreatePropBlobReplyHead struct{ BlobID uint32 }

// DestroyPropBlobRequestHead mirrors struct drm_mode_destroy_blob.
type DestroyPropBlobRequestHead struct{ BlobID uint32 }

// AtomicRequestHead mirrors struct drm_mode_atomic's fixed half; the
// flattened object id, per-object prop-count, property id and value arrays
// follow in the Tail, in that order.
type AtomicRequestHead struct {
	Flags, ObjectCount uint32
	UserData           uint64
}
type AtomicReplyHead struct{ TouchedCount uint32 }

// ErrorReplyHead is sent in place of a command's normal reply head when the
// dispatcher rejects a request; Errno is the negated value Errno() returned,
// matching the sign convention a real ioctl's return value carries.
type ErrorReplyHead struct{ Errno int32 }

// PrimeHandleRequestHead/ReplyHead mirror struct drm_prime_handle, reused
// for both PRIME_HANDLE_TO_FD and PRIME_FD_TO_HANDLE by the caller: the fd
// itself travels out-of-band via the Transport's SCM_RIGHTS channel, not in
// either head.
type PrimeHandleRequestHead struct{ Handle uint32 }
type PrimeHandleReplyHead struct{ Handle uint32 }

// asBytes reinterprets a pointer to a fixed-size struct as its wire bytes,
// the same unsafe.Pointer idiom ModeInfo/EventVblank use.
func asBytes[T any](v *T) []byte {
	return (*[1 << 20]byte)(unsafe.Pointer(v))[:unsafe.Sizeof(*v):unsafe.Sizeof(*v)]
}

// decode reinterprets b as a *T, failing if b is shorter than sizeof(T).
func decode[T any](b []byte) (T, bool) {
	var zero T
	if len(b) < int(unsafe.Sizeof(zero)) {
		return zero, false
	}
	return *(*T)(unsafe.Pointer(&b[0])), true
}

// Encode copies v's wire bytes into a freshly allocated slice.
func Encode[T any](v T) []byte {
	b := make([]byte, unsafe.Sizeof(v))
	copy(b, asBytes(&v))
	return b
}

// Decode is the exported form of decode, used by the daemon's dispatch
// loop to parse each command's fixed head.
func Decode[T any](b []byte) (T, bool) { return decode[T](b) }

// Uint32s/PutUint32s convert a byte tail to/from a run of little-endian
// uint32s, used for the plain id arrays (Crtc/Encoder/Connector/FB ids,
// formats, property ids) several replies carry in their Tail.
func Uint32s(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
	}
	return out
}

func PutUint32s(vs []uint32) []byte {
	b := make([]byte, len(vs)*4)
	for i, v := range vs {
		b[i*4] = byte(v)
		b[i*4+1] = byte(v >> 8)
		b[i*4+2] = byte(v >> 16)
		b[i*4+3] = byte(v >> 24)
	}
	return b
}

// Uint64s/PutUint64s is Uint32s/PutUint32s's 8-byte counterpart, used for
// property values and atomic's value array.
func Uint64s(b []byte) []uint64 {
	out := make([]uint64, len(b)/8)
	for i := range out {
		var v uint64
		for j := 0; j < 8; j++ {
			v |= uint64(b[i*8+j]) << (8 * j)
		}
		out[i] = v
	}
	return out
}

func PutUint64s(vs []uint64) []byte {
	b := make([]byte, len(vs)*8)
	for i, v := range vs {
		for j := 0; j < 8; j++ {
			b[i*8+j] = byte(v >> (8 * j))
		}
	}
	return b
}
