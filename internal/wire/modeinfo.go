package wire

import "unsafe"

// SizeofModeInfo is the exact wire size of struct drm_mode_modeinfo. A
// blob carrying a mode (MODE_ID) must equal this size; anything else
// cannot possibly be a mode-info record.
const SizeofModeInfo = int(unsafe.Sizeof(ModeInfo{}))

// ModeInfo mirrors struct drm_mode_modeinfo. Field order and widths are
// fixed by the UAPI; do not reorder or resize them.
type ModeInfo struct {
	Clock uint32

	HDisplay   uint16
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16

	VDisplay   uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	VScan      uint16

	VRefresh uint32

	Flags uint32
	Type  uint32

	Name [32]byte
}

// Mode flags, per DRM_MODE_FLAG_*.
const (
	ModeFlagPHSync = 1 << 0
	ModeFlagNHSync = 1 << 1
	ModeFlagPVSync = 1 << 2
	ModeFlagNVSync = 1 << 3
	ModeFlagInterlace = 1 << 4
	ModeFlagDblScan   = 1 << 5
	ModeFlagCSync     = 1 << 6
	ModeFlagPCSync    = 1 << 7
	ModeFlagNCSync    = 1 << 8
)

// Mode type bits, per DRM_MODE_TYPE_*.
const (
	ModeTypePreferred = 1 << 3
	ModeTypeDriver    = 1 << 6
)

// SetName copies s into Name, truncating and NUL-padding as needed.
func (m *ModeInfo) SetName(s string) {
	n := copy(m.Name[:], s)
	for i := n; i < len(m.Name); i++ {
		m.Name[i] = 0
	}
}

// GetName returns the NUL-terminated contents of Name as a string.
func (m *ModeInfo) GetName() string {
	n := 0
	for n < len(m.Name) && m.Name[n] != 0 {
		n++
	}
	return string(m.Name[:n])
}

// DecodeModeInfo reinterprets b as a drm_mode_modeinfo, failing if its
// length doesn't match the wire size exactly. Used to validate a MODE_ID
// blob before a commit is allowed to touch CrtcState.Mode.
func DecodeModeInfo(b []byte) (ModeInfo, bool) {
	if len(b) != SizeofModeInfo {
		return ModeInfo{}, false
	}
	return *(*ModeInfo)(unsafe.Pointer(&b[0])), true
}

// EncodeModeInfo returns the wire bytes for m, the inverse of
// DecodeModeInfo, used when registering a client-supplied mode as a blob.
func EncodeModeInfo(m ModeInfo) []byte {
	b := make([]byte, SizeofModeInfo)
	copy(b, (*[unsafe.Sizeof(ModeInfo{})]byte)(unsafe.Pointer(&m))[:])
	return b
}

// ValidModeChain reports whether m's horizontal and vertical sync chains
// are monotone, per drm_mode_modeinfo's documented invariant:
// hdisplay <= hsync_start <= hsync_end <= htotal, and the same for the
// vertical fields.
func ValidModeChain(m ModeInfo) bool {
	if !(m.HDisplay <= m.HSyncStart && m.HSyncStart <= m.HSyncEnd && m.HSyncEnd <= m.HTotal) {
		return false
	}
	if !(m.VDisplay <= m.VSyncStart && m.VSyncStart <= m.VSyncEnd && m.VSyncEnd <= m.VTotal) {
		return false
	}
	return true
}

// EventHeader mirrors struct drm_event: a fixed type/length prefix every
// queued event begins with, letting a client read variable-shaped events
// off the same queue without an out-of-band framing channel.
type EventHeader struct {
	Type   uint32
	Length uint32
}

// EventVblank mirrors struct drm_event_vblank, the payload following
// EventHeader for both DRM_EVENT_VBLANK and DRM_EVENT_FLIP_COMPLETE.
type EventVblank struct {
	Header   EventHeader
	UserData uint64
	TVSec    uint32
	TVUSec   uint32
	Sequence uint32
	CrtcID   uint32
}

// NewFlipCompleteEvent builds a drm_event_vblank for a page-flip completion
// at completedAt (as a Unix nanosecond timestamp), per the wire layout
// core.cpp's _retirePageFlip populates.
func NewFlipCompleteEvent(cookie uint64, crtcID uint32, completedAtNanos int64) EventVblank {
	return EventVblank{
		Header: EventHeader{
			Type:   EventFlipComplete,
			Length: uint32(unsafe.Sizeof(EventVblank{})),
		},
		UserData: cookie,
		TVSec:    uint32(completedAtNanos / 1e9),
		TVUSec:   uint32((completedAtNanos % 1e9) / 1e3),
		Sequence: 0,
		CrtcID:   crtcID,
	}
}
