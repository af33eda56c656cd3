// Package wire defines the on-the-wire structures, ioctl numbers, and flag
// constants a DRM character-device session exchanges with a client. Layouts
// below must match the kernel/userspace ABI (<drm/drm.h>, <drm/drm_mode.h>)
// byte-for-byte; nothing here is free to change shape.
package wire

// Ioctl encoding constants (see <asm-generic/ioctl.h>), identical in shape
// to the device-mapper encoding helpers this package was adapted from.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocDirBits  = 2

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

// DRMIoctlType is the ioctl "magic" type byte for all DRM_IOCTL_* requests.
const DRMIoctlType = 0x64 // 'd'

// Command encodes a request number into a full DRM_IOCTL_* request value
// given the argument size. Direction is derived from dirBits since several
// DRM commands (VERSION, GET_CAP) are read-only from the kernel's point of
// view while most mode-setting commands are read-write.
func Command(dir uintptr, nr uintptr, size uintptr) uintptr {
	return ioc(dir, DRMIoctlType, nr, size)
}

// Request numbers for the subset of DRM_IOCTL_* commands this core
// implements, per <drm/drm.h> and <drm/drm_mode.h>.
const (
	NRVersion         = 0x00
	NRGetCap          = 0x0c
	NRSetClientCap    = 0x0d
	NRGEMClose        = 0x09
	NRPrimeHandleToFD = 0x2d
	NRPrimeFDToHandle = 0x2e

	NRModeGetResources       = 0xA0
	NRModeGetCrtc            = 0xA1
	NRModeSetCrtc            = 0xA2
	NRModeCursor             = 0xA3
	NRModeGetEncoder         = 0xA6
	NRModeGetConnector       = 0xA7
	NRModeGetProperty        = 0xAA
	NRModeSetProperty        = 0xAB
	NRModeGetPropBlob        = 0xAC
	NRModeGetFB              = 0xAD
	NRModeAddFB              = 0xAE
	NRModeRmFB               = 0xAF
	NRModePageFlip           = 0xB0
	NRModeDirtyFB            = 0xB1
	NRModeCreateDumb         = 0xB2
	NRModeMapDumb            = 0xB3
	NRModeDestroyDumb        = 0xB4
	NRModeGetPlaneResources  = 0xB5
	NRModeGetPlane           = 0xB6
	NRModeSetPlane           = 0xB7
	NRModeAddFB2             = 0xB8
	NRModeObjGetProperties   = 0xB9
	NRModeObjSetProperty     = 0xBA
	NRModeCursor2            = 0xBB
	NRModeAtomic             = 0xBC
	NRModeCreatePropBlob     = 0xBD
	NRModeDestroyPropBlob    = 0xBE
	NRModeGetFB2             = 0xCE
)

// Capability query ids, per DRM_CAP_*.
const (
	CapDumbBuffer       = 0x1
	CapVBlankHighCRTC   = 0x2
	CapDumbPreferDepth  = 0x3
	CapDumbPreferShadow = 0x4
	CapPrime            = 0x5
	CapTimestampMono    = 0x6
	CapASYNCPageFlip    = 0x7
	CapCursorWidth      = 0x8
	CapCursorHeight     = 0x9
	CapAddFB2Modifiers  = 0x10
	CapCrtcInVBlankEvt  = 0x12
)

// DRM_PRIME_CAP_* bits, returned for CapPrime.
const (
	PrimeCapImport = 1 << 0
	PrimeCapExport = 1 << 1
)

// Client cap ids, per DRM_CLIENT_CAP_*.
const (
	ClientCapStereo3D       = 1
	ClientCapUniversalPlanes = 2
	ClientCapAtomic         = 3
)

// drm_mode_object.type values, per DRM_MODE_OBJECT_*. These deliberately
// ugly constants (rather than small sequential ids) are part of the
// upstream UAPI: they double as a sanity check against a client that sends
// a garbage object type.
const (
	ObjectCRTC      = 0xcccccccc
	ObjectConnector = 0xc0c0c0c0
	ObjectEncoder   = 0xe0e0e0e0
	ObjectMode      = 0xdededede
	ObjectProperty  = 0xb0b0b0b0
	ObjectFB        = 0xfbfbfbfb
	ObjectBlob      = 0xbbbbbbbb
	ObjectPlane     = 0xeeeeeeee
)

// drm_mode_property flag bits, per DRM_MODE_PROP_*.
const (
	PropRange    = 1 << 1
	PropImmutable = 1 << 2
	PropEnum     = 1 << 3
	PropBlob     = 1 << 4
	PropBitmask  = 1 << 5

	PropExtendedTypeMask = 0x0000ffc0
	PropExtendedShift    = 6

	PropObject      = 1 << PropExtendedShift
	PropSignedRange = 2 << PropExtendedShift
)

// Page-flip and atomic-commit flags, per DRM_MODE_PAGE_FLIP_* /
// DRM_MODE_ATOMIC_*.
const (
	PageFlipEvent = 0x01
	PageFlipAsync = 0x02

	AtomicTestOnly      = 0x0100
	AtomicNonBlock      = 0x0200
	AtomicAllowModeset  = 0x0400
)

// drm_event.type values, per DRM_EVENT_*.
const (
	EventTypeVblank   = 0x01
	EventFlipComplete = 0x02
)

// Plane type values exposed through the "type" property.
const (
	PlaneTypeOverlay = 0
	PlaneTypePrimary = 1
	PlaneTypeCursor  = 2
)

// EPOLLIN is the poll readiness bit this core ever sets, matching the
// subset of poll(2) semantics a DRM fd needs.
const EPOLLIN = 0x0001

// Connector status values, per DRM_MODE_CONNECTED/DISCONNECTED/UNKNOWNCONNECTION.
const (
	ConnectorStatusConnected    = 1
	ConnectorStatusDisconnected = 2
	ConnectorStatusUnknown      = 3
)

// Subpixel arrangement, per DRM_MODE_SUBPIXEL_*; this core never interprets
// the value beyond echoing it back on MODE_GETCONNECTOR.
const SubpixelUnknown = 1

// DPMS property enum values. The ordering is fixed by the property's enum
// table at registration time and must never be renumbered once clients may
// have captured it; see DESIGN.md for the full rationale.
const (
	DPMSOn      = 0
	DPMSStandby = 1
	DPMSSuspend = 2
	DPMSOff     = 3
)

// Error codes surfaced to a client through an ioctl's return value, mapped
// onto a negative errno exactly as the kernel ioctl ABI requires.
const (
	ErrnoInvalid = 22 // EINVAL
	ErrnoNoDev   = 19 // ENODEV
	ErrnoAgain   = 11 // EAGAIN
	ErrnoNoSpace = 28 // ENOSPC
	ErrnoBusy    = 16 // EBUSY
)
