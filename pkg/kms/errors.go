package kms

import "errors"

// Sentinel errors forming the narrow error taxonomy spec §7 calls for.
// The ioctl dispatcher maps these (via errors.Is) onto the wire error
// codes in internal/wire; nothing below this package needs a richer
// scheme.
var (
	// ErrIllegalArgument covers every argument-shaped rejection: unknown
	// ioctl/capability, invalid flag combination, failed Assignment
	// validation, an absent blob/object reference, a zero-length blob, or
	// a non-atomic client reaching for an atomic-only feature.
	ErrIllegalArgument = errors.New("kms: illegal argument")

	// ErrNoBackingDevice is returned specifically for a cursor ioctl
	// targeting a Crtc with no cursor plane.
	ErrNoBackingDevice = errors.New("kms: no backing device")

	// ErrWouldBlock is returned by File.Read when its event queue is
	// empty and the File is in non-blocking mode.
	ErrWouldBlock = errors.New("kms: operation would block")
)
