package kms

import "context"

// Driver is the hardware-facing collaborator a Device delegates all real
// display programming to. The core never touches a register or a pixel;
// it only validates requests, tracks state, and hands accepted commits to
// the Driver.
type Driver interface {
	// CreateConfiguration returns a fresh Configuration for one
	// capture/commit cycle.
	CreateConfiguration() Configuration

	// CreateDumb allocates a driver-backed buffer of the given dimensions
	// and bits-per-pixel, returning it together with its pitch in bytes.
	CreateDumb(ctx context.Context, width, height, bpp uint32) (bo BufferObject, pitch uint32, err error)

	// CreateFrameBuffer wraps bo as scanout-able pixel storage with the
	// given metadata, returning a dirty-notification hook (nil if the
	// driver doesn't need one).
	CreateFrameBuffer(ctx context.Context, bo BufferObject, width, height, pitch, fourcc uint32, modifier uint64) (notifyDirty func(context.Context) error, err error)

	// DriverVersion/DriverInfo answer DRM_IOCTL_VERSION.
	DriverVersion() (major, minor, patch int)
	DriverInfo() (name, desc, date string)

	// CursorWidth/CursorHeight answer DRM_CAP_CURSOR_WIDTH/HEIGHT.
	CursorWidth() uint32
	CursorHeight() uint32

	// AddFB2ModifiersSupported answers DRM_CAP_ADDFB2_MODIFIERS.
	AddFB2ModifiersSupported() bool
}

// Configuration represents one in-flight hardware programming cycle:
// capture validates and stages the requested changes into an AtomicState;
// Apply asks the driver to program hardware for that state; Done signals
// completion so the core can publish the state as live and fire any
// requested page-flip events.
type Configuration interface {
	// Apply begins hardware programming for state. It must return without
	// blocking on vblank; completion is signalled via Done.
	Apply(ctx context.Context, state *AtomicState)

	// Done returns a channel closed once the driver has finished
	// programming state (or failed to — Err reports the outcome).
	Done() <-chan struct{}

	// Err returns the outcome after Done has closed; nil means the
	// commit completed successfully.
	Err() error
}
