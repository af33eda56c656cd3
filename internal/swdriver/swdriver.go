// Package swdriver is an in-memory, no-hardware implementation of
// pkg/kms.Driver: it has no display hardware and completes every commit
// immediately, standing in for a real scan-out back-end in tests and as
// the back-end the drmcored daemon always uses.
package swdriver

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ChengyuZhu6/drmcore/pkg/kms"
)

// BufferObject is a software-backed dumb buffer: its "device memory" is
// just a Go byte slice.
type BufferObject struct {
	width, height uint32
	size          uint64
	data          []byte
	tag           string // correlation id for logging only, never on the wire

	mapping   uint64
	hasMapping bool
}

func (b *BufferObject) Width() uint32  { return b.width }
func (b *BufferObject) Height() uint32 { return b.height }
func (b *BufferObject) Size() uint64   { return b.size }

func (b *BufferObject) Memory() (kms.MemoryHandle, uint64) {
	return b.data, 0
}

func (b *BufferObject) Mapping() (uint64, bool) { return b.mapping, b.hasMapping }

func (b *BufferObject) SetMapping(offset uint64) {
	b.mapping = offset
	b.hasMapping = true
}

// Driver is the software Driver itself.
type Driver struct {
	log zerolog.Logger

	cursorWidth, cursorHeight uint32
	modifiersSupported        bool

	version struct{ major, minor, patch int }
	info    struct{ name, desc, date string }
}

// New constructs a software Driver. cursorSize is the fixed cursor plane
// dimension this reference back-end supports (real hardware often caps
// this at 64x64).
func New(log zerolog.Logger, cursorSize uint32, modifiersSupported bool) *Driver {
	d := &Driver{log: log, cursorWidth: cursorSize, cursorHeight: cursorSize, modifiersSupported: modifiersSupported}
	d.version.major, d.version.minor, d.version.patch = 1, 0, 0
	d.info.name = "drmcore-sw"
	d.info.desc = "in-memory software KMS driver"
	d.info.date = "20260101"
	return d
}

func (d *Driver) CreateConfiguration() kms.Configuration {
	return newConfiguration()
}

func (d *Driver) CreateDumb(ctx context.Context, width, height, bpp uint32) (kms.BufferObject, uint32, error) {
	if width == 0 || height == 0 {
		return nil, 0, fmt.Errorf("swdriver: zero-sized dumb buffer")
	}
	pitch := (width*bpp + 7) / 8
	size := uint64(pitch) * uint64(height)
	bo := &BufferObject{
		width: width, height: height,
		size: size,
		data: make([]byte, size),
		tag:  uuid.NewString(),
	}
	d.log.Debug().Str("tag", bo.tag).Uint32("width", width).Uint32("height", height).Uint64("size", size).Msg("swdriver: allocated dumb buffer")
	return bo, pitch, nil
}

func (d *Driver) CreateFrameBuffer(ctx context.Context, bo kms.BufferObject, width, height, pitch, fourcc uint32, modifier uint64) (func(context.Context) error, error) {
	notify := func(context.Context) error {
		d.log.Debug().Uint32("width", width).Uint32("height", height).Msg("swdriver: framebuffer marked dirty")
		return nil
	}
	return notify, nil
}

func (d *Driver) DriverVersion() (major, minor, patch int) {
	return d.version.major, d.version.minor, d.version.patch
}

func (d *Driver) DriverInfo() (name, desc, date string) {
	return d.info.name, d.info.desc, d.info.date
}

func (d *Driver) CursorWidth() uint32            { return d.cursorWidth }
func (d *Driver) CursorHeight() uint32           { return d.cursorHeight }
func (d *Driver) AddFB2ModifiersSupported() bool { return d.modifiersSupported }

// configuration completes every commit the instant Apply is called: there
// is no real hardware to wait on a vblank from.
type configuration struct {
	done chan struct{}
}

func newConfiguration() *configuration {
	return &configuration{done: make(chan struct{})}
}

func (c *configuration) Apply(ctx context.Context, state *kms.AtomicState) {
	close(c.done)
}

func (c *configuration) Done() <-chan struct{} { return c.done }
func (c *configuration) Err() error             { return nil }
