package kms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ChengyuZhu6/drmcore/internal/idalloc"
	"github.com/ChengyuZhu6/drmcore/internal/wire"
)

const maxHandles = 1 << 20

// IndirectRegion is the per-File memory region a client's fd can be mmap'd
// against: index i (bo.Mapping()>>32) holds the host memory handle and
// length for the BO last spliced into that slot. A Transport implementation
// consults this to answer an mmap fault at a given offset without going
// back through the dispatcher.
type IndirectRegion interface {
	Splice(slot uint32, handle MemoryHandle, length uint64)
}

// File is one open session against a Device: everything spec §4.6 says is
// per-fd rather than Device-wide. Requests against the same File are
// serialized by the dispatcher (§5); File's own locking exists only to
// protect the event queue and handle table against concurrent Read/poll
// callers on the same fd, which the wire protocol does allow.
type File struct {
	mu  sync.Mutex
	dev *Device
	log zerolog.Logger

	region IndirectRegion

	handleIDs  *idalloc.Allocator
	handles    map[uint32]BufferObject
	boToHandle map[BufferObject]uint32

	framebuffers map[uint32]*FrameBuffer

	queue    []wire.EventVblank
	eventSeq uint64
	notify   chan struct{} // closed and replaced whenever eventSeq advances

	closed bool

	nonBlocking     bool
	atomicCap       bool
	universalPlanes bool

	now func() time.Time
}

// NewFile opens a session against dev. nonBlocking mirrors the OPEN
// request's NONBLOCK flag (§6.2); region lets the dispatcher's Transport
// answer mmap faults against handles this File creates.
func NewFile(dev *Device, region IndirectRegion, nonBlocking bool, log zerolog.Logger) *File {
	f := &File{
		dev:          dev,
		log:          log,
		region:       region,
		handleIDs:    idalloc.New(maxHandles),
		handles:      make(map[uint32]BufferObject),
		boToHandle:   make(map[BufferObject]uint32),
		framebuffers: make(map[uint32]*FrameBuffer),
		notify:       make(chan struct{}),
		nonBlocking:  nonBlocking,
		now:          time.Now,
	}
	// handle 0 doubles as "no handle" (cursor-clear, PRIME "none") and is
	// never handed out, mirroring Device's object/blob id 0 reservation.
	if err := f.handleIDs.Reserve(0); err != nil {
		panic("kms: reserving handle 0: " + err.Error())
	}
	return f
}

func (f *File) Device() *Device { return f.dev }

// ---- Client capability flags -------------------------------------------

// SetClientCap applies SET_CLIENT_CAP. Enabling ATOMIC implicitly enables
// UniversalPlanes, matching upstream's drm_client_cap semantics.
func (f *File) SetClientCap(cap uint64, val uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch cap {
	case wire.ClientCapUniversalPlanes:
		f.universalPlanes = val != 0
	case wire.ClientCapAtomic:
		f.atomicCap = val != 0
		if f.atomicCap {
			f.universalPlanes = true
		}
	case wire.ClientCapStereo3D:
		return ErrIllegalArgument
	default:
		return ErrIllegalArgument
	}
	return nil
}

func (f *File) AtomicCap() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.atomicCap
}

func (f *File) UniversalPlanes() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.universalPlanes
}

// ---- BO handle table (§4.6.1) ------------------------------------------

// CreateHandle allocates a new File-local handle for bo and splices its
// host memory into this File's indirect region at bo.Mapping()'s slot so a
// client can mmap the fd at that offset.
func (f *File) CreateHandle(bo BufferObject) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle, err := f.handleIDs.Allocate()
	if err != nil {
		return 0, fmt.Errorf("kms: allocating BO handle: %w", err)
	}
	f.handles[handle] = bo
	f.boToHandle[bo] = handle

	if off, ok := bo.Mapping(); ok && f.region != nil {
		slot := uint32(off >> 32)
		memHandle, _ := bo.Memory()
		f.region.Splice(slot, memHandle, bo.Size())
	}
	return handle, nil
}

// ResolveHandle looks up the BufferObject a handle names.
func (f *File) ResolveHandle(handle uint32) (BufferObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bo, ok := f.handles[handle]
	return bo, ok
}

// GetHandle returns the handle bo is already known by in this File, if any.
func (f *File) GetHandle(bo BufferObject) (uint32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.boToHandle[bo]
	return h, ok
}

// CloseHandle drops handle from the table (GEM_CLOSE / DESTROY_DUMB). The
// BufferObject itself survives as long as any other reference to it does;
// this only releases the File-local name and its id.
func (f *File) CloseHandle(handle uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bo, ok := f.handles[handle]
	if !ok {
		return fmt.Errorf("kms: %w: unknown handle %d", ErrIllegalArgument, handle)
	}
	delete(f.handles, handle)
	delete(f.boToHandle, bo)
	f.handleIDs.Free(handle)
	return nil
}

// ---- Framebuffer attachment ----------------------------------------------

// AttachFrameBuffer records fb as belonging to this File, for
// MODE_GETRESOURCES enumeration and MODE_RMFB.
func (f *File) AttachFrameBuffer(fb *FrameBuffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.framebuffers[fb.ID()] = fb
}

// DetachFrameBuffer removes fb from this File's list (MODE_RMFB); per the
// Open Question decision this does not touch any Plane's reference to fb.
func (f *File) DetachFrameBuffer(id uint32) (*FrameBuffer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fb, ok := f.framebuffers[id]
	if ok {
		delete(f.framebuffers, id)
	}
	return fb, ok
}

// FrameBuffers returns every FrameBuffer this File has attached.
func (f *File) FrameBuffers() []*FrameBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FrameBuffer, 0, len(f.framebuffers))
	for _, fb := range f.framebuffers {
		out = append(out, fb)
	}
	return out
}

// ---- Event queue (§4.6.2) ------------------------------------------------

// PostEvent timestamps ev with the host monotonic clock, enqueues it, and —
// only on the empty-to-nonempty transition — bumps the event sequence and
// wakes any Read/PollWait waiter.
func (f *File) PostEvent(ev wire.EventVblank) {
	now := f.now().UnixNano()
	ev.TVSec = uint32(now / 1e9)
	ev.TVUSec = uint32((now % 1e9) / 1e3)

	f.mu.Lock()
	wasEmpty := len(f.queue) == 0
	f.queue = append(f.queue, ev)
	if wasEmpty {
		f.eventSeq++
		f.wakeLocked()
	}
	f.mu.Unlock()
}

// wakeLocked closes and replaces the notify channel; callers must hold mu.
func (f *File) wakeLocked() {
	close(f.notify)
	f.notify = make(chan struct{})
}

// Read dequeues one event and encodes it as a drm_event_vblank. If the
// queue is empty it blocks until an event arrives or ctx is cancelled,
// unless this File is non-blocking, in which case it returns ErrWouldBlock
// immediately.
func (f *File) Read(ctx context.Context) (wire.EventVblank, error) {
	for {
		f.mu.Lock()
		if len(f.queue) > 0 {
			ev := f.queue[0]
			f.queue = f.queue[1:]
			f.mu.Unlock()
			return ev, nil
		}
		if f.nonBlocking {
			f.mu.Unlock()
			return wire.EventVblank{}, ErrWouldBlock
		}
		if f.closed {
			f.mu.Unlock()
			return wire.EventVblank{}, fmt.Errorf("kms: file closed")
		}
		ch := f.notify
		f.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return wire.EventVblank{}, ctx.Err()
		}
	}
}

// PollWait blocks until the event sequence advances past sequence, or
// returns immediately with an error if sequence is already ahead of the
// File's current sequence (a client can never legitimately claim to have
// observed a sequence number that hasn't happened yet). cancel, if non-nil,
// is closed to wake the wait early without error (EPOLL-style poll
// cancellation).
func (f *File) PollWait(ctx context.Context, sequence uint64, cancel <-chan struct{}) (uint64, uint32, error) {
	f.mu.Lock()
	if sequence > f.eventSeq {
		f.mu.Unlock()
		return 0, 0, fmt.Errorf("kms: %w: sequence %d is ahead of current %d", ErrIllegalArgument, sequence, f.eventSeq)
	}
	for f.eventSeq <= sequence && !f.closed {
		ch := f.notify
		f.mu.Unlock()
		select {
		case <-ch:
		case <-cancel:
			return f.currentStatus()
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		}
		f.mu.Lock()
	}
	seq, mask := f.eventSeq, f.pollMaskLocked()
	f.mu.Unlock()
	return seq, mask, nil
}

// PollStatus returns the current sequence and readiness mask without
// blocking.
func (f *File) PollStatus() (uint64, uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventSeq, f.pollMaskLocked()
}

func (f *File) currentStatus() (uint64, uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventSeq, f.pollMaskLocked(), nil
}

func (f *File) pollMaskLocked() uint32 {
	if len(f.queue) > 0 {
		return wire.EPOLLIN
	}
	return 0
}

// Close tears down this File: its event queue, its BO handles, and detaches
// (without destroying) every attached FrameBuffer, waking any blocked
// Read/PollWait caller.
func (f *File) Close() {
	f.mu.Lock()
	f.closed = true
	f.queue = nil
	f.handles = make(map[uint32]BufferObject)
	f.boToHandle = make(map[BufferObject]uint32)
	f.framebuffers = make(map[uint32]*FrameBuffer)
	f.wakeLocked()
	f.mu.Unlock()
}

// ---- PRIME export/import (§4.6.3) ----------------------------------------

// ExportBufferObject resolves handle in this File and registers it in the
// Device's PRIME export table under creds.
func (f *File) ExportBufferObject(handle uint32, creds [16]byte) (BufferObject, error) {
	bo, ok := f.ResolveHandle(handle)
	if !ok {
		return nil, fmt.Errorf("kms: %w: unknown handle %d", ErrIllegalArgument, handle)
	}
	f.dev.registerBufferObject(primeCredential(creds), bo)
	return bo, nil
}

// ImportBufferObject looks creds up in the Device's PRIME export table,
// reusing this File's existing handle for that BO if one exists or
// creating a fresh one otherwise.
func (f *File) ImportBufferObject(creds [16]byte) (BufferObject, uint32, error) {
	bo, ok := f.dev.findBufferObject(primeCredential(creds))
	if !ok {
		return nil, 0, fmt.Errorf("kms: %w: unknown PRIME credential", ErrIllegalArgument)
	}
	if h, ok := f.GetHandle(bo); ok {
		return bo, h, nil
	}
	h, err := f.CreateHandle(bo)
	if err != nil {
		return nil, 0, err
	}
	return bo, h, nil
}
