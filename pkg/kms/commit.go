package kms

import (
	"context"
	"fmt"

	"github.com/ChengyuZhu6/drmcore/internal/wire"
)

// NewAtomicState returns a fresh, empty AtomicState bound to d, ready to be
// populated by Capture.
func (d *Device) NewAtomicState() *AtomicState {
	return newAtomicState(d)
}

// Capture runs property.Capture against a fresh AtomicState, returning the
// state (still unapplied) on success. On failure the partially-touched
// state is simply discarded by the caller; no live object is ever mutated
// here (§4.4, §8.1 invariant 1).
func (d *Device) Capture(assignments []Assignment) (*AtomicState, error) {
	state := d.NewAtomicState()
	if !CaptureInto(assignments, state) {
		return nil, fmt.Errorf("kms: %w: assignment validation failed", ErrIllegalArgument)
	}
	return state, nil
}

// CaptureInto forwards to property.go's package-level Capture (itself
// exported), kept as a small indirection so callers outside this file read
// "capture" the way spec §4.4 names it.
func CaptureInto(assignments []Assignment, state *AtomicState) bool {
	return Capture(assignments, state)
}

// Commit hands state to the Driver for asynchronous hardware programming.
// It serializes with every other in-flight commit on this Device (the
// "simplest correct implementation" §4.4 explicitly sanctions), applies the
// new state to the live objects the moment the driver reports success, and
// then invokes postApply (if non-nil) with the outcome — used by the
// atomic page-flip path to fire completion events only after the state
// they describe is actually live. The returned Configuration's Done closes
// only once that apply step (and postApply) has finished, so a caller that
// awaits completion (wait_for_completion) is guaranteed to observe the new
// live state; fire-and-forget callers can ignore the return value entirely.
func (d *Device) Commit(ctx context.Context, state *AtomicState, postApply func(err error)) Configuration {
	d.commits.Lock()
	cfg := d.driver.CreateConfiguration()
	cfg.Apply(ctx, state)
	done := make(chan struct{})
	result := &appliedConfiguration{done: done}
	go func() {
		<-cfg.Done()
		err := cfg.Err()
		if err == nil {
			state.apply()
		}
		if postApply != nil {
			postApply(err)
		}
		result.err = err
		close(done)
		d.commits.Unlock()
	}()
	return result
}

// appliedConfiguration wraps a driver Configuration so that Done only
// closes once this commit's state has actually been swapped onto the live
// objects (and any postApply hook has run), never before.
type appliedConfiguration struct {
	done chan struct{}
	err  error
}

func (c *appliedConfiguration) Apply(ctx context.Context, state *AtomicState) {}
func (c *appliedConfiguration) Done() <-chan struct{}                        { return c.done }
func (c *appliedConfiguration) Err() error                                   { return c.err }

// WaitForCompletion blocks until cfg's commit has fully taken effect,
// honouring ctx cancellation.
func WaitForCompletion(ctx context.Context, cfg Configuration) error {
	select {
	case <-cfg.Done():
		return cfg.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AssignmentFromWire builds the right Assignment variant for prop's Kind
// out of a single flat uint64 value, as MODE_SETPROPERTY and MODE_ATOMIC
// receive them on the wire. Object/Blob kinds resolve the id through the
// Device; 0 means "detach" for both, matching upstream's "id 0 is never
// valid" convention.
func (d *Device) AssignmentFromWire(obj Object, prop *Property, value uint64) (Assignment, error) {
	switch prop.kind {
	case KindIntRange, KindEnum:
		return AssignmentInt(obj, prop, value), nil
	case KindSignedRange:
		return AssignmentSignedInt(obj, prop, int64(value)), nil
	case KindObject:
		if value == 0 {
			return AssignmentObject(obj, prop, nil), nil
		}
		ref, ok := d.Object(uint32(value))
		if !ok {
			return Assignment{}, fmt.Errorf("kms: %w: unknown object id %d", ErrIllegalArgument, value)
		}
		return AssignmentObject(obj, prop, ref), nil
	case KindBlob:
		if value == 0 {
			return AssignmentBlob(obj, prop, nil), nil
		}
		b, ok := d.FindBlob(uint32(value))
		if !ok {
			return Assignment{}, fmt.Errorf("kms: %w: unknown blob id %d", ErrIllegalArgument, value)
		}
		return AssignmentBlob(obj, prop, b), nil
	default:
		return Assignment{}, fmt.Errorf("kms: property %q has unknown kind", prop.name)
	}
}

// AssignmentWireValue is the inverse projection: the flat uint64 a client
// reading this Assignment back via OBJ_GETPROPERTIES/GETPROPERTY should
// see.
func AssignmentWireValue(a Assignment) uint64 {
	switch a.Property.kind {
	case KindSignedRange:
		return uint64(a.SInt)
	case KindObject:
		if a.Obj == nil {
			return 0
		}
		return uint64(a.Obj.ID())
	case KindBlob:
		if a.Blob == nil {
			return 0
		}
		return uint64(a.Blob.ID())
	default:
		return a.Int
	}
}

// SetCrtcRequest carries the legacy MODE_SETCRTC request's fields, already
// resolved from wire ids to objects by the dispatcher.
type SetCrtcRequest struct {
	Crtc       *Crtc
	FB         *FrameBuffer
	X, Y       uint32 // offset into FB the scanout starts at
	Connectors []*Connector
	Mode       *wire.ModeInfo // nil means "disable"
}

// LegacySetCrtc translates a MODE_SETCRTC request into the fixed Assignment
// list spec §4.4 describes, captures it, commits, and waits for completion.
// A nil Mode disables the Crtc (ACTIVE=0, MODE_ID=null) rather than
// touching FB_ID/SRC_*/CRTC_* at all.
func (d *Device) LegacySetCrtc(ctx context.Context, req SetCrtcRequest) error {
	var assignments []Assignment

	if req.Mode == nil {
		assignments = append(assignments,
			AssignmentInt(req.Crtc, d.propActive, 0),
			AssignmentBlob(req.Crtc, d.propModeID, nil),
		)
	} else {
		blob, err := d.RegisterBlob(wire.EncodeModeInfo(*req.Mode))
		if err != nil {
			return fmt.Errorf("kms: registering mode blob: %w", err)
		}
		primary := req.Crtc.PrimaryPlane()
		assignments = append(assignments,
			AssignmentInt(req.Crtc, d.propActive, 1),
			AssignmentBlob(req.Crtc, d.propModeID, blob),
			AssignmentObject(primary, d.propFbID, frameBufferObject(req.FB)),
			AssignmentInt(primary, d.propSrcX, uint64(req.X)<<16),
			AssignmentInt(primary, d.propSrcY, uint64(req.Y)<<16),
			AssignmentInt(primary, d.propSrcW, uint64(req.Mode.HDisplay)<<16),
			AssignmentInt(primary, d.propSrcH, uint64(req.Mode.VDisplay)<<16),
			AssignmentSignedInt(primary, d.propCrtcX, 0),
			AssignmentSignedInt(primary, d.propCrtcY, 0),
			AssignmentInt(primary, d.propCrtcW, uint64(req.Mode.HDisplay)),
			AssignmentInt(primary, d.propCrtcH, uint64(req.Mode.VDisplay)),
			AssignmentObject(primary, d.propCrtcID, req.Crtc),
		)
		for _, conn := range req.Connectors {
			assignments = append(assignments, AssignmentObject(conn, d.propCrtcID, req.Crtc))
		}
	}

	return d.CommitNow(ctx, assignments)
}

// CommitNow is the common capture+commit+wait sequence the legacy
// mode-set and cursor ioctls share (§4.4, §4.7).
func (d *Device) CommitNow(ctx context.Context, assignments []Assignment) error {
	state, err := d.Capture(assignments)
	if err != nil {
		return err
	}
	cfg := d.Commit(ctx, state, nil)
	return WaitForCompletion(ctx, cfg)
}

// PageFlip translates a MODE_PAGE_FLIP request into an Assignment against
// the Crtc's primary plane, commits it, and — if wantEvent is set — arms a
// single flip-complete event for this Crtc once the commit lands. It
// always awaits completion before returning: this core treats PAGE_FLIP as
// blocking, matching upstream's default absent DRM_MODE_PAGE_FLIP_ASYNC.
func (d *Device) PageFlip(ctx context.Context, crtc *Crtc, fb *FrameBuffer, wantEvent bool, cookie uint64, emit func(crtcID uint32)) error {
	assignments := []Assignment{
		AssignmentObject(crtc.PrimaryPlane(), d.propFbID, frameBufferObject(fb)),
		AssignmentObject(crtc.PrimaryPlane(), d.propCrtcID, crtc),
	}
	state, err := d.Capture(assignments)
	if err != nil {
		return err
	}
	var postApply func(error)
	if wantEvent && emit != nil {
		postApply = func(err error) {
			if err == nil {
				emit(crtc.ID())
			}
		}
	}
	cfg := d.Commit(ctx, state, postApply)
	return WaitForCompletion(ctx, cfg)
}

// AtomicCommit captures assignments, then — unless testOnly — commits them.
// touched reports every Crtc the resulting state actually clones state for.
// wantEvent mirrors the request's PAGE_FLIP_EVENT flag: per the Open
// Question decision recorded in SPEC_FULL.md, requesting an event on a
// commit that touches no Crtc is rejected before any commit is issued,
// rather than silently accepted-and-ignored. When wantEvent and emit are
// both set, emit is called once per touched Crtc after the commit lands
// successfully. When testOnly is set, the state is discarded after a
// successful Capture and cfg is nil.
func (d *Device) AtomicCommit(ctx context.Context, assignments []Assignment, testOnly, nonBlock, wantEvent bool, emit func(crtcID uint32)) (touched []*Crtc, cfg Configuration, err error) {
	state, err := d.Capture(assignments)
	if err != nil {
		return nil, nil, err
	}
	touched = state.TouchedCrtcs()
	if wantEvent && len(touched) == 0 {
		return nil, nil, fmt.Errorf("kms: %w: PAGE_FLIP_EVENT requires a touched crtc", ErrIllegalArgument)
	}
	if testOnly {
		return touched, nil, nil
	}
	var postApply func(error)
	if wantEvent && emit != nil {
		postApply = func(err error) {
			if err != nil {
				return
			}
			for _, c := range touched {
				emit(c.ID())
			}
		}
	}
	cfg = d.Commit(ctx, state, postApply)
	if !nonBlock {
		if err := WaitForCompletion(ctx, cfg); err != nil {
			return touched, cfg, err
		}
	}
	return touched, cfg, nil
}
