package kms

import (
	"context"
	"fmt"

	"github.com/ChengyuZhu6/drmcore/internal/wire"
)

// CursorBOAssignments builds the three Assignments MODE_CURSOR/MODE_CURSOR2's
// "BO" half desugars to (§4.7): FB_ID set to a fresh w x h ARGB8888
// FrameBuffer over the handle's BufferObject, and SRC_W/SRC_H set to match. handle==0 clears the
// cursor instead. Returns ErrNoBackingDevice if crtc has no cursor plane.
func (d *Device) CursorBOAssignments(ctx context.Context, f *File, crtc *Crtc, handle, w, h uint32) ([]Assignment, error) {
	cursor := crtc.CursorPlane()
	if cursor == nil {
		return nil, ErrNoBackingDevice
	}
	if handle == 0 {
		return []Assignment{
			AssignmentObject(cursor, d.propFbID, nil),
			AssignmentInt(cursor, d.propSrcW, 0),
			AssignmentInt(cursor, d.propSrcH, 0),
		}, nil
	}
	bo, ok := f.ResolveHandle(handle)
	if !ok {
		return nil, fmt.Errorf("kms: %w: unknown handle %d", ErrIllegalArgument, handle)
	}
	pitch := w * 4
	fb, err := d.CreateFrameBuffer(ctx, bo, w, h, wire.FormatARGB8888, pitch, 0)
	if err != nil {
		return nil, err
	}
	f.AttachFrameBuffer(fb)
	return []Assignment{
		AssignmentObject(cursor, d.propFbID, fb),
		AssignmentInt(cursor, d.propSrcW, uint64(w)<<16),
		AssignmentInt(cursor, d.propSrcH, uint64(h)<<16),
	}, nil
}

// CursorMoveAssignments builds MODE_CURSOR/MODE_CURSOR2's "MOVE" half:
// CRTC_X/CRTC_Y on the cursor plane.
func (d *Device) CursorMoveAssignments(crtc *Crtc, x, y int32) ([]Assignment, error) {
	cursor := crtc.CursorPlane()
	if cursor == nil {
		return nil, ErrNoBackingDevice
	}
	return []Assignment{
		AssignmentSignedInt(cursor, d.propCrtcX, int64(x)),
		AssignmentSignedInt(cursor, d.propCrtcY, int64(y)),
	}, nil
}
