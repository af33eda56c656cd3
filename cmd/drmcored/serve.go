package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ChengyuZhu6/drmcore/internal/wire"
	"github.com/ChengyuZhu6/drmcore/pkg/dispatch"
	"github.com/ChengyuZhu6/drmcore/pkg/kms"
	"github.com/ChengyuZhu6/drmcore/pkg/transport"
)

// session pairs one accepted Conn with the File it backs, and implements
// the IndirectRegion a File's BO handles are spliced into.
type session struct {
	conn transport.Conn
	file *kms.File
	log  zerolog.Logger

	slices map[uint32]struct {
		handle kms.MemoryHandle
		length uint64
	}
}

func (s *session) Splice(slot uint32, handle kms.MemoryHandle, length uint64) {
	if s.slices == nil {
		s.slices = make(map[uint32]struct {
			handle kms.MemoryHandle
			length uint64
		})
	}
	s.slices[slot] = struct {
		handle kms.MemoryHandle
		length uint64
	}{handle, length}
}

// serveConn drives one accepted connection end to end: the OPEN handshake,
// then request/reply until the Conn reports an error (§6.2, §7 — a Conn
// failure is local to this session and never touches the Device or any
// other File).
func serveConn(ctx context.Context, dev *kms.Device, disp *dispatch.Dispatcher, conn transport.Conn, log zerolog.Logger) {
	defer conn.Close()

	nonBlock, err := conn.RecvOpen(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("drmcored: OPEN handshake failed")
		return
	}
	sess := &session{conn: conn, log: log}
	sess.file = kms.NewFile(dev, sess, nonBlock, log)
	defer sess.file.Close()

	for {
		req, err := conn.Recv(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Debug().Err(err).Msg("drmcored: connection closed")
			}
			return
		}
		reply, err := handle(ctx, disp, sess, req)
		if err != nil {
			log.Debug().Err(err).Uint32("cmd", req.Command).Msg("drmcored: request rejected")
			reply = transport.Reply{Head: wire.Encode(wire.ErrorReplyHead{Errno: int32(-dispatch.Errno(err))})}
		}
		if err := conn.Send(ctx, reply); err != nil {
			log.Warn().Err(err).Msg("drmcored: send failed")
			return
		}
	}
}

// handle decodes one Request's head/tail, calls the matching Dispatcher
// method, and encodes the reply. Every case mirrors spec §4.7's command
// list; an unrecognized command id is DRM_IOCTL_INVALID, the same
// ErrIllegalArgument path any other rejected request takes.
func handle(ctx context.Context, d *dispatch.Dispatcher, sess *session, req transport.Request) (transport.Reply, error) {
	f := sess.file
	switch req.Command {
	case wire.NRVersion:
		major, minor, patch, name, desc, date := d.Version()
		tail := append([]byte(name), 0)
		tail = append(tail, append([]byte(desc), 0)...)
		tail = append(tail, append([]byte(date), 0)...)
		head := wire.VersionReply{
			Major: int32(major), Minor: int32(minor), Patch: int32(patch),
			NameLen: uint32(len(name)), DescLen: uint32(len(desc)), DateLen: uint32(len(date)),
		}
		return transport.Reply{Head: wire.Encode(head), Tail: tail}, nil

	case wire.NRGetCap:
		r, ok := wire.Decode[wire.GetCapRequest](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short GET_CAP request", kms.ErrIllegalArgument)
		}
		v, err := d.GetCap(r.CapID)
		if err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{Head: wire.Encode(wire.GetCapReply{Value: v})}, nil

	case wire.NRSetClientCap:
		r, ok := wire.Decode[wire.SetClientCapRequest](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short SET_CLIENT_CAP request", kms.ErrIllegalArgument)
		}
		if err := d.SetClientCap(f, r.CapID, r.Value); err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{}, nil

	case wire.NRModeGetResources:
		rr := d.GetResources(f)
		head := wire.ResourcesReplyHead{
			CrtcCount: uint32(len(rr.CrtcIDs)), EncoderCount: uint32(len(rr.EncoderIDs)),
			ConnectorCount: uint32(len(rr.ConnectorIDs)), FbCount: uint32(len(rr.FbIDs)),
			MinWidth: rr.MinWidth, MaxWidth: rr.MaxWidth, MinHeight: rr.MinHeight, MaxHeight: rr.MaxHeight,
		}
		var tail []byte
		tail = append(tail, wire.PutUint32s(rr.CrtcIDs)...)
		tail = append(tail, wire.PutUint32s(rr.EncoderIDs)...)
		tail = append(tail, wire.PutUint32s(rr.ConnectorIDs)...)
		tail = append(tail, wire.PutUint32s(rr.FbIDs)...)
		return transport.Reply{Head: wire.Encode(head), Tail: tail}, nil

	case wire.NRModeGetConnector:
		r, ok := wire.Decode[wire.GetConnectorRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short GETCONNECTOR request", kms.ErrIllegalArgument)
		}
		reply, modes, err := d.GetConnector(ctx, dispatch.GetConnectorRequest{ConnectorID: r.ConnectorID, MaxModes: r.MaxModes})
		if err != nil {
			return transport.Reply{}, err
		}
		head := wire.ConnectorReplyHead{
			ConnectorID: reply.ConnectorID, ConnectorType: reply.ConnectorType, EncoderID: reply.EncoderID,
			Status: reply.Status, PhysWidthMM: reply.PhysWidthMM, PhysHeightMM: reply.PhysHeightMM,
			Subpixel: reply.Subpixel, ModeCount: reply.ModeCount, PropCount: uint32(len(reply.PropertyValues)),
		}
		var tail []byte
		for _, m := range modes {
			tail = append(tail, wire.EncodeModeInfo(m)...)
		}
		for _, pv := range reply.PropertyValues {
			tail = append(tail, wire.PutUint32s([]uint32{pv.PropertyID})...)
			tail = append(tail, wire.PutUint64s([]uint64{pv.Value})...)
		}
		return transport.Reply{Head: wire.Encode(head), Tail: tail}, nil

	case wire.NRModeGetEncoder:
		r, ok := wire.Decode[wire.EncoderRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short GETENCODER request", kms.ErrIllegalArgument)
		}
		reply, err := d.GetEncoder(r.EncoderID)
		if err != nil {
			return transport.Reply{}, err
		}
		head := wire.EncoderReplyHead(reply)
		return transport.Reply{Head: wire.Encode(head)}, nil

	case wire.NRModeGetPlane:
		r, ok := wire.Decode[wire.PlaneRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short GETPLANE request", kms.ErrIllegalArgument)
		}
		reply, err := d.GetPlane(r.PlaneID)
		if err != nil {
			return transport.Reply{}, err
		}
		head := wire.PlaneReplyHead{
			PlaneID: reply.PlaneID, PossibleCrtcs: reply.PossibleCrtcs,
			CrtcID: reply.CrtcID, FbID: reply.FbID, FormatCount: uint32(len(reply.Formats)),
		}
		return transport.Reply{Head: wire.Encode(head), Tail: wire.PutUint32s(reply.Formats)}, nil

	case wire.NRModeGetPlaneResources:
		ids := d.GetPlaneResources()
		return transport.Reply{Head: wire.Encode(uint32(len(ids))), Tail: wire.PutUint32s(ids)}, nil

	case wire.NRModeGetCrtc:
		r, ok := wire.Decode[wire.CrtcRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short GETCRTC request", kms.ErrIllegalArgument)
		}
		reply, err := d.GetCrtc(r.CrtcID)
		if err != nil {
			return transport.Reply{}, err
		}
		modeValid := uint32(0)
		if reply.ModeValid {
			modeValid = 1
		}
		head := wire.CrtcReplyHead{
			CrtcID: reply.CrtcID, FbID: reply.FbID, X: reply.X, Y: reply.Y,
			ModeValid: modeValid, GammaSize: reply.GammaSize, Mode: reply.Mode,
		}
		return transport.Reply{Head: wire.Encode(head)}, nil

	case wire.NRModeSetCrtc:
		r, ok := wire.Decode[wire.SetCrtcRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short SETCRTC request", kms.ErrIllegalArgument)
		}
		connIDs := wire.Uint32s(req.Tail)
		sr := dispatch.SetCrtcRequest{CrtcID: r.CrtcID, FbID: r.FbID, X: r.X, Y: r.Y, ConnectorIDs: connIDs}
		if r.ModeValid != 0 {
			m := r.Mode
			sr.Mode = &m
		}
		if err := d.SetCrtc(ctx, sr); err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{}, nil

	case wire.NRModeAddFB:
		r, ok := wire.Decode[wire.AddFBRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short ADDFB request", kms.ErrIllegalArgument)
		}
		id, err := d.AddFB(ctx, f, dispatch.AddFBRequest{Handle: r.Handle, Width: r.Width, Height: r.Height, Pitch: r.Pitch, BPP: r.BPP, Depth: r.Depth})
		if err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{Head: wire.Encode(wire.AddFBReplyHead{FbID: id})}, nil

	case wire.NRModeAddFB2:
		r, ok := wire.Decode[wire.AddFB2RequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short ADDFB2 request", kms.ErrIllegalArgument)
		}
		id, err := d.AddFB2(ctx, f, dispatch.AddFB2Request{
			Handle: r.Handle, Width: r.Width, Height: r.Height, Pitch: r.Pitch,
			Fourcc: r.Fourcc, Modifier: r.Modifier, HasModifier: r.HasModifier != 0,
		})
		if err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{Head: wire.Encode(wire.AddFBReplyHead{FbID: id})}, nil

	case wire.NRModeGetFB2:
		r, ok := wire.Decode[wire.GetFB2RequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short GETFB2 request", kms.ErrIllegalArgument)
		}
		reply, err := d.GetFB2(r.FbID)
		if err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{Head: wire.Encode(wire.GetFB2ReplyHead(reply))}, nil

	case wire.NRModeRmFB:
		r, ok := wire.Decode[wire.RmFBRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short RMFB request", kms.ErrIllegalArgument)
		}
		if err := d.RmFB(f, r.FbID); err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{}, nil

	case wire.NRModeDirtyFB:
		r, ok := wire.Decode[wire.DirtyFBRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short DIRTYFB request", kms.ErrIllegalArgument)
		}
		if err := d.DirtyFB(ctx, r.FbID); err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{}, nil

	case wire.NRModeCreateDumb:
		r, ok := wire.Decode[wire.CreateDumbRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short CREATE_DUMB request", kms.ErrIllegalArgument)
		}
		handle, pitch, size, err := d.CreateDumb(ctx, f, r.Width, r.Height, r.BPP)
		if err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{Head: wire.Encode(wire.CreateDumbReplyHead{Handle: handle, Pitch: pitch, Size: size})}, nil

	case wire.NRModeMapDumb:
		r, ok := wire.Decode[wire.MapDumbRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short MAP_DUMB request", kms.ErrIllegalArgument)
		}
		offset, err := d.MapDumb(f, r.Handle)
		if err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{Head: wire.Encode(wire.MapDumbReplyHead{Offset: offset})}, nil

	case wire.NRModeDestroyDumb, wire.NRGEMClose:
		r, ok := wire.Decode[wire.DestroyDumbRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short DESTROY_DUMB/GEM_CLOSE request", kms.ErrIllegalArgument)
		}
		if err := d.DestroyDumb(f, r.Handle); err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{}, nil

	case wire.NRModeCursor:
		r, ok := wire.Decode[wire.CursorRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short CURSOR request", kms.ErrIllegalArgument)
		}
		const cursorBO, cursorMove = 0x01, 0x02
		cr := dispatch.CursorRequest{
			CrtcID: r.CrtcID, SetBO: r.Flags&cursorBO != 0, MoveOnly: r.Flags&cursorMove != 0 && r.Flags&cursorBO == 0,
			Handle: r.Handle, Width: r.Width, Height: r.Height, X: r.X, Y: r.Y,
		}
		if err := d.Cursor(ctx, f, cr); err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{}, nil

	case wire.NRModeCursor2:
		r, ok := wire.Decode[wire.Cursor2RequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short CURSOR2 request", kms.ErrIllegalArgument)
		}
		const cursorBO = 0x01
		cr := dispatch.CursorRequest{
			CrtcID: r.CrtcID, SetBO: r.Flags&cursorBO != 0, MoveOnly: r.Flags&cursorBO == 0,
			Handle: r.Handle, Width: r.Width, Height: r.Height, X: r.X, Y: r.Y,
		}
		if err := d.Cursor(ctx, f, cr); err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{}, nil

	case wire.NRModePageFlip:
		r, ok := wire.Decode[wire.PageFlipRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short PAGE_FLIP request", kms.ErrIllegalArgument)
		}
		pr := dispatch.PageFlipRequest{CrtcID: r.CrtcID, FbID: r.FbID, Flags: r.Flags, UserData: r.UserData}
		if err := d.PageFlip(ctx, pr, func(crtcID uint32) { emitFlipComplete(f, crtcID, r.UserData) }); err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{}, nil

	case wire.NRModeObjGetProperties:
		r, ok := wire.Decode[wire.ObjGetPropertiesRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short OBJ_GETPROPERTIES request", kms.ErrIllegalArgument)
		}
		vals, err := d.ObjGetProperties(r.ObjID)
		if err != nil {
			return transport.Reply{}, err
		}
		var tail []byte
		for _, v := range vals {
			tail = append(tail, wire.PutUint32s([]uint32{v.PropertyID})...)
			tail = append(tail, wire.PutUint64s([]uint64{v.Value})...)
		}
		return transport.Reply{Head: wire.Encode(wire.ObjGetPropertiesReplyHead{PropCount: uint32(len(vals))}), Tail: tail}, nil

	case wire.NRModeObjSetProperty:
		r, ok := wire.Decode[wire.ObjSetPropertyRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short OBJ_SETPROPERTY request", kms.ErrIllegalArgument)
		}
		if err := d.SetProperty(ctx, r.ObjID, r.PropID, r.Value); err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{}, nil

	case wire.NRModeGetProperty:
		r, ok := wire.Decode[wire.GetPropertyRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short GETPROPERTY request", kms.ErrIllegalArgument)
		}
		reply, err := d.GetProperty(r.PropID)
		if err != nil {
			return transport.Reply{}, err
		}
		head := wire.GetPropertyReplyHead{
			PropID: reply.PropertyID, Flags: reply.Flags, IntMin: reply.IntMin, IntMax: reply.IntMax,
			SIntMin: reply.SIntMin, SIntMax: reply.SIntMax, ObjectTypeFlags: reply.ObjectTypeFlags,
			EnumCount: uint32(len(reply.Enum)), NameLen: uint32(len(reply.Name)),
		}
		tail := []byte(reply.Name)
		for _, e := range reply.Enum {
			tail = append(tail, wire.PutUint64s([]uint64{e.Value})...)
			nameBuf := make([]byte, 32)
			copy(nameBuf, e.Name)
			tail = append(tail, nameBuf...)
		}
		return transport.Reply{Head: wire.Encode(head), Tail: tail}, nil

	case wire.NRModeGetPropBlob:
		r, ok := wire.Decode[wire.GetPropBlobRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short GETPROPBLOB request", kms.ErrIllegalArgument)
		}
		data, err := d.GetPropBlob(r.BlobID)
		if err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{Head: wire.Encode(wire.GetPropBlobReplyHead{Size: uint32(len(data))}), Tail: data}, nil

	case wire.NRModeCreatePropBlob:
		id, err := d.CreatePropBlob(req.Tail)
		if err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{Head: wire.Encode(wire.CreatePropBlobReplyHead{BlobID: id})}, nil

	case wire.NRModeDestroyPropBlob:
		r, ok := wire.Decode[wire.DestroyPropBlobRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short DESTROYPROPBLOB request", kms.ErrIllegalArgument)
		}
		if err := d.DestroyPropBlob(r.BlobID); err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{}, nil

	case wire.NRModeAtomic:
		r, ok := wire.Decode[wire.AtomicRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short ATOMIC request", kms.ErrIllegalArgument)
		}
		ar, err := decodeAtomicTail(r, req.Tail)
		if err != nil {
			return transport.Reply{}, err
		}
		touched, err := d.Atomic(ctx, f, ar, func(crtcID uint32) { emitFlipComplete(f, crtcID, ar.UserData) })
		if err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{Head: wire.Encode(wire.AtomicReplyHead{TouchedCount: uint32(len(touched))}), Tail: wire.PutUint32s(touched)}, nil

	case wire.NRPrimeHandleToFD:
		r, ok := wire.Decode[wire.PrimeHandleRequestHead](req.Head)
		if !ok {
			return transport.Reply{}, fmt.Errorf("drmcored: %w: short PRIME_HANDLE_TO_FD request", kms.ErrIllegalArgument)
		}
		fd, err := d.PrimeHandleToFD(f, sess.conn, r.Handle)
		if err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{FDs: []int{fd}}, nil

	case wire.NRPrimeFDToHandle:
		creds, err := sess.conn.Credentials()
		if err != nil {
			return transport.Reply{}, fmt.Errorf("drmcored: extracting PRIME credentials: %w", err)
		}
		handle, err := d.PrimeFDToHandle(f, creds)
		if err != nil {
			return transport.Reply{}, err
		}
		return transport.Reply{Head: wire.Encode(wire.PrimeHandleReplyHead{Handle: handle})}, nil

	default:
		return transport.Reply{}, fmt.Errorf("drmcored: %w: unknown ioctl command 0x%x", kms.ErrIllegalArgument, req.Command)
	}
}

// decodeAtomicTail expands ATOMIC's Tail into the flattened arrays
// dispatch.Atomic expects: object ids, per-object prop-counts, property
// ids, and values, packed back to back in that order.
func decodeAtomicTail(head wire.AtomicRequestHead, tail []byte) (dispatch.AtomicRequest, error) {
	n := int(head.ObjectCount)
	need := n * 4 * 2 // object ids + prop-counts, both uint32
	if len(tail) < need {
		return dispatch.AtomicRequest{}, fmt.Errorf("drmcored: %w: ATOMIC tail shorter than object/prop-count arrays", kms.ErrIllegalArgument)
	}
	objectIDs := wire.Uint32s(tail[:n*4])
	propCounts := wire.Uint32s(tail[n*4 : n*4*2])
	rest := tail[n*4*2:]

	var total uint32
	for _, c := range propCounts {
		total += c
	}
	needRest := int(total)*4 + int(total)*8
	if len(rest) < needRest {
		return dispatch.AtomicRequest{}, fmt.Errorf("drmcored: %w: ATOMIC tail shorter than property/value arrays", kms.ErrIllegalArgument)
	}
	propertyIDs := wire.Uint32s(rest[:int(total)*4])
	values := wire.Uint64s(rest[int(total)*4:])

	return dispatch.AtomicRequest{
		Flags: head.Flags, UserData: head.UserData, ObjectIDs: objectIDs, PropCounts: propCounts,
		PropertyIDs: propertyIDs, Values: values,
	}, nil
}

// emitFlipComplete posts a flip-complete event onto f's queue, timestamped
// at post time by File.PostEvent itself.
func emitFlipComplete(f *kms.File, crtcID uint32, cookie uint64) {
	f.PostEvent(wire.NewFlipCompleteEvent(cookie, crtcID, 0))
}
