package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ChengyuZhu6/drmcore/internal/swdriver"
	"github.com/ChengyuZhu6/drmcore/internal/wire"
	"github.com/ChengyuZhu6/drmcore/pkg/dispatch"
	"github.com/ChengyuZhu6/drmcore/pkg/kms"
)

// newTestDispatcher builds a single-head topology (mirroring
// cmd/drmcored's bring-up) against the in-memory software driver, and a
// File with the ATOMIC client cap enabled.
func newTestDispatcher(t *testing.T) (*dispatch.Dispatcher, *kms.Device, *kms.Crtc, *kms.File) {
	t.Helper()
	drv := swdriver.New(zerolog.Nop(), 64, true)
	dev := kms.NewDevice(drv, zerolog.Nop())

	primary, err := dev.AddPlane(kms.PlaneTypePrimary, nil, []uint32{wire.FormatXRGB8888}, nil)
	if err != nil {
		t.Fatalf("AddPlane(primary): %v", err)
	}
	cursor, err := dev.AddPlane(kms.PlaneTypeCursor, nil, []uint32{wire.FormatARGB8888}, nil)
	if err != nil {
		t.Fatalf("AddPlane(cursor): %v", err)
	}
	crtc, err := dev.AddCrtc(primary, cursor)
	if err != nil {
		t.Fatalf("AddCrtc: %v", err)
	}
	primary.SetPossibleCrtcs([]*kms.Crtc{crtc})
	cursor.SetPossibleCrtcs([]*kms.Crtc{crtc})

	disp := dispatch.New(dev, zerolog.Nop())
	f := kms.NewFile(dev, nil, false, zerolog.Nop())
	if err := f.SetClientCap(wire.ClientCapAtomic, 1); err != nil {
		t.Fatalf("SetClientCap(ATOMIC): %v", err)
	}
	return disp, dev, crtc, f
}

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{kms.ErrWouldBlock, wire.ErrnoAgain},
		{kms.ErrIllegalArgument, wire.ErrnoInvalid},
		{kms.ErrNoBackingDevice, wire.ErrnoInvalid},
		{errors.New("something else"), wire.ErrnoInvalid},
	}
	for _, c := range cases {
		if got := dispatch.Errno(c.err); got != c.want {
			t.Fatalf("Errno(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestGetCapUnknownIsIllegalArgument(t *testing.T) {
	disp, _, _, _ := newTestDispatcher(t)
	if _, err := disp.GetCap(0xdeadbeef); !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("GetCap(unknown) = %v, want ErrIllegalArgument", err)
	}
}

func TestGetCapDumbBuffer(t *testing.T) {
	disp, _, _, _ := newTestDispatcher(t)
	got, err := disp.GetCap(wire.CapDumbBuffer)
	if err != nil {
		t.Fatalf("GetCap(CapDumbBuffer): %v", err)
	}
	if got != 1 {
		t.Fatalf("GetCap(CapDumbBuffer) = %d, want 1", got)
	}
}

func TestGetCapCursorDimensions(t *testing.T) {
	disp, _, _, _ := newTestDispatcher(t)
	w, err := disp.GetCap(wire.CapCursorWidth)
	if err != nil {
		t.Fatalf("GetCap(CapCursorWidth): %v", err)
	}
	if w != 64 {
		t.Fatalf("GetCap(CapCursorWidth) = %d, want 64", w)
	}
}

func TestGetResourcesListsTopology(t *testing.T) {
	disp, _, crtc, f := newTestDispatcher(t)
	reply := disp.GetResources(f)
	if len(reply.CrtcIDs) != 1 || reply.CrtcIDs[0] != crtc.ID() {
		t.Fatalf("GetResources().CrtcIDs = %v, want [%d]", reply.CrtcIDs, crtc.ID())
	}
}

func TestGetCrtcUnknownID(t *testing.T) {
	disp, _, _, _ := newTestDispatcher(t)
	if _, err := disp.GetCrtc(0xffff); !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("GetCrtc(unknown) = %v, want ErrIllegalArgument", err)
	}
}

func TestGetCrtcRejectsNonCrtcObject(t *testing.T) {
	disp, dev, crtc, _ := newTestDispatcher(t)
	if _, err := disp.GetCrtc(crtc.PrimaryPlane().ID()); !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("GetCrtc(plane id) = %v, want ErrIllegalArgument", err)
	}
	_ = dev
}

func TestSetCrtcThenGetCrtcRoundTrip(t *testing.T) {
	disp, _, crtc, f := newTestDispatcher(t)
	ctx := context.Background()

	handle, _, _, err := disp.CreateDumb(ctx, f, 640, 480, 32)
	if err != nil {
		t.Fatalf("CreateDumb: %v", err)
	}
	fbID, err := disp.AddFB(ctx, f, dispatch.AddFBRequest{Handle: handle, Width: 640, Height: 480, Pitch: 2560, BPP: 32, Depth: 24})
	if err != nil {
		t.Fatalf("AddFB: %v", err)
	}

	mode := wire.ModeInfo{HDisplay: 640, HSyncStart: 656, HSyncEnd: 752, HTotal: 800, VDisplay: 480, VSyncStart: 490, VSyncEnd: 492, VTotal: 525}
	err = disp.SetCrtc(ctx, dispatch.SetCrtcRequest{CrtcID: crtc.ID(), FbID: fbID, Mode: &mode})
	if err != nil {
		t.Fatalf("SetCrtc: %v", err)
	}

	reply, err := disp.GetCrtc(crtc.ID())
	if err != nil {
		t.Fatalf("GetCrtc: %v", err)
	}
	if !reply.ModeValid {
		t.Fatalf("GetCrtc after SetCrtc should report a valid mode")
	}
	if reply.FbID != fbID {
		t.Fatalf("GetCrtc().FbID = %d, want %d", reply.FbID, fbID)
	}
	if reply.Mode.HDisplay != mode.HDisplay {
		t.Fatalf("GetCrtc().Mode.HDisplay = %d, want %d", reply.Mode.HDisplay, mode.HDisplay)
	}
}

func TestAddFBUnsupportedLegacyFormat(t *testing.T) {
	disp, _, _, f := newTestDispatcher(t)
	ctx := context.Background()
	handle, _, _, err := disp.CreateDumb(ctx, f, 64, 64, 32)
	if err != nil {
		t.Fatalf("CreateDumb: %v", err)
	}
	_, err = disp.AddFB(ctx, f, dispatch.AddFBRequest{Handle: handle, Width: 64, Height: 64, Pitch: 256, BPP: 32, Depth: 16})
	if !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("AddFB with an unsupported legacy bpp/depth pair = %v, want ErrIllegalArgument", err)
	}
}

func TestAtomicRejectsUnknownFlagBits(t *testing.T) {
	disp, _, _, f := newTestDispatcher(t)
	_, err := disp.Atomic(context.Background(), f, dispatch.AtomicRequest{Flags: 1 << 30}, nil)
	if !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("Atomic with an unknown flag bit = %v, want ErrIllegalArgument", err)
	}
}

func TestAtomicRejectsTestOnlyWithPageFlipEvent(t *testing.T) {
	disp, _, _, f := newTestDispatcher(t)
	flags := uint32(wire.AtomicTestOnly | wire.PageFlipEvent)
	_, err := disp.Atomic(context.Background(), f, dispatch.AtomicRequest{Flags: flags}, nil)
	if !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("Atomic(TEST_ONLY|PAGE_FLIP_EVENT) = %v, want ErrIllegalArgument", err)
	}
}

func TestAtomicRejectsPageFlipEventWithNoTouchedCrtc(t *testing.T) {
	disp, _, _, f := newTestDispatcher(t)
	_, err := disp.Atomic(context.Background(), f, dispatch.AtomicRequest{Flags: wire.PageFlipEvent}, nil)
	if !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("Atomic(PAGE_FLIP_EVENT, no objects touched) = %v, want ErrIllegalArgument", err)
	}
}

func TestAtomicRequiresAtomicClientCap(t *testing.T) {
	dev := kms.NewDevice(swdriver.New(zerolog.Nop(), 64, true), zerolog.Nop())
	disp := dispatch.New(dev, zerolog.Nop())
	f := kms.NewFile(dev, nil, false, zerolog.Nop())
	_, err := disp.Atomic(context.Background(), f, dispatch.AtomicRequest{}, nil)
	if !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("Atomic on a File without the ATOMIC client cap = %v, want ErrIllegalArgument", err)
	}
}

func TestAtomicSetsCrtcActiveAndReportsTouched(t *testing.T) {
	disp, dev, crtc, f := newTestDispatcher(t)
	req := dispatch.AtomicRequest{
		ObjectIDs:   []uint32{crtc.ID()},
		PropCounts:  []uint32{1},
		PropertyIDs: []uint32{dev.ActiveProperty().ID()},
		Values:      []uint64{1},
	}
	touched, err := disp.Atomic(context.Background(), f, req, nil)
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}
	if len(touched) != 1 || touched[0] != crtc.ID() {
		t.Fatalf("Atomic touched = %v, want [%d]", touched, crtc.ID())
	}
	if !crtc.DrmState().Active {
		t.Fatalf("expected the atomic commit to activate the crtc")
	}
}

func TestAtomicPropCountMismatchRejected(t *testing.T) {
	disp, _, crtc, f := newTestDispatcher(t)
	req := dispatch.AtomicRequest{
		ObjectIDs:  []uint32{crtc.ID()},
		PropCounts: []uint32{1, 2}, // length mismatch against ObjectIDs
	}
	if _, err := disp.Atomic(context.Background(), f, req, nil); !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("Atomic with mismatched object/prop-count arrays = %v, want ErrIllegalArgument", err)
	}
}

func TestObjGetPropertiesUnknownObject(t *testing.T) {
	disp, _, _, _ := newTestDispatcher(t)
	if _, err := disp.ObjGetProperties(0xffff); !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("ObjGetProperties(unknown) = %v, want ErrIllegalArgument", err)
	}
}

func TestGetPropertyReportsEnumEntries(t *testing.T) {
	disp, dev, _, _ := newTestDispatcher(t)
	reply, err := disp.GetProperty(dev.DPMSProperty().ID())
	if err != nil {
		t.Fatalf("GetProperty(DPMS): %v", err)
	}
	if len(reply.Enum) != 4 {
		t.Fatalf("GetProperty(DPMS).Enum has %d entries, want 4", len(reply.Enum))
	}
}

func TestCreatePropBlobThenGetPropBlob(t *testing.T) {
	disp, _, _, _ := newTestDispatcher(t)
	id, err := disp.CreatePropBlob([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("CreatePropBlob: %v", err)
	}
	data, err := disp.GetPropBlob(id)
	if err != nil {
		t.Fatalf("GetPropBlob: %v", err)
	}
	if len(data) != 4 {
		t.Fatalf("GetPropBlob returned %d bytes, want 4", len(data))
	}
	if err := disp.DestroyPropBlob(id); err != nil {
		t.Fatalf("DestroyPropBlob: %v", err)
	}
	if _, err := disp.GetPropBlob(id); err == nil {
		t.Fatalf("GetPropBlob should fail after DestroyPropBlob")
	}
}

func TestCreatePropBlobRejectsEmpty(t *testing.T) {
	disp, _, _, _ := newTestDispatcher(t)
	if _, err := disp.CreatePropBlob(nil); !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("CreatePropBlob(empty) = %v, want ErrIllegalArgument", err)
	}
}

func TestCreateDumbAndMapDumbRoundTrip(t *testing.T) {
	disp, _, _, f := newTestDispatcher(t)
	ctx := context.Background()
	handle, pitch, size, err := disp.CreateDumb(ctx, f, 32, 32, 32)
	if err != nil {
		t.Fatalf("CreateDumb: %v", err)
	}
	if pitch != 32*4 {
		t.Fatalf("CreateDumb pitch = %d, want %d", pitch, 32*4)
	}
	if size != uint64(pitch)*32 {
		t.Fatalf("CreateDumb size = %d, want %d", size, uint64(pitch)*32)
	}
	offset, err := disp.MapDumb(f, handle)
	if err != nil {
		t.Fatalf("MapDumb: %v", err)
	}
	offset2, err := disp.MapDumb(f, handle)
	if err != nil {
		t.Fatalf("MapDumb (second call): %v", err)
	}
	if offset != offset2 {
		t.Fatalf("MapDumb should be idempotent: got %d then %d", offset, offset2)
	}
	if err := disp.DestroyDumb(f, handle); err != nil {
		t.Fatalf("DestroyDumb: %v", err)
	}
}

func TestPrimeHandleRoundTripAcrossFiles(t *testing.T) {
	disp, dev, _, f := newTestDispatcher(t)
	ctx := context.Background()
	handle, _, _, err := disp.CreateDumb(ctx, f, 16, 16, 32)
	if err != nil {
		t.Fatalf("CreateDumb: %v", err)
	}
	bo, ok := f.ResolveHandle(handle)
	if !ok {
		t.Fatalf("ResolveHandle failed right after CreateDumb")
	}
	var creds [16]byte
	creds[0] = 7

	importer := kms.NewFile(dev, nil, false, zerolog.Nop())
	f.ExportBufferObject(handle, creds)
	importerHandle, err := disp.PrimeFDToHandle(importer, creds)
	if err != nil {
		t.Fatalf("PrimeFDToHandle: %v", err)
	}
	got, ok := importer.ResolveHandle(importerHandle)
	if !ok || got != bo {
		t.Fatalf("importer's handle does not resolve to the exported BufferObject")
	}
}
