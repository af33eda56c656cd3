package kms_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ChengyuZhu6/drmcore/internal/wire"
	"github.com/ChengyuZhu6/drmcore/pkg/kms"
)

func TestAtomicCommitRejectsEventWithNoTouchedCrtc(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	_, _, err := dev.AtomicCommit(context.Background(), nil, false, false, true, nil)
	if !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("AtomicCommit(wantEvent=true, no assignments) = %v, want ErrIllegalArgument", err)
	}
}

func TestAtomicCommitTestOnlyDoesNotMutateLiveState(t *testing.T) {
	dev, crtc, _, _ := newTestDevice(t)
	assignments := []kms.Assignment{kms.AssignmentInt(crtc, dev.ActiveProperty(), 1)}

	touched, cfg, err := dev.AtomicCommit(context.Background(), assignments, true, false, false, nil)
	if err != nil {
		t.Fatalf("AtomicCommit(testOnly): %v", err)
	}
	if len(touched) != 1 || touched[0] != crtc {
		t.Fatalf("AtomicCommit(testOnly) touched = %v, want [crtc]", touched)
	}
	if cfg != nil {
		t.Fatalf("AtomicCommit(testOnly) should not return a live Configuration")
	}
	if crtc.DrmState().Active {
		t.Fatalf("AtomicCommit(testOnly) must not mutate live state")
	}
}

func TestAtomicCommitAppliesLiveState(t *testing.T) {
	dev, crtc, _, _ := newTestDevice(t)
	assignments := []kms.Assignment{kms.AssignmentInt(crtc, dev.ActiveProperty(), 1)}

	if _, _, err := dev.AtomicCommit(context.Background(), assignments, false, false, false, nil); err != nil {
		t.Fatalf("AtomicCommit: %v", err)
	}
	if !crtc.DrmState().Active {
		t.Fatalf("expected ACTIVE=1 to be live after a blocking AtomicCommit returns")
	}
}

func TestAtomicCommitFiresEventOnlyForTouchedCrtcs(t *testing.T) {
	dev, crtc, _, _ := newTestDevice(t)
	assignments := []kms.Assignment{
		kms.AssignmentInt(crtc, dev.ActiveProperty(), 1),
	}
	var fired []uint32
	touched, _, err := dev.AtomicCommit(context.Background(), assignments, false, false, true, func(id uint32) {
		fired = append(fired, id)
	})
	if err != nil {
		t.Fatalf("AtomicCommit: %v", err)
	}
	if len(touched) != 1 || touched[0] != crtc {
		t.Fatalf("AtomicCommit touched = %v, want [crtc]", touched)
	}
	if len(fired) != 1 || fired[0] != crtc.ID() {
		t.Fatalf("expected exactly one flip-complete callback for crtc %d, got %v", crtc.ID(), fired)
	}
}

func TestLegacySetCrtcEnableThenDisable(t *testing.T) {
	dev, crtc, primary, _ := newTestDevice(t)
	ctx := context.Background()

	mode := wire.ModeInfo{
		HDisplay: 640, HSyncStart: 656, HSyncEnd: 752, HTotal: 800,
		VDisplay: 480, VSyncStart: 490, VSyncEnd: 492, VTotal: 525,
	}
	if err := dev.LegacySetCrtc(ctx, kms.SetCrtcRequest{Crtc: crtc, Mode: &mode}); err != nil {
		t.Fatalf("LegacySetCrtc(enable): %v", err)
	}
	if !crtc.DrmState().Active {
		t.Fatalf("expected LegacySetCrtc with a non-nil mode to activate the crtc")
	}
	if crtc.DrmState().Mode == nil {
		t.Fatalf("expected LegacySetCrtc with a non-nil mode to register a MODE_ID blob")
	}
	wantSrcW := uint32(mode.HDisplay) // PlaneState keeps SRC_* in whole pixels
	if primary.DrmState().SrcW != wantSrcW {
		t.Fatalf("primary SRC_W = %d, want %d", primary.DrmState().SrcW, wantSrcW)
	}

	if err := dev.LegacySetCrtc(ctx, kms.SetCrtcRequest{Crtc: crtc, Mode: nil}); err != nil {
		t.Fatalf("LegacySetCrtc(disable): %v", err)
	}
	if crtc.DrmState().Active {
		t.Fatalf("expected LegacySetCrtc(nil mode) to clear ACTIVE")
	}
	if crtc.DrmState().Mode != nil {
		t.Fatalf("expected LegacySetCrtc(nil mode) to clear MODE_ID")
	}
	// Per the Open Question decision, disabling never touches SRC_W/FB_ID.
	if primary.DrmState().SrcW != wantSrcW {
		t.Fatalf("LegacySetCrtc(nil mode) must not touch the primary plane's SRC_W; got %d, want %d", primary.DrmState().SrcW, wantSrcW)
	}
}

func TestPageFlipArmsEventOnCompletion(t *testing.T) {
	dev, crtc, _, _ := newTestDevice(t)
	ctx := context.Background()

	var gotCrtc uint32
	fired := false
	err := dev.PageFlip(ctx, crtc, nil, true, 0xabcd, func(id uint32) {
		fired = true
		gotCrtc = id
	})
	if err != nil {
		t.Fatalf("PageFlip: %v", err)
	}
	if !fired {
		t.Fatalf("expected PageFlip's completion callback to fire")
	}
	if gotCrtc != crtc.ID() {
		t.Fatalf("PageFlip callback crtc id = %d, want %d", gotCrtc, crtc.ID())
	}
}

func TestDestroyFrameBufferDoesNotDetachFromPlane(t *testing.T) {
	dev, crtc, primary, _ := newTestDevice(t)
	ctx := context.Background()

	bo, _, err := dev.CreateDumb(ctx, 64, 64, 32)
	if err != nil {
		t.Fatalf("CreateDumb: %v", err)
	}
	fb, err := dev.CreateFrameBuffer(ctx, bo, 64, 64, wire.FormatXRGB8888, 256, 0)
	if err != nil {
		t.Fatalf("CreateFrameBuffer: %v", err)
	}
	assignments := []kms.Assignment{
		kms.AssignmentObject(primary, dev.FbIDProperty(), fb),
		kms.AssignmentObject(primary, dev.CrtcIDProperty(), crtc),
	}
	if _, _, err := dev.AtomicCommit(ctx, assignments, false, false, false, nil); err != nil {
		t.Fatalf("AtomicCommit: %v", err)
	}
	if primary.DrmState().FB != fb {
		t.Fatalf("expected primary plane's FB to be set after commit")
	}

	dev.DestroyFrameBuffer(fb)

	if primary.DrmState().FB != fb {
		t.Fatalf("per the RMFB open-question decision, destroying a framebuffer must not detach it from a plane still referencing it")
	}
	if _, ok := dev.Object(fb.ID()); ok {
		t.Fatalf("expected the destroyed framebuffer's id to be removed from the device object table")
	}
}
