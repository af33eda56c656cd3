package kms_test

import (
	"testing"

	"github.com/ChengyuZhu6/drmcore/internal/wire"
	"github.com/ChengyuZhu6/drmcore/pkg/kms"
)

func TestCaptureRejectsOutOfRangeActive(t *testing.T) {
	dev, crtc, _, _ := newTestDevice(t)
	assignments := []kms.Assignment{kms.AssignmentInt(crtc, dev.ActiveProperty(), 2)}
	if _, err := dev.Capture(assignments); err == nil {
		t.Fatalf("Capture should reject ACTIVE=2, outside its [0,1] range")
	}
}

func TestCaptureAcceptsInRangeActive(t *testing.T) {
	dev, crtc, _, _ := newTestDevice(t)
	assignments := []kms.Assignment{kms.AssignmentInt(crtc, dev.ActiveProperty(), 1)}
	if _, err := dev.Capture(assignments); err != nil {
		t.Fatalf("Capture should accept ACTIVE=1: %v", err)
	}
}

func TestCaptureRejectsPlaneTypeChange(t *testing.T) {
	dev, _, primary, _ := newTestDevice(t)
	assignments := []kms.Assignment{
		kms.AssignmentInt(primary, dev.PlaneTypeProperty(), uint64(kms.PlaneTypeCursor)),
	}
	if _, err := dev.Capture(assignments); err == nil {
		t.Fatalf("Capture should reject writing a non-matching value to the immutable 'type' property")
	}
}

func TestCaptureAcceptsPlaneTypeEchoBack(t *testing.T) {
	dev, _, primary, _ := newTestDevice(t)
	assignments := []kms.Assignment{
		kms.AssignmentInt(primary, dev.PlaneTypeProperty(), uint64(kms.PlaneTypePrimary)),
	}
	if _, err := dev.Capture(assignments); err != nil {
		t.Fatalf("Capture should accept a client echoing back the plane's own type: %v", err)
	}
}

func TestCaptureRejectsInvalidModeChain(t *testing.T) {
	dev, crtc, _, _ := newTestDevice(t)
	bad := wire.ModeInfo{HDisplay: 100, HSyncStart: 50, HSyncEnd: 120, HTotal: 130}
	blob, err := dev.RegisterBlob(wire.EncodeModeInfo(bad))
	if err != nil {
		t.Fatalf("RegisterBlob: %v", err)
	}
	assignments := []kms.Assignment{kms.AssignmentBlob(crtc, dev.ModeIDProperty(), blob)}
	if _, err := dev.Capture(assignments); err == nil {
		t.Fatalf("Capture should reject a MODE_ID blob whose timing chain is not monotone")
	}
}

func TestCaptureAcceptsNilModeToDisable(t *testing.T) {
	dev, crtc, _, _ := newTestDevice(t)
	assignments := []kms.Assignment{kms.AssignmentBlob(crtc, dev.ModeIDProperty(), nil)}
	if _, err := dev.Capture(assignments); err != nil {
		t.Fatalf("Capture should accept a nil MODE_ID (disabling the crtc): %v", err)
	}
}

func TestCaptureRejectsUnknownDPMSValue(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	conn, err := dev.AddConnector(15, 0, 0, wire.SubpixelUnknown, nil)
	if err != nil {
		t.Fatalf("AddConnector: %v", err)
	}
	assignments := []kms.Assignment{kms.AssignmentInt(conn, dev.DPMSProperty(), 99)}
	if _, err := dev.Capture(assignments); err == nil {
		t.Fatalf("Capture should reject DPMS=99, which is not a registered enum member")
	}
}

func TestCaptureRejectsObjectOfWrongType(t *testing.T) {
	dev, _, primary, _ := newTestDevice(t)
	// CRTC_ID only accepts a Crtc reference; pointing it at the primary
	// plane itself should be rejected by the property's objectTypes check.
	assignments := []kms.Assignment{
		kms.AssignmentObject(primary, dev.CrtcIDProperty(), primary),
	}
	if _, err := dev.Capture(assignments); err == nil {
		t.Fatalf("Capture should reject CRTC_ID referencing a non-Crtc object")
	}
}

func TestAssignmentFromWireResolvesObjectReference(t *testing.T) {
	dev, crtc, primary, _ := newTestDevice(t)
	a, err := dev.AssignmentFromWire(primary, dev.CrtcIDProperty(), uint64(crtc.ID()))
	if err != nil {
		t.Fatalf("AssignmentFromWire: %v", err)
	}
	if a.Obj != kms.Object(crtc) {
		t.Fatalf("AssignmentFromWire should resolve the wire id to the Crtc object")
	}
}

func TestAssignmentFromWireZeroDetaches(t *testing.T) {
	dev, _, primary, _ := newTestDevice(t)
	a, err := dev.AssignmentFromWire(primary, dev.CrtcIDProperty(), 0)
	if err != nil {
		t.Fatalf("AssignmentFromWire: %v", err)
	}
	if a.Obj != nil {
		t.Fatalf("AssignmentFromWire(value=0) on an Object-kind property should produce a nil (detach) reference")
	}
}

func TestAssignmentFromWireUnknownObjectFails(t *testing.T) {
	dev, _, primary, _ := newTestDevice(t)
	if _, err := dev.AssignmentFromWire(primary, dev.CrtcIDProperty(), 0xffffff); err == nil {
		t.Fatalf("AssignmentFromWire should fail to resolve a non-existent object id")
	}
}

func TestAssignmentWireValueRoundTrip(t *testing.T) {
	dev, crtc, primary, _ := newTestDevice(t)
	a := kms.AssignmentObject(primary, dev.CrtcIDProperty(), crtc)
	if got := kms.AssignmentWireValue(a); got != uint64(crtc.ID()) {
		t.Fatalf("AssignmentWireValue = %d, want %d", got, crtc.ID())
	}
}
