package kms_test

import (
	"testing"

	"github.com/ChengyuZhu6/drmcore/pkg/kms"
)

func TestObjectTypeString(t *testing.T) {
	cases := []struct {
		typ  kms.ObjectType
		want string
	}{
		{kms.ObjectTypeConnector, "connector"},
		{kms.ObjectTypeEncoder, "encoder"},
		{kms.ObjectTypeCrtc, "crtc"},
		{kms.ObjectTypeFrameBuffer, "framebuffer"},
		{kms.ObjectTypePlane, "plane"},
	}
	for _, c := range cases {
		if got := c.typ.String(); got != c.want {
			t.Fatalf("%v.String() = %q, want %q", c.typ, got, c.want)
		}
	}
}

func TestPossibleCrtcMask(t *testing.T) {
	dev, crtc0, _, _ := newTestDevice(t)
	primary2, err := dev.AddPlane(kms.PlaneTypePrimary, nil, nil, nil)
	if err != nil {
		t.Fatalf("AddPlane: %v", err)
	}
	crtc1, err := dev.AddCrtc(primary2, nil)
	if err != nil {
		t.Fatalf("AddCrtc: %v", err)
	}
	mask := kms.PossibleCrtcMask([]*kms.Crtc{crtc0, crtc1})
	want := uint32(1<<uint(crtc0.Index()) | 1<<uint(crtc1.Index()))
	if mask != want {
		t.Fatalf("PossibleCrtcMask = %#x, want %#x", mask, want)
	}
}

func TestPossibleEncoderMask(t *testing.T) {
	dev, crtc, _, _ := newTestDevice(t)
	enc0, err := dev.AddEncoder(5, []*kms.Crtc{crtc})
	if err != nil {
		t.Fatalf("AddEncoder: %v", err)
	}
	enc1, err := dev.AddEncoder(5, []*kms.Crtc{crtc})
	if err != nil {
		t.Fatalf("AddEncoder: %v", err)
	}
	all := dev.Encoders()
	mask := kms.PossibleEncoderMask(all, []*kms.Encoder{enc1})
	if mask != 1<<1 {
		t.Fatalf("PossibleEncoderMask = %#x, want %#x", mask, uint32(1<<1))
	}
	_ = enc0
}

func TestAddConnectorDefaultsToDPMSOn(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	conn, err := dev.AddConnector(15, 0, 0, 1, nil)
	if err != nil {
		t.Fatalf("AddConnector: %v", err)
	}
	if conn.DrmState().DPMS != 0 {
		t.Fatalf("a freshly registered connector should default to DPMS On (0), got %d", conn.DrmState().DPMS)
	}
}

func TestBlobData(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	b, err := dev.RegisterBlob([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("RegisterBlob: %v", err)
	}
	if b.Size() != 3 {
		t.Fatalf("Blob.Size() = %d, want 3", b.Size())
	}
	got, ok := dev.FindBlob(b.ID())
	if !ok || got != b {
		t.Fatalf("FindBlob(%d) = (%v, %v), want (%v, true)", b.ID(), got, ok, b)
	}
	if !dev.DeleteBlob(b.ID()) {
		t.Fatalf("DeleteBlob should succeed for a registered blob")
	}
	if _, ok := dev.FindBlob(b.ID()); ok {
		t.Fatalf("FindBlob should fail after DeleteBlob")
	}
	if dev.DeleteBlob(b.ID()) {
		t.Fatalf("DeleteBlob should fail the second time for the same id")
	}
}

func TestRegisterBlobRejectsEmpty(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	if _, err := dev.RegisterBlob(nil); err == nil {
		t.Fatalf("RegisterBlob should reject a zero-length blob")
	}
}
