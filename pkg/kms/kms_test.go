package kms_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/ChengyuZhu6/drmcore/internal/swdriver"
	"github.com/ChengyuZhu6/drmcore/internal/wire"
	"github.com/ChengyuZhu6/drmcore/pkg/kms"
)

// newTestDevice builds a single-head topology (one primary plane, one
// cursor plane, one Crtc) against the in-memory software driver, mirroring
// cmd/drmcored's bring-up code at a scale suited to unit tests.
func newTestDevice(t *testing.T) (dev *kms.Device, crtc *kms.Crtc, primary, cursor *kms.Plane) {
	t.Helper()
	drv := swdriver.New(zerolog.Nop(), 64, true)
	dev = kms.NewDevice(drv, zerolog.Nop())

	primary, err := dev.AddPlane(kms.PlaneTypePrimary, nil, []uint32{wire.FormatXRGB8888, wire.FormatARGB8888}, nil)
	if err != nil {
		t.Fatalf("AddPlane(primary): %v", err)
	}
	cursor, err = dev.AddPlane(kms.PlaneTypeCursor, nil, []uint32{wire.FormatARGB8888}, nil)
	if err != nil {
		t.Fatalf("AddPlane(cursor): %v", err)
	}
	crtc, err = dev.AddCrtc(primary, cursor)
	if err != nil {
		t.Fatalf("AddCrtc: %v", err)
	}
	primary.SetPossibleCrtcs([]*kms.Crtc{crtc})
	cursor.SetPossibleCrtcs([]*kms.Crtc{crtc})
	return dev, crtc, primary, cursor
}
