package main

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/ChengyuZhu6/drmcore/internal/swdriver"
	"github.com/ChengyuZhu6/drmcore/pkg/kms"
)

func TestBringUpBuildsASingleHeadTopology(t *testing.T) {
	dev := kms.NewDevice(swdriver.New(zerolog.Nop(), 64, true), zerolog.Nop())
	if err := bringUp(dev); err != nil {
		t.Fatalf("bringUp: %v", err)
	}

	crtcs := dev.Crtcs()
	if len(crtcs) != 1 {
		t.Fatalf("bringUp produced %d crtcs, want 1", len(crtcs))
	}
	crtc := crtcs[0]
	if crtc.PrimaryPlane() == nil || crtc.CursorPlane() == nil {
		t.Fatalf("bringUp's crtc should have both a primary and a cursor plane")
	}

	conns := dev.Connectors()
	if len(conns) != 1 {
		t.Fatalf("bringUp produced %d connectors, want 1", len(conns))
	}
	conn := conns[0]
	if conn.ConnectorType() != connectorTypeVirtual {
		t.Fatalf("connector type = %d, want %d", conn.ConnectorType(), connectorTypeVirtual)
	}
	if conn.CurrentEncoder() == nil {
		t.Fatalf("bringUp's connector should already be wired to an encoder")
	}
	if len(conn.ModeList()) == 0 {
		t.Fatalf("bringUp should seed the connector's mode list")
	}

	encs := dev.Encoders()
	if len(encs) != 1 {
		t.Fatalf("bringUp produced %d encoders, want 1", len(encs))
	}
	if encs[0].CurrentCrtc() != crtc {
		t.Fatalf("bringUp's encoder should already report the crtc as current")
	}
}
