package dmt

import "testing"

func TestModesUnboundedReturnsWholeTable(t *testing.T) {
	modes := Modes(0, 0)
	if len(modes) != len(table) {
		t.Fatalf("Modes(0,0) returned %d modes, want all %d", len(modes), len(table))
	}
}

func TestModesFiltersByBound(t *testing.T) {
	modes := Modes(1024, 768)
	for _, m := range modes {
		if m.HDisplay > 1024 || m.VDisplay > 768 {
			t.Fatalf("Modes(1024,768) included out-of-bound mode %dx%d", m.HDisplay, m.VDisplay)
		}
	}
	if len(modes) == 0 {
		t.Fatalf("Modes(1024,768) should include at least the 1024x768 timings")
	}
	for _, m := range modes {
		if m.HDisplay == 1920 {
			t.Fatalf("Modes(1024,768) should not include a 1920-wide mode")
		}
	}
}

func TestModesExactlyOnePreferred(t *testing.T) {
	modes := Modes(1920, 1080)
	preferred := 0
	for _, m := range modes {
		if m.Type&0x8 != 0 { // ModeTypePreferred bit
			preferred++
		}
	}
	if preferred != 1 {
		t.Fatalf("Modes(1920,1080) marked %d modes preferred, want exactly 1", preferred)
	}
}

func TestModesHaveValidTimingChains(t *testing.T) {
	for _, m := range Modes(0, 0) {
		if !(m.HDisplay <= m.HSyncStart && m.HSyncStart <= m.HSyncEnd && m.HSyncEnd <= m.HTotal) {
			t.Fatalf("mode %q has a non-monotone horizontal timing chain", m.GetName())
		}
		if !(m.VDisplay <= m.VSyncStart && m.VSyncStart <= m.VSyncEnd && m.VSyncEnd <= m.VTotal) {
			t.Fatalf("mode %q has a non-monotone vertical timing chain", m.GetName())
		}
	}
}

func TestModesNamesNonEmpty(t *testing.T) {
	for _, m := range Modes(0, 0) {
		if m.GetName() == "" {
			t.Fatalf("mode with clock=%d has an empty name", m.Clock)
		}
	}
}
