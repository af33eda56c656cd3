package wire

import "testing"

func TestPropertyFlagsIntRange(t *testing.T) {
	got := PropertyFlags(true, false, false, false, false, false)
	if got != PropRange {
		t.Fatalf("PropertyFlags(intRange) = 0x%x, want 0x%x", got, PropRange)
	}
}

func TestPropertyFlagsSignedRangeAndImmutable(t *testing.T) {
	got := PropertyFlags(false, true, false, false, false, true)
	want := PropSignedRange | PropImmutable
	if got != want {
		t.Fatalf("PropertyFlags(signedRange, immutable) = 0x%x, want 0x%x", got, want)
	}
}

func TestPropertyFlagsObjectAndBlob(t *testing.T) {
	if got := PropertyFlags(false, false, false, true, false, false); got != PropObject {
		t.Fatalf("PropertyFlags(object) = 0x%x, want 0x%x", got, PropObject)
	}
	if got := PropertyFlags(false, false, false, false, true, false); got != PropBlob {
		t.Fatalf("PropertyFlags(blob) = 0x%x, want 0x%x", got, PropBlob)
	}
}

func TestPropertyFlagsEnum(t *testing.T) {
	if got := PropertyFlags(false, false, true, false, false, false); got != PropEnum {
		t.Fatalf("PropertyFlags(enum) = 0x%x, want 0x%x", got, PropEnum)
	}
}
