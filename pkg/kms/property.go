package kms

import "fmt"

// PropertyKind is the sealed set of property shapes a Property can take.
// Modeling it as data (a kind tag plus a per-property Write/Validate
// binding) rather than a class hierarchy keeps the built-in property table
// a plain slice literal instead of a dozen single-purpose types.
type PropertyKind int

const (
	KindIntRange PropertyKind = iota
	KindSignedRange
	KindEnum
	KindObject
	KindBlob
)

// EnumEntry names one value of a KindEnum property, e.g. {"On", 0} for
// DPMS.
type EnumEntry struct {
	Name  string
	Value uint64
}

// WriteFunc applies a validated Assignment onto the per-object state held
// in an in-flight AtomicState.
type WriteFunc func(a Assignment, state *AtomicState) error

// ValidateFunc is a per-property check run after the Kind-derived rules; a
// property that has one is not subject to the immutable rejection. Most
// built-in properties don't need one; MODE_ID uses it to check the mode
// timing chain and the plane "type" property to accept only an echo of the
// plane's own type. (CRTC_ID/FB_ID restrict their referent type through
// objectTypes instead.)
type ValidateFunc func(p *Property, a Assignment) bool

// Property is a single named, typed, registry entry. Built-in properties
// are constructed once by Device and referenced by pointer from every
// Assignment and from every ModeObject's Assignments() implementation.
type Property struct {
	id   uint32
	name string
	kind PropertyKind

	immutable bool

	intMin, intMax   uint64
	sintMin, sintMax int64
	enum             []EnumEntry
	objectTypes      []ObjectType // allowed referent types for KindObject; empty = any

	write    WriteFunc
	validate ValidateFunc
}

func (p *Property) ID() uint32        { return p.id }
func (p *Property) Name() string      { return p.name }
func (p *Property) Kind() PropertyKind { return p.kind }
func (p *Property) Immutable() bool   { return p.immutable }
func (p *Property) Enum() []EnumEntry { return p.enum }

// IntRange returns a KindIntRange property's bounds.
func (p *Property) IntRange() (min, max uint64) { return p.intMin, p.intMax }

// SignedRange returns a KindSignedRange property's bounds.
func (p *Property) SignedRange() (min, max int64) { return p.sintMin, p.sintMax }

// ObjectTypes returns the object kinds a KindObject property may reference;
// empty means any kind.
func (p *Property) ObjectTypes() []ObjectType { return p.objectTypes }

// Assignment pairs an Object + Property with the single value variant that
// Property's Kind determines is meaningful. Constructing one via the
// AssignmentXxx helpers keeps the source clear about which field is live.
type Assignment struct {
	Object   Object
	Property *Property

	Int  uint64
	SInt int64
	Obj  Object // nil means "detach" for KindObject
	Blob *Blob  // nil means "no blob" for KindBlob
}

func AssignmentInt(obj Object, p *Property, v uint64) Assignment {
	return Assignment{Object: obj, Property: p, Int: v}
}

func AssignmentSignedInt(obj Object, p *Property, v int64) Assignment {
	return Assignment{Object: obj, Property: p, SInt: v}
}

func AssignmentObject(obj Object, p *Property, ref Object) Assignment {
	return Assignment{Object: obj, Property: p, Obj: ref}
}

func AssignmentBlob(obj Object, p *Property, b *Blob) Assignment {
	return Assignment{Object: obj, Property: p, Blob: b}
}

// validateAssignment checks a out against the property's Kind-derived
// rules, then any per-property override.
func (p *Property) validateAssignment(a Assignment) error {
	switch p.kind {
	case KindIntRange:
		if a.Int < p.intMin || a.Int > p.intMax {
			return fmt.Errorf("kms: property %q value %d out of range [%d,%d]", p.name, a.Int, p.intMin, p.intMax)
		}
	case KindSignedRange:
		if a.SInt < p.sintMin || a.SInt > p.sintMax {
			return fmt.Errorf("kms: property %q value %d out of range [%d,%d]", p.name, a.SInt, p.sintMin, p.sintMax)
		}
	case KindEnum:
		ok := false
		for _, e := range p.enum {
			if e.Value == a.Int {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("kms: property %q value %d is not a valid enum member", p.name, a.Int)
		}
	case KindObject:
		if a.Obj != nil && len(p.objectTypes) > 0 {
			ok := false
			for _, t := range p.objectTypes {
				if a.Obj.Type() == t {
					ok = true
					break
				}
			}
			if !ok {
				return fmt.Errorf("kms: property %q cannot reference a %s object", p.name, a.Obj.Type())
			}
		}
	case KindBlob:
		// Any blob (including nil, meaning "detach") is structurally valid;
		// built-ins that need a non-nil blob enforce that in write.
	}
	if p.validate != nil {
		if !p.validate(p, a) {
			return fmt.Errorf("kms: property %q rejected value by custom validation", p.name)
		}
		return nil
	}
	if p.immutable {
		return fmt.Errorf("kms: property %q is immutable", p.name)
	}
	return nil
}

// Capture runs every assignment's validate+write step against state,
// returning false on the first rejection (spec's test-then-apply
// semantics: a single bad Assignment fails the whole commit before any
// state has been mutated for objects not yet visited, and any state
// touched so far is simply discarded by the caller along with the rest of
// the AtomicState).
func Capture(assignments []Assignment, state *AtomicState) bool {
	for _, a := range assignments {
		if err := a.Property.validateAssignment(a); err != nil {
			return false
		}
		if err := a.Property.write(a, state); err != nil {
			return false
		}
	}
	return true
}
