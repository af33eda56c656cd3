package kms

import "fmt"

// Whence selects the origin SeekOffset interprets, mirroring lseek's
// SEEK_SET/CUR/END without pulling in an os.File dependency this package
// has no other use for.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// PrimeFile is a handle-backed file object representing one exported
// BufferObject as a seekable shared-memory file (§4.8). The offset cursor
// it tracks is a client-side convenience only — PRIME_HANDLE_TO_FD hands
// the client a Transport-served lane backed by this object, and the
// client's own mmap/seek calls against that lane are what the offset
// actually governs; the core never interprets the bytes.
type PrimeFile struct {
	bo     BufferObject
	offset int64
}

// NewPrimeFile wraps bo for export over a freshly served lane.
func NewPrimeFile(bo BufferObject) *PrimeFile {
	return &PrimeFile{bo: bo}
}

// AccessMemory returns the host memory handle and inner offset backing
// this export, for a Transport to hand to the importing process.
func (p *PrimeFile) AccessMemory() (MemoryHandle, uint64) {
	return p.bo.Memory()
}

// BufferObject returns the wrapped BO.
func (p *PrimeFile) BufferObject() BufferObject { return p.bo }

// Offset returns the file's current seek cursor.
func (p *PrimeFile) Offset() int64 { return p.offset }

// Seek repositions the cursor per whence, rejecting a result outside
// [0, bo.Size()].
func (p *PrimeFile) Seek(delta int64, whence Whence) (int64, error) {
	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = p.offset
	case SeekEnd:
		base = int64(p.bo.Size())
	default:
		return 0, fmt.Errorf("kms: invalid whence %d", whence)
	}
	next := base + delta
	if next < 0 || next > int64(p.bo.Size()) {
		return 0, fmt.Errorf("kms: seek offset %d out of range [0,%d]", next, p.bo.Size())
	}
	p.offset = next
	return next, nil
}
