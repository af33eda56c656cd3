// Package transport defines the host IPC collaborator a dispatcher needs
// (spec §6.2): accepting connections, exchanging framed ioctl request/reply
// messages, extracting caller credentials, installing a served lane as a
// file descriptor in another process (for PRIME export), and a monotonic
// clock for event timestamping. The microkernel host's actual lane/
// shared-memory primitives are external to this repository; this package
// only describes the shape the core core needs, plus one reference
// implementation (unix.go) built on Unix-domain sockets for tests and the
// daemon's default transport.
package transport

import (
	"context"
	"time"
)

// Request is one ioctl message read off a File's conversation: a command
// id, the request's fixed-size head, and an optional variable-length tail
// used by requests that pair a main buffer with a side buffer (e.g.
// MODE_ATOMIC's flattened object/property/value arrays).
type Request struct {
	Command uint32
	Head    []byte
	Tail    []byte
}

// Reply is the dispatcher's answer to a Request, plus any file descriptors
// a command needs to hand back (PRIME_HANDLE_TO_FD).
type Reply struct {
	Head []byte
	Tail []byte
	FDs  []int
}

// Conn is one accepted client connection, promoted to a File-backing
// session once its OPEN request has been read.
type Conn interface {
	// RecvOpen reads the single OPEN request a new connection sends,
	// reporting whether the NONBLOCK flag was set.
	RecvOpen(ctx context.Context) (nonBlock bool, err error)

	// Recv reads the next ioctl request. Recv returning an error
	// (including io.EOF) is fatal to the Conn/File pair; the Device and
	// other Files are unaffected (spec §7).
	Recv(ctx context.Context) (Request, error)

	// Send writes a Reply for the most recently received Request.
	Send(ctx context.Context, reply Reply) error

	// Credentials extracts the calling process's 16-byte identity,
	// matching what the PRIME export table keys on (§3.5).
	Credentials() ([16]byte, error)

	// ServeBufferObject serves mem as a new lane (a PRIME file object in
	// spec's terms) and installs that lane as a file descriptor in the
	// process on the other end of this Conn, returning the fd number the
	// peer should use. handle/size describe the exported object so reads
	// against the new lane can be framed without going back through this
	// Conn.
	ServeBufferObject(handle MemoryHandle, size uint64) (fd int, err error)

	Close() error
}

// MemoryHandle is the host shared-memory handle a BufferObject's Memory()
// hook returns, opaque to everything above the Transport layer.
type MemoryHandle interface{}

// Listener accepts new client connections.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
}

// Clock is the monotonic nanosecond clock §6.2 requires for event
// timestamping. The default (time.Now) is what every Transport
// implementation should use unless a test needs to fake it.
type Clock func() time.Time

// SystemClock is the default Clock.
func SystemClock() time.Time { return time.Now() }
