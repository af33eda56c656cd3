//go:build linux

package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// openFlagNonBlock is the NONBLOCK bit of the OPEN request's head, a 4-byte
// little-endian flags word. Every request is framed as
// [cmd uint32][headLen uint32][head][tailLen uint32][tail]; replies carry
// only the head and tail frames.
// cmdOpen is a reserved command id this Transport uses for the initial
// per-connection OPEN handshake; it never collides with a DRM_IOCTL_*
// number because those all fit in a byte and this uses the top of the
// 32-bit space.
const (
	cmdOpen         = 0xFFFFFFFF
	openFlagNonBlock = 1 << 0
)

// UnixListener is the reference Transport built on a Unix-domain socket,
// using SCM_RIGHTS for fd passing and SO_PEERCRED for credential
// extraction — standing in for the host IPC layer spec §6.2 treats as an
// external collaborator.
type UnixListener struct {
	ln *net.UnixListener
}

// ListenUnix opens a Unix-domain socket at path, removing any stale socket
// file first.
func ListenUnix(path string) (*UnixListener, error) {
	_ = os.Remove(path)
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", path, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", path, err)
	}
	return &UnixListener{ln: ln}, nil
}

func (l *UnixListener) Accept(ctx context.Context) (Conn, error) {
	type result struct {
		c   *net.UnixConn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.ln.AcceptUnix()
		ch <- result{c, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return &unixConn{conn: r.c}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *UnixListener) Close() error { return l.ln.Close() }

type unixConn struct {
	conn *net.UnixConn
}

func (c *unixConn) RecvOpen(ctx context.Context) (bool, error) {
	req, err := c.Recv(ctx)
	if err != nil {
		return false, err
	}
	if req.Command != cmdOpen {
		return false, fmt.Errorf("transport: expected OPEN, got command 0x%x", req.Command)
	}
	if len(req.Head) < 4 {
		return false, fmt.Errorf("transport: short OPEN request")
	}
	flags := binary.LittleEndian.Uint32(req.Head)
	return flags&openFlagNonBlock != 0, nil
}

func (c *unixConn) Recv(ctx context.Context) (Request, error) {
	var lenBuf [4]byte
	var req Request

	if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
		return req, err
	}
	req.Command = binary.LittleEndian.Uint32(lenBuf[:])

	head, err := readFramed(c.conn)
	if err != nil {
		return req, err
	}
	tail, err := readFramed(c.conn)
	if err != nil {
		return req, err
	}
	req.Head, req.Tail = head, tail
	return req, nil
}

func (c *unixConn) Send(ctx context.Context, reply Reply) error {
	if err := writeFramed(c.conn, reply.Head); err != nil {
		return err
	}
	if err := writeFramed(c.conn, reply.Tail); err != nil {
		return err
	}
	if len(reply.FDs) > 0 {
		rights := unix.UnixRights(reply.FDs...)
		if _, _, err := c.conn.WriteMsgUnix(nil, rights, nil); err != nil {
			return fmt.Errorf("transport: sending fds: %w", err)
		}
	}
	return nil
}

func readFramed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFramed(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

// Credentials extracts SO_PEERCRED from the underlying socket and packs
// (pid, uid, gid) into the 16-byte credential the PRIME export table keys
// on.
func (c *unixConn) Credentials() ([16]byte, error) {
	var cred [16]byte
	raw, err := c.conn.SyscallConn()
	if err != nil {
		return cred, err
	}
	var ucred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return cred, err
	}
	if sockErr != nil {
		return cred, sockErr
	}
	binary.LittleEndian.PutUint32(cred[0:4], uint32(ucred.Pid))
	binary.LittleEndian.PutUint32(cred[4:8], ucred.Uid)
	binary.LittleEndian.PutUint32(cred[8:12], ucred.Gid)
	return cred, nil
}

// ServeBufferObject opens a Unix socketpair, hands the client-facing end to
// the peer over this Conn's SCM_RIGHTS channel, and keeps the other end
// open under fd (the value this method returns) so a later Close can tear
// it down. handle/size aren't interpreted here — host memory export is a
// detail of what the peer does once it holds the fd, not of this framing
// layer.
func (c *unixConn) ServeBufferObject(handle MemoryHandle, size uint64) (int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, fmt.Errorf("transport: socketpair: %w", err)
	}
	serverFD, clientFD := fds[0], fds[1]

	rights := unix.UnixRights(clientFD)
	if _, _, err := c.conn.WriteMsgUnix(nil, rights, nil); err != nil {
		unix.Close(serverFD)
		unix.Close(clientFD)
		return 0, fmt.Errorf("transport: sending served lane: %w", err)
	}
	_ = unix.Close(clientFD) // now owned by the peer's copy
	return serverFD, nil
}

func (c *unixConn) Close() error { return c.conn.Close() }
