package aten

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const initialBufferLen = 1024

// Connection owns one upstream TCP socket, a receive buffer, and a scratch
// buffer for returning data by reference from sized reads. It is used by
// exactly one goroutine per direction: the reader goroutine only reads,
// the writer goroutine only writes (see pkg/bridge for the split). No
// locking is needed between them beyond what the TCP stack already gives.
type Connection struct {
	conn net.Conn

	// recvBuf is the buffered region; recvBuf[cursor:cursor+dataLen] holds
	// bytes already off the wire but not yet consumed by a caller.
	recvBuf []byte
	cursor  int
	dataLen int

	// scratch backs ReadBytes' borrowed-slice return. Invalidated by the
	// next call that uses it.
	scratch []byte
}

// Dial resolves host:service and connects to the first address that
// accepts a TCP connection. net.Dialer already enumerates every resolved
// candidate under the hood, so there is no need to hand-roll the
// getaddrinfo-style iteration ourselves.
func Dial(ctx context.Context, host, service string) (*Connection, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, service))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return newConnection(conn), nil
}

// NewConnectionFromNetConn wraps an already-established net.Conn as a
// Connection, bypassing Dial's DNS resolution. Exported so pkg/bridge's
// tests can drive the handshake over an in-memory net.Pipe.
func NewConnectionFromNetConn(conn net.Conn) *Connection {
	return newConnection(conn)
}

func newConnection(conn net.Conn) *Connection {
	return &Connection{
		conn:    conn,
		recvBuf: make([]byte, initialBufferLen),
		scratch: make([]byte, initialBufferLen),
	}
}

// Close releases the underlying socket.
func (c *Connection) Close() error {
	return c.conn.Close()
}

// WriteBytes sends every byte in buf. net.Conn.Write already retries
// internally on interrupted syscalls; any error it surfaces here is a
// genuine fatal condition (peer gone, socket reset) and ends the session.
func (c *Connection) WriteBytes(buf []byte) error {
	_, err := c.conn.Write(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// WriteRaw writes the in-memory representation of a fixed-width value
// verbatim: no byte-swapping is performed by this primitive. Callers
// that need network order on the wire convert explicitly before calling.
// Only the integer widths actually used by the ATEN dialect are
// supported; anything else is a programmer error.
func WriteRaw[T uint8 | uint16 | uint32](c *Connection, v T) error {
	buf := make([]byte, binarySize(v))
	switch x := any(v).(type) {
	case uint8:
		buf[0] = x
	case uint16:
		binary.NativeEndian.PutUint16(buf, x)
	case uint32:
		binary.NativeEndian.PutUint32(buf, x)
	}
	return c.WriteBytes(buf)
}

func binarySize(v any) int {
	switch v.(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32:
		return 4
	default:
		panic(fmt.Sprintf("aten: unsupported raw type %T", v))
	}
}

// ReadBytesInto fills dst with exactly len(dst) bytes, following a
// three-path algorithm:
//  1. satisfy as much as possible from the buffered region;
//  2. if what remains is larger than the buffer's capacity, read straight
//     into dst to avoid an extra copy (used for whole-frame pixel blocks);
//  3. otherwise refill the buffer (discarding any stale leftover at the
//     front) until it holds enough, then copy out.
func (c *Connection) ReadBytesInto(dst []byte) error {
	off := 0
	need := len(dst)

	if c.dataLen > 0 {
		take := min(c.dataLen, need)
		copy(dst[off:off+take], c.recvBuf[c.cursor:c.cursor+take])
		c.cursor += take
		c.dataLen -= take
		off += take
	}

	if need-off > len(c.recvBuf) {
		for off < need {
			n, err := c.conn.Read(dst[off:])
			if err != nil {
				return translateReadErr(err)
			}
			if n == 0 {
				return ErrPeerClosed
			}
			off += n
		}
		return nil
	}

	if off < need {
		c.cursor = 0
		c.dataLen = 0
		for c.dataLen < need-off {
			n, err := c.conn.Read(c.recvBuf[c.dataLen:])
			if err != nil {
				return translateReadErr(err)
			}
			if n == 0 {
				return ErrPeerClosed
			}
			c.dataLen += n
		}
		take := need - off
		copy(dst[off:], c.recvBuf[c.cursor:c.cursor+take])
		c.cursor += take
		c.dataLen -= take
		off += take
	}

	return nil
}

func translateReadErr(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrPeerClosed
	}
	return fmt.Errorf("%w: %v", ErrRead, err)
}

// ReadBytes returns n bytes owned by the connection's scratch buffer. The
// returned slice is only valid until the next call that reuses the
// scratch buffer (ReadBytes or Discard); callers that need the data to
// outlive that must copy it themselves.
func (c *Connection) ReadBytes(n int) ([]byte, error) {
	if cap(c.scratch) < n {
		newCap := cap(c.scratch)
		if newCap == 0 {
			newCap = initialBufferLen
		}
		for newCap < n {
			newCap <<= 1
		}
		c.scratch = make([]byte, newCap)
	}
	buf := c.scratch[:n]
	if err := c.ReadBytesInto(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadRaw reads a fixed-width big-endian value.
func ReadRaw[T uint8 | uint16 | uint32](c *Connection) (T, error) {
	var zero T
	buf := make([]byte, binarySize(zero))
	if err := c.ReadBytesInto(buf); err != nil {
		return zero, err
	}
	switch any(zero).(type) {
	case uint8:
		return any(buf[0]).(T), nil
	case uint16:
		return any(binary.BigEndian.Uint16(buf)).(T), nil
	case uint32:
		return any(binary.BigEndian.Uint32(buf)).(T), nil
	}
	return zero, nil
}

// Discard reads and drops n bytes, used for the ATEN dialect's many
// filler fields whose content is unspecified.
func (c *Connection) Discard(n int) error {
	_, err := c.ReadBytes(n)
	return err
}
