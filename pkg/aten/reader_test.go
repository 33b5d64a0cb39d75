package aten

import (
	"encoding/binary"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func fbUpdateHeader(nUpdates uint16) []byte {
	buf := make([]byte, 3)
	buf[0] = 0 // padding
	binary.BigEndian.PutUint16(buf[1:3], nUpdates)
	return buf
}

// rectHeaderBytes builds the 20-byte {x,y,width,height,encoding,unknown,
// dataLen} header readRectHeader expects, all big-endian.
func rectHeaderBytes(x, y, width, height uint16, encoding, unknown, dataLen uint32) []byte {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint16(buf[0:2], x)
	binary.BigEndian.PutUint16(buf[2:4], y)
	binary.BigEndian.PutUint16(buf[4:6], width)
	binary.BigEndian.PutUint16(buf[6:8], height)
	binary.BigEndian.PutUint32(buf[8:12], encoding)
	binary.BigEndian.PutUint32(buf[12:16], unknown)
	binary.BigEndian.PutUint32(buf[16:20], dataLen)
	return buf
}

// newTestReader wires a Reader to one end of a net.Pipe and returns the
// captured updates/actions alongside the peer used to feed upstream bytes.
func newTestReader(t *testing.T, width, height int) (*Reader, *Connection, net.Conn, *[]RFBUpdate, *[]WriteAction) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	conn := newConnection(client)
	var terminating atomic.Bool

	fb := make([]byte, width*height*2)
	r := NewReader(nil, fb, width, height, &terminating)

	var updates []RFBUpdate
	var actions []WriteAction
	r.EmitUpdate = func(u RFBUpdate) { updates = append(updates, u) }
	r.EmitAction = func(a WriteAction) { actions = append(actions, a) }

	return r, conn, server, &updates, &actions
}

func writeAll(t *testing.T, conn net.Conn, buf []byte) {
	t.Helper()
	go func() {
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		conn.Write(buf)
	}()
}

func TestReaderScreenOff(t *testing.T) {
	r, conn, server, updates, actions := newTestReader(t, 640, 480)

	var msg []byte
	msg = append(msg, 0) // message type 0 = framebuffer update
	msg = append(msg, fbUpdateHeader(1)...)
	msg = append(msg, rectHeaderBytes(0, 0, screenOffWidth, screenOffHeight, 0, 0, 0)...)

	writeAll(t, server, msg)

	done := make(chan error, 1)
	go func() { done <- r.Run(conn) }()

	time.Sleep(50 * time.Millisecond)
	r.Terminating.Store(true)
	server.Close()
	<-done

	if len(*updates) == 0 {
		t.Fatalf("expected at least one update")
	}
	u := (*updates)[0]
	if u.Kind != UpdateAddDirtyRect || u.X1 != 0 || u.Y1 != 0 || u.X2 != 640 || u.Y2 != 480 {
		t.Fatalf("expected full-frame dirty rect, got %+v", u)
	}

	for _, b := range r.fb {
		if b != 0xf0 {
			t.Fatalf("expected framebuffer filled with 0xf0 on screen-off")
		}
	}

	var sawRequest bool
	for _, a := range *actions {
		if a.Kind == ActionUpdateFramebuffer {
			sawRequest = true
			if a.Incremental != 0 {
				t.Fatalf("expected next-frame request with incremental=0 while screen is off, got %d", a.Incremental)
			}
		}
	}
	if !sawRequest {
		t.Fatalf("expected a trailing UpdateFramebuffer action")
	}
}

func TestReaderSubrectTile(t *testing.T) {
	r, conn, server, updates, _ := newTestReader(t, 640, 480)

	var msg []byte
	msg = append(msg, 0)
	msg = append(msg, fbUpdateHeader(1)...)

	msg = append(msg, rectHeaderBytes(0, 0, 640, 480, 0, 0, 0)...)

	// Tile payload header: type=0 (subrects), padding, segments=2, totalLen arbitrary.
	tileHeader := make([]byte, 10)
	tileHeader[0] = 0
	binary.BigEndian.PutUint32(tileHeader[2:6], 2)
	binary.BigEndian.PutUint32(tileHeader[6:10], 0)
	msg = append(msg, tileHeader...)

	tile := make([]byte, 512)
	for i := range tile {
		tile[i] = 0xaa
	}

	seg := func(y, x uint8) []byte {
		b := make([]byte, 0, 4+2+512)
		b = append(b, 0, 0, 0, 0) // 4 discard bytes
		b = append(b, y, x)
		b = append(b, tile...)
		return b
	}
	msg = append(msg, seg(1, 1)...)
	msg = append(msg, seg(3, 2)...)

	writeAll(t, server, msg)

	done := make(chan error, 1)
	go func() { done <- r.Run(conn) }()

	time.Sleep(50 * time.Millisecond)
	r.Terminating.Store(true)
	server.Close()
	<-done

	if len(*updates) != 1 {
		t.Fatalf("expected exactly one merged dirty rect, got %d", len(*updates))
	}
	u := (*updates)[0]
	if u.X1 != 16 || u.Y1 != 16 || u.X2 != 48 || u.Y2 != 64 {
		t.Fatalf("expected merged rect {16,16,48,64}, got {%d,%d,%d,%d}", u.X1, u.Y1, u.X2, u.Y2)
	}
}

func TestReaderResize(t *testing.T) {
	r, conn, server, updates, _ := newTestReader(t, 640, 480)

	var msg []byte
	msg = append(msg, 0)
	msg = append(msg, fbUpdateHeader(1)...)

	msg = append(msg, rectHeaderBytes(0, 0, 320, 240, 0, 0, 0)...)

	// Whole-frame tile: type=1, totalLen = 10 + 2*320*240.
	payloadLen := 2 * 320 * 240
	tileHeader := make([]byte, 10)
	tileHeader[0] = 1
	binary.BigEndian.PutUint32(tileHeader[2:6], 0)
	binary.BigEndian.PutUint32(tileHeader[6:10], uint32(10+payloadLen))
	msg = append(msg, tileHeader...)
	msg = append(msg, make([]byte, payloadLen)...)

	writeAll(t, server, msg)

	done := make(chan error, 1)
	go func() { done <- r.Run(conn) }()

	time.Sleep(100 * time.Millisecond)
	r.Terminating.Store(true)
	server.Close()
	<-done

	var sawResize bool
	for _, u := range *updates {
		if u.Kind == UpdateSetFramebuffer {
			sawResize = true
			if u.Width != 320 || u.Height != 240 {
				t.Fatalf("expected resize to 320x240, got %dx%d", u.Width, u.Height)
			}
			if len(u.Buffer) != payloadLen {
				t.Fatalf("expected new buffer of %d bytes, got %d", payloadLen, len(u.Buffer))
			}
		}
	}
	if !sawResize {
		t.Fatalf("expected a SetFramebuffer update on resize")
	}
}
