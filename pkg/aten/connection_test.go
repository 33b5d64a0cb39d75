package aten

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"
)

// pipeConnection wires a Connection to one end of a net.Pipe, standing in
// for the upstream socket in place of a real listener.
func pipeConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return newConnection(client), server
}

func TestReadBytesIntoSmallReadUsesBufferedRegion(t *testing.T) {
	conn, peer := pipeConnection(t)

	go func() {
		peer.Write([]byte("hello world"))
	}()

	dst := make([]byte, 5)
	if err := conn.ReadBytesInto(dst); err != nil {
		t.Fatalf("ReadBytesInto: %v", err)
	}
	if string(dst) != "hello" {
		t.Fatalf("got %q, want %q", dst, "hello")
	}

	// The remaining " world" should still be servable from the buffered
	// region without another socket read.
	dst2 := make([]byte, 6)
	if err := conn.ReadBytesInto(dst2); err != nil {
		t.Fatalf("ReadBytesInto: %v", err)
	}
	if string(dst2) != " world" {
		t.Fatalf("got %q, want %q", dst2, " world")
	}
}

func TestReadBytesIntoLargeReadBypassesBuffer(t *testing.T) {
	conn, peer := pipeConnection(t)

	payload := bytes.Repeat([]byte{0xab}, initialBufferLen*4)
	go func() {
		peer.Write(payload)
	}()

	dst := make([]byte, len(payload))
	if err := conn.ReadBytesInto(dst); err != nil {
		t.Fatalf("ReadBytesInto: %v", err)
	}
	if !bytes.Equal(dst, payload) {
		t.Fatalf("large read mismatch")
	}
}

func TestReadBytesInto_PeerClosed(t *testing.T) {
	conn, peer := pipeConnection(t)
	peer.Close()

	dst := make([]byte, 4)
	err := conn.ReadBytesInto(dst)
	if !errors.Is(err, ErrPeerClosed) {
		t.Fatalf("expected ErrPeerClosed, got %v", err)
	}
}

func TestReadBytesScratchGrowsByDoubling(t *testing.T) {
	conn, peer := pipeConnection(t)

	payload := bytes.Repeat([]byte{0x42}, initialBufferLen*3)
	go func() {
		peer.Write(payload)
	}()

	got, err := conn.ReadBytes(len(payload))
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("scratch read mismatch")
	}
	if cap(conn.scratch) < len(payload) {
		t.Fatalf("scratch buffer did not grow to fit request")
	}
}

func TestWriteRawWritesInMemoryRepresentation(t *testing.T) {
	conn, peer := pipeConnection(t)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4)
		peer.SetReadDeadline(time.Now().Add(time.Second))
		peer.Read(buf)
		done <- buf
	}()

	if err := WriteRaw[uint32](conn, 0x01020304); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}

	// WriteRaw promises the value's raw in-memory bytes, no swapping.
	want := make([]byte, 4)
	binary.NativeEndian.PutUint32(want, 0x01020304)

	got := <-done
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestDiscard(t *testing.T) {
	conn, peer := pipeConnection(t)

	go func() {
		peer.Write([]byte("xxxxxABC"))
	}()

	if err := conn.Discard(5); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	rest := make([]byte, 3)
	if err := conn.ReadBytesInto(rest); err != nil {
		t.Fatalf("ReadBytesInto: %v", err)
	}
	if string(rest) != "ABC" {
		t.Fatalf("got %q, want ABC", rest)
	}
}
