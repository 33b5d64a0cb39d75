package bridge

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/atenbridge/vncbridge/pkg/aten"
	"github.com/atenbridge/vncbridge/pkg/config"
)

// handshakeBridge builds a Bridge with just enough state for handshake()
// to run, without touching the downstream vnc server (which needs cgo).
func handshakeBridge(cfg config.Config) *Bridge {
	b := &Bridge{cfg: cfg}
	b.updates = NewUpdateQueue(nil)
	return b
}

func TestBridgeHandshakeMinimum(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	b := handshakeBridge(config.Config{Username: "admin", Password: "secret"})

	conn := aten.NewConnectionFromNetConn(client)

	serverWrites := []byte{}
	serverWrites = append(serverWrites, []byte("RFB 003.008\n")...) // discarded 12 bytes
	serverWrites = append(serverWrites, 1, 16)                      // nSecurity=1, [16]
	serverWrites = append(serverWrites, bytes.Repeat([]byte{0x00}, 24)...)

	authErr := make([]byte, 4)
	binary.BigEndian.PutUint32(authErr, 0)
	serverWrites = append(serverWrites, authErr...)

	serverWrites = append(serverWrites, bytes.Repeat([]byte{0x00}, 20)...)

	nameLen := make([]byte, 4)
	binary.BigEndian.PutUint32(nameLen, 4)
	serverWrites = append(serverWrites, nameLen...)
	serverWrites = append(serverWrites, []byte("NAME")...)

	serverWrites = append(serverWrites, bytes.Repeat([]byte{0x00}, 12)...)

	go func() {
		server.SetWriteDeadline(time.Now().Add(2 * time.Second))
		server.Write(serverWrites)
	}()

	clientWrites := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 12+1+48+1)
		server.SetReadDeadline(time.Now().Add(2 * time.Second))
		off := 0
		for off < len(buf) {
			n, err := server.Read(buf[off:])
			if err != nil {
				break
			}
			off += n
		}
		clientWrites <- buf
	}()

	if err := b.handshake(conn); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	got := <-clientWrites
	if string(got[0:12]) != "RFB 003.008\n" {
		t.Fatalf("expected version banner, got %q", got[0:12])
	}
	if got[12] != 16 {
		t.Fatalf("expected security type byte 16, got %d", got[12])
	}

	creds := got[13:61]
	var username [24]byte
	copy(username[:], "admin")
	if !bytes.Equal(creds[0:24], username[:]) {
		t.Fatalf("username field mismatch: %x", creds[0:24])
	}
	var password [24]byte
	copy(password[:], "secret")
	if !bytes.Equal(creds[24:48], password[:]) {
		t.Fatalf("password field mismatch: %x", creds[24:48])
	}

	if got[61] != 0 {
		t.Fatalf("expected client-init shared flag 0, got %d", got[61])
	}

	drained := b.updates.DrainAll()
	if len(drained) != 1 || drained[0].Kind != aten.UpdateSetServerName || drained[0].Name != "NAME" {
		t.Fatalf("expected SetServerName(\"NAME\") update, got %+v", drained)
	}
}

func TestBridgeHandshakeRejectsWrongSecurityType(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	b := handshakeBridge(config.Config{})
	conn := aten.NewConnectionFromNetConn(client)

	go func() {
		server.SetWriteDeadline(time.Now().Add(2 * time.Second))
		server.Write([]byte("RFB 003.008\n"))
		server.Write([]byte{1, 2}) // nSecurity=1, type 2 (not ATEN's 16)
	}()

	go func() {
		// Drain the client's version-banner reply so the handshake's
		// WriteBytes call doesn't block on net.Pipe's synchronous semantics.
		buf := make([]byte, 12)
		server.SetReadDeadline(time.Now().Add(2 * time.Second))
		server.Read(buf)
	}()

	err := b.handshake(conn)
	if err == nil {
		t.Fatalf("expected an error for an unsupported security type")
	}
}
