package aten

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/atenbridge/vncbridge/pkg/logging"
)

// Writer drains the downstream-to-upstream action queue and serializes
// each WriteAction to its ATEN-RFB wire form.
type Writer struct {
	Logger logging.Logger

	// Dequeue blocks until an action is available or the queue is closed
	// (returning ok=false). Kept as a callback so this package does not
	// depend on pkg/bridge's queue implementation.
	Dequeue func() (WriteAction, bool)

	Terminating *atomic.Bool

	// HostByteOrderUpdateRequest preserves an observed upstream quirk: the
	// outbound UpdateFramebuffer message's 16-bit fields are written in
	// host byte order rather than network order. Default true; flip it if
	// a target device turns out to expect standard RFB network order.
	HostByteOrderUpdateRequest bool
}

// NewWriter constructs a Writer with the ATEN host-byte-order quirk
// enabled by default, matching every device this bridge has been
// observed talking to.
func NewWriter(logger logging.Logger, dequeue func() (WriteAction, bool), terminating *atomic.Bool) *Writer {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Writer{
		Logger:                     logger,
		Dequeue:                    dequeue,
		Terminating:                terminating,
		HostByteOrderUpdateRequest: true,
	}
}

// Run serializes actions to conn until the queue closes or a send fails.
// On failure it sets Terminating and returns; the session is over at that
// point and the bridge will reconnect.
func (w *Writer) Run(conn *Connection) error {
	for {
		action, ok := w.Dequeue()
		if !ok {
			return nil
		}

		var err error
		switch action.Kind {
		case ActionKey:
			err = w.writeKey(conn, action)
		case ActionUpdateFramebuffer:
			err = w.writeUpdateFramebuffer(conn, action)
		case ActionPing:
			// no-op: only used to unblock the dequeue loop during shutdown.
		}

		if err != nil {
			w.Terminating.Store(true)
			w.Logger.Error("writer terminating", logging.Field{Key: "error", Value: err})
			return err
		}
	}
}

// writeKey sends an 18-byte packed key event record:
// {messageType=4, padding1, down, padding2[2], key:u32 BE, padding3[9]}.
// A zero usage code means the keysym has no HID mapping; the event is
// silently dropped.
func (w *Writer) writeKey(conn *Connection, action WriteAction) error {
	usage := LookupUsage(action.KeySym)
	if usage == 0 {
		return nil
	}

	buf := make([]byte, 18)
	buf[0] = 4 // messageType
	// buf[1] padding1
	if action.KeyDown {
		buf[2] = 1
	}
	// buf[3:5] padding2
	binary.BigEndian.PutUint32(buf[5:9], uint32(usage))
	// buf[9:18] padding3

	return conn.WriteBytes(buf)
}

// writeUpdateFramebuffer sends the 10-byte
// {messageType=3, incremental, x, y, width, height} record. The 16-bit
// fields are written in host byte order by default, reproducing the
// wire form observed from real ATEN devices rather than the RFB
// protocol's network order.
func (w *Writer) writeUpdateFramebuffer(conn *Connection, action WriteAction) error {
	buf := make([]byte, 10)
	buf[0] = 3
	buf[1] = action.Incremental

	order := binary.ByteOrder(binary.BigEndian)
	if w.HostByteOrderUpdateRequest {
		order = binary.NativeEndian
	}
	order.PutUint16(buf[2:4], action.X)
	order.PutUint16(buf[4:6], action.Y)
	order.PutUint16(buf[6:8], action.W)
	order.PutUint16(buf[8:10], action.H)

	return conn.WriteBytes(buf)
}
