package aten

import (
	"fmt"
	"sync/atomic"

	"github.com/atenbridge/vncbridge/pkg/logging"
)

// Screen-off sentinel dimensions: the bit patterns produced by negating
// 640 and 480 in 16-bit two's complement.
const (
	screenOffWidth  = uint16(0xFD80) // -640
	screenOffHeight = uint16(0xFE20) // -480

	tileSize      = 16
	tileDataBytes = 2 * tileSize * tileSize
)

// Reader drives the upstream ATEN-RFB client state machine: it owns the
// live framebuffer and dispatches incoming message types, decoding
// framebuffer-update messages into pixel blits and dirty-rectangle
// events.
type Reader struct {
	Logger logging.Logger

	// EmitUpdate and EmitAction hand events to the bridge's two queues.
	// Kept as callbacks rather than concrete queue types so this package
	// has no dependency on pkg/bridge.
	EmitUpdate func(RFBUpdate)
	EmitAction func(WriteAction)

	Terminating *atomic.Bool

	fb        []byte
	fbWidth   int
	fbHeight  int
	screenOff bool
}

// NewReader constructs a Reader seeded with the bridge's current
// framebuffer, matching the session state it must keep synchronized with
// the downstream side until a resize replaces it.
func NewReader(logger logging.Logger, fb []byte, width, height int, terminating *atomic.Bool) *Reader {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Reader{
		Logger:      logger,
		Terminating: terminating,
		fb:          fb,
		fbWidth:     width,
		fbHeight:    height,
	}
}

// Run reads and dispatches upstream messages until Terminating is set or
// an error occurs. On error it sets Terminating and enqueues a Ping
// action to unblock the writer, then returns.
func (r *Reader) Run(conn *Connection) error {
	for !r.Terminating.Load() {
		msgType, err := ReadRaw[uint8](conn)
		if err != nil {
			r.fail(err)
			return err
		}

		if err := r.dispatch(conn, msgType); err != nil {
			r.fail(err)
			return err
		}
	}
	return nil
}

func (r *Reader) fail(err error) {
	r.Terminating.Store(true)
	r.Logger.Error("reader terminating", logging.Field{Key: "error", Value: err})
	if r.EmitAction != nil {
		r.EmitAction(PingAction())
	}
}

func (r *Reader) dispatch(conn *Connection, msgType uint8) error {
	switch msgType {
	case 0:
		return r.handleFramebufferUpdate(conn)
	case 4:
		return conn.Discard(20)
	case 0x16:
		return conn.Discard(1)
	case 0x37:
		return conn.Discard(2)
	case 0x39:
		return conn.Discard(264)
	case 0x3c:
		return conn.Discard(8)
	default:
		return fmt.Errorf("%w: message type 0x%x", ErrProtocol, msgType)
	}
}

func (r *Reader) handleFramebufferUpdate(conn *Connection) error {
	if err := conn.Discard(1); err != nil { // padding
		return err
	}
	nUpdates, err := ReadRaw[uint16](conn)
	if err != nil {
		return err
	}

	for i := uint16(0); i < nUpdates; i++ {
		if err := r.handleRect(conn); err != nil {
			return err
		}
	}

	incremental := uint8(1)
	if r.screenOff {
		incremental = 0
	}
	if r.EmitAction != nil {
		r.EmitAction(UpdateFramebufferAction(incremental, 0, 0, 0, 0))
	}
	return nil
}

type rectHeader struct {
	x, y, width, height uint16
	encoding, unknown   uint32
	dataLen             uint32
}

func (r *Reader) readRectHeader(conn *Connection) (rectHeader, error) {
	var h rectHeader
	var err error
	if h.x, err = ReadRaw[uint16](conn); err != nil {
		return h, err
	}
	if h.y, err = ReadRaw[uint16](conn); err != nil {
		return h, err
	}
	if h.width, err = ReadRaw[uint16](conn); err != nil {
		return h, err
	}
	if h.height, err = ReadRaw[uint16](conn); err != nil {
		return h, err
	}
	if h.encoding, err = ReadRaw[uint32](conn); err != nil {
		return h, err
	}
	if h.unknown, err = ReadRaw[uint32](conn); err != nil {
		return h, err
	}
	if h.dataLen, err = ReadRaw[uint32](conn); err != nil {
		return h, err
	}
	return h, nil
}

func (r *Reader) handleRect(conn *Connection) error {
	h, err := r.readRectHeader(conn)
	if err != nil {
		return err
	}

	if h.width == screenOffWidth && h.height == screenOffHeight {
		if !r.screenOff {
			r.screenOff = true
			r.Logger.Info("upstream screen disappeared")
		}
		for i := range r.fb {
			r.fb[i] = 0xf0
		}
		r.EmitUpdate(AddDirtyRectUpdate(0, 0, r.fbWidth, r.fbHeight))
		return nil
	}

	if r.screenOff {
		r.screenOff = false
		r.Logger.Info("upstream screen back")
	}

	width, height := int(h.width), int(h.height)
	if width != r.fbWidth || height != r.fbHeight {
		r.Logger.Info("framebuffer resizing",
			logging.Field{Key: "old_width", Value: r.fbWidth},
			logging.Field{Key: "old_height", Value: r.fbHeight},
			logging.Field{Key: "new_width", Value: width},
			logging.Field{Key: "new_height", Value: height})

		newFB := make([]byte, width*height*2)
		r.fb = newFB
		r.fbWidth = width
		r.fbHeight = height
		r.EmitUpdate(SetFramebufferUpdate(newFB, width, height))
	}

	if !r.screenOff {
		return r.handleTilePayload(conn)
	}
	return nil
}

func (r *Reader) handleTilePayload(conn *Connection) error {
	tileType, err := ReadRaw[uint8](conn)
	if err != nil {
		return err
	}
	if err := conn.Discard(1); err != nil { // padding
		return err
	}
	segments, err := ReadRaw[uint32](conn)
	if err != nil {
		return err
	}
	totalLen, err := ReadRaw[uint32](conn)
	if err != nil {
		return err
	}

	switch tileType {
	case 0:
		return r.handleSubrects(conn, int(segments))
	case 1:
		return r.handleWholeFrame(conn, int(totalLen))
	default:
		return fmt.Errorf("%w: tile type 0x%x", ErrProtocol, tileType)
	}
}

func (r *Reader) handleSubrects(conn *Connection, segments int) error {
	haveRect := false
	var x1, y1, x2, y2 int

	rowStride := 2 * r.fbWidth
	fbEnd := 2 * r.fbWidth * r.fbHeight

	for s := 0; s < segments; s++ {
		if err := conn.Discard(4); err != nil {
			return err
		}
		ty, err := ReadRaw[uint8](conn)
		if err != nil {
			return err
		}
		tx, err := ReadRaw[uint8](conn)
		if err != nil {
			return err
		}
		data, err := conn.ReadBytes(tileDataBytes)
		if err != nil {
			return err
		}

		outOff := 2 * (int(ty)*tileSize*r.fbWidth + int(tx)*tileSize)
		dataOff := 0
		for line := 0; line < tileSize; line++ {
			if outOff >= fbEnd {
				break
			}
			size := tileSize * 2
			if outOff+size > fbEnd {
				size = fbEnd - outOff
			}
			ReformatPixels(r.fb[outOff:outOff+size], data[dataOff:dataOff+size])
			outOff += rowStride
			dataOff += size
		}

		rx1, ry1 := int(tx)*tileSize, int(ty)*tileSize
		rx2, ry2 := rx1+tileSize, ry1+tileSize
		if !haveRect {
			x1, y1, x2, y2 = rx1, ry1, rx2, ry2
			haveRect = true
		} else {
			x1, y1 = min(x1, rx1), min(y1, ry1)
			x2, y2 = max(x2, rx2), max(y2, ry2)
		}
	}

	if haveRect {
		r.EmitUpdate(AddDirtyRectUpdate(x1, y1, x2, y2))
	}
	return nil
}

func (r *Reader) handleWholeFrame(conn *Connection, totalLen int) error {
	payloadLen := totalLen - 10
	data, err := conn.ReadBytes(payloadLen)
	if err != nil {
		return err
	}
	// A frame larger than the current buffer is truncated rather than
	// trusted: the resize path has already sized fb to the advertised
	// dimensions, so any excess is protocol garbage.
	n := min(payloadLen, len(r.fb))
	ReformatPixels(r.fb[:n], data[:n])
	r.EmitUpdate(AddDirtyRectUpdate(0, 0, r.fbWidth, r.fbHeight))
	return nil
}
