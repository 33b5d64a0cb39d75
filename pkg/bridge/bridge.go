// Package bridge owns the connection lifecycle: the handshake/auth
// exchange with the upstream ATEN device, the reader/writer goroutine
// pair for one session, both cross-thread queues, and the hand-off into
// the downstream RFB server's event loop.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/atenbridge/vncbridge/pkg/aten"
	"github.com/atenbridge/vncbridge/pkg/config"
	"github.com/atenbridge/vncbridge/pkg/logging"
	"github.com/atenbridge/vncbridge/pkg/vnc"
)

const (
	initialWidth  = 640
	initialHeight = 480
	bitsPerSample = 5
	samplesPerPix = 3
	bytesPerPix   = 2

	aten16SecurityType = 16

	reconnectDelay = time.Second
)

// Bridge owns one bridge process: a single downstream RFB server plus a
// connection loop that repeatedly dials, handshakes with, and bridges one
// upstream session at a time.
type Bridge struct {
	cfg    config.Config
	logger logging.Logger

	server vnc.ServerPort
	loop   vnc.EventLoopPort

	actions     *ActionQueue
	updates     *UpdateQueue
	terminating atomic.Bool
}

// New builds a Bridge from a validated Config.
func New(cfg config.Config, logger logging.Logger) (*Bridge, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	server, err := vnc.NewDefaultServer(initialWidth, initialHeight, bitsPerSample, samplesPerPix, bytesPerPix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", aten.ErrAlloc, err)
	}

	b := &Bridge{
		cfg:    cfg,
		logger: logger,
		server: server,
	}
	b.actions = NewActionQueue()
	b.updates = NewUpdateQueue(func() {
		if b.loop != nil {
			b.loop.Signal()
		}
	})

	server.SetPort(cfg.ListenPort)
	if cfg.DownstreamPassword != "" {
		server.SetPassword(cfg.DownstreamPassword)
	}
	server.SetKeyEventHandler(func(down bool, key uint32) {
		b.actions.Push(aten.KeyAction(down, key))
	})

	if err := server.InitServer(); err != nil {
		server.Close()
		return nil, fmt.Errorf("%w: %v", aten.ErrAlloc, err)
	}

	loop, err := vnc.NewDefaultEventLoop(server, b.drainUpdates)
	if err != nil {
		server.Close()
		return nil, fmt.Errorf("%w: %v", aten.ErrAlloc, err)
	}
	b.loop = loop

	return b, nil
}

// Run drives the downstream event loop and the upstream connection loop
// until ctx is cancelled, returning ctx.Err(). It returns nil once the
// downstream server is no longer active, and the error itself on a fatal
// ErrProtocol.
func (b *Bridge) Run(ctx context.Context) error {
	go b.loop.Run()
	defer b.loop.Close()
	defer b.server.Close()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Stop reconnecting once the downstream server itself has shut
		// down; there is nobody left to bridge to.
		if !b.server.IsActive() {
			b.logger.Warn("downstream server no longer active, stopping")
			return nil
		}

		attempt++
		if err := b.runSession(ctx); err != nil {
			// ErrProtocol is fatal to the process: an unrecognized message
			// means the dialect assumption this bridge was built on no
			// longer holds. Every other session error just triggers a
			// reconnect.
			if errors.Is(err, aten.ErrProtocol) {
				return err
			}
			b.logger.Warn("session ended",
				logging.Field{Key: "error", Value: err},
				logging.Field{Key: "attempt", Value: attempt})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// runSession dials, handshakes, and bridges exactly one upstream
// connection until either worker goroutine terminates it.
func (b *Bridge) runSession(ctx context.Context) error {
	conn, err := aten.Dial(ctx, b.cfg.UpstreamHost, b.cfg.UpstreamService)
	if err != nil {
		return fmt.Errorf("%w: %v", aten.ErrConnect, err)
	}
	defer conn.Close()

	if err := b.handshake(conn); err != nil {
		return err
	}

	b.terminating.Store(false)
	b.actions.Reopen()

	// Kick off the first framebuffer-update request.
	b.actions.Push(aten.UpdateFramebufferAction(0, 0, 0, 0, 0))

	reader := aten.NewReader(b.logger, b.server.FrameBuffer(), b.server.Width(), b.server.Height(), &b.terminating)
	reader.EmitUpdate = b.updates.Push
	reader.EmitAction = b.actions.Push

	writer := aten.NewWriter(b.logger, b.actions.Pop, &b.terminating)

	readerErr := make(chan error, 1)
	writerErr := make(chan error, 1)

	go func() { readerErr <- reader.Run(conn) }()
	go func() { writerErr <- writer.Run(conn) }()

	err = <-readerErr
	b.actions.Close()
	werr := <-writerErr
	if err == nil {
		err = werr
	}
	return err
}

// handshake performs the ATEN dialect's byte-for-byte handshake exchange.
func (b *Bridge) handshake(conn *aten.Connection) error {
	if err := conn.Discard(12); err != nil {
		return err
	}
	if err := conn.WriteBytes([]byte("RFB 003.008\n")); err != nil {
		return err
	}

	nSecurity, err := aten.ReadRaw[uint8](conn)
	if err != nil {
		return err
	}
	secTypes, err := conn.ReadBytes(int(nSecurity))
	if err != nil {
		return err
	}
	if nSecurity == 0 || secTypes[0] != aten16SecurityType {
		return fmt.Errorf("%w: unsupported security type list", aten.ErrProtocol)
	}
	if err := aten.WriteRaw[uint8](conn, aten16SecurityType); err != nil {
		return err
	}

	if err := conn.Discard(24); err != nil {
		return err
	}

	creds := make([]byte, 48)
	copy(creds[0:24], b.cfg.Username)
	copy(creds[24:48], b.cfg.Password)
	if err := conn.WriteBytes(creds); err != nil {
		return err
	}

	authErr, err := aten.ReadRaw[uint32](conn)
	if err != nil {
		return err
	}
	if authErr != 0 {
		return aten.ErrAuthFailed
	}

	if err := aten.WriteRaw[uint8](conn, 0); err != nil {
		return err
	}

	if err := conn.Discard(20); err != nil {
		return err
	}

	nameLen, err := aten.ReadRaw[uint32](conn)
	if err != nil {
		return err
	}
	nameBytes, err := conn.ReadBytes(int(nameLen))
	if err != nil {
		return err
	}
	name := string(nameBytes)

	if err := conn.Discard(12); err != nil {
		return err
	}

	b.updates.Push(aten.SetServerNameUpdate(name))
	return nil
}

// drainUpdates runs on the downstream event-loop's own goroutine (invoked
// from the libev async callback) and applies every queued RFBUpdate to
// the downstream server.
func (b *Bridge) drainUpdates() {
	for _, u := range b.updates.DrainAll() {
		switch u.Kind {
		case aten.UpdateSetFramebuffer:
			b.server.Resize(u.Buffer, u.Width, u.Height)
		case aten.UpdateAddDirtyRect:
			b.server.MarkRectModified(u.X1, u.Y1, u.X2, u.Y2)
		case aten.UpdateSetServerName:
			b.server.SetDesktopName(u.Name)
		}
	}
}
