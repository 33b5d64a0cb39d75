package vnc

import "errors"

// KeyEventHandler receives a key down/up event from a connected viewer.
type KeyEventHandler func(down bool, key uint32)

// ErrCreateServer is returned by a ServerFactory when the underlying
// libvncserver allocation fails (a nil rfbScreenInfo).
var ErrCreateServer = errors.New("vnc: failed to create rfb server")

// ServerPort is the downstream RFB server surface pkg/bridge depends on.
// Factored out of *Server so the bridge controller can be exercised in
// tests without linking libvncserver (see adapters_nocgo.go).
type ServerPort interface {
	SetPort(port int)
	SetPassword(password string)
	SetKeyEventHandler(handler KeyEventHandler)
	SetDesktopName(name string)
	InitServer() error

	Width() int
	Height() int
	FrameBuffer() []byte
	MarkRectModified(x1, y1, x2, y2 int)
	Resize(buf []byte, width, height int)

	ProcessEvents(timeoutUs int)
	IsActive() bool
	Close()
}

// EventLoopPort is the downstream event-loop surface pkg/bridge depends
// on: signal the async watcher, run the loop, tear it down.
type EventLoopPort interface {
	Signal()
	Run()
	Close()
}

// ErrCreateEventLoop is returned by an EventLoopFactory when the
// underlying libev loop cannot be created (cgo-less builds).
var ErrCreateEventLoop = errors.New("vnc: failed to create event loop")

// ServerFactory builds a ServerPort of the given dimensions and
// pixel-format sample layout.
type ServerFactory func(width, height, bitsPerSample, samplesPerPixel, bytesPerPixel int) (ServerPort, error)

// EventLoopFactory builds an EventLoopPort driving server's event
// processing and invoking onAsync on every async-watcher signal.
type EventLoopFactory func(server ServerPort, onAsync func()) (EventLoopPort, error)

var defaultServerFactory ServerFactory
var defaultEventLoopFactory EventLoopFactory

// NewDefaultServer builds a ServerPort using whichever factory this build
// was linked with (cgo-backed or the cgo-less stub).
func NewDefaultServer(width, height, bitsPerSample, samplesPerPixel, bytesPerPixel int) (ServerPort, error) {
	return defaultServerFactory(width, height, bitsPerSample, samplesPerPixel, bytesPerPixel)
}

// NewDefaultEventLoop builds an EventLoopPort using whichever factory
// this build was linked with.
func NewDefaultEventLoop(server ServerPort, onAsync func()) (EventLoopPort, error) {
	return defaultEventLoopFactory(server, onAsync)
}
