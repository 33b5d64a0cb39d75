// Package vnc wraps the downstream RFB server and its driving event loop
// — libvncserver and libev — behind a small Go interface. This package
// only ever calls the handful of entry points the bridge controller needs
// (init/process/mark-dirty/new-framebuffer plus a keyboard callback) and
// never reimplements RFB itself.
//
// Built around libvncserver's cgo-binding style
// (rfbGetScreen/rfbInitServer/rfbMarkRectAsModified, a package-level
// registry mapping *C.rfbScreenInfo back to the owning Go value so C
// callbacks can find their Go handler), as a server-only wrapper plus a
// libev event-loop wrapper (eventloop.go): libvncserver is driven via
// libev idle/check/async watchers rather than its own blocking
// ProcessEvents loop.
package vnc

/*
#cgo LDFLAGS: -lvncserver
#include <rfb/rfb.h>
#include <stdlib.h>
#include <string.h>

extern void goKeyEventCallback(rfbBool down, rfbKeySym key, rfbClientPtr cl);

static inline void setKeyEventCallback(rfbScreenInfoPtr screen) {
    screen->kbdAddEvent = goKeyEventCallback;
}

static inline void setServerPassword(rfbScreenInfoPtr screen, char* password) {
    char** passwords = malloc(2 * sizeof(char*));
    passwords[0] = strdup(password);
    passwords[1] = NULL;
    screen->authPasswdData = passwords;
    screen->passwordCheck = rfbCheckPasswordByList;
}

static inline void markRectAsModified(rfbScreenInfoPtr screen, int x1, int y1, int x2, int y2) {
    rfbMarkRectAsModified(screen, x1, y1, x2, y2);
}
*/
import "C"
import (
	"sync"
	"unsafe"
)

var (
	serverHandlers = make(map[*C.rfbScreenInfo]*Server)
	serverMutex    sync.RWMutex
)

//export goKeyEventCallback
func goKeyEventCallback(down C.rfbBool, key C.rfbKeySym, cl C.rfbClientPtr) {
	var screen *C.rfbScreenInfo
	if cl != nil {
		screen = cl.screen
	}

	serverMutex.RLock()
	server := serverHandlers[screen]
	serverMutex.RUnlock()

	if server != nil && server.keyEventHandler != nil {
		server.keyEventHandler(down != 0, uint32(key))
	}
}

// Server wraps one libvncserver rfbScreenInfo: the downstream RFB server
// the bridge re-exposes the upstream framebuffer and keyboard through.
type Server struct {
	rfbScreen       *C.rfbScreenInfo
	frameBuffer     []byte
	keyEventHandler KeyEventHandler
	passwordCString *C.char
	nameSet         bool
}

// NewServer creates a downstream RFB server of the given dimensions and
// pixel-format sample widths. bitsPerSample/samplesPerPixel/bytesPerPixel
// follow libvncserver's rfbGetScreen convention; the bridge calls for
// 5/3/2 — 5 bits per sample, 3 samples per pixel, 2 bytes per pixel.
func NewServer(width, height, bitsPerSample, samplesPerPixel, bytesPerPixel int) *Server {
	screen := C.rfbGetScreen(nil, nil, C.int(width), C.int(height), C.int(bitsPerSample), C.int(samplesPerPixel), C.int(bytesPerPixel))
	if screen == nil {
		return nil
	}

	frameBuffer := make([]byte, width*height*bytesPerPixel)
	screen.frameBuffer = (*C.char)(unsafe.Pointer(&frameBuffer[0]))

	server := &Server{rfbScreen: screen, frameBuffer: frameBuffer}

	serverMutex.Lock()
	serverHandlers[screen] = server
	serverMutex.Unlock()

	return server
}

// SetPort sets the TCP port the server listens on.
func (s *Server) SetPort(port int) {
	s.rfbScreen.port = C.int(port)
}

// SetPassword enables libvncserver's plaintext password-list check. This
// is the downstream viewer's login password, not cryptographic auth.
func (s *Server) SetPassword(password string) {
	if s.passwordCString != nil {
		C.free(unsafe.Pointer(s.passwordCString))
	}
	s.passwordCString = C.CString(password)
	C.setServerPassword(s.rfbScreen, s.passwordCString)
}

// SetKeyEventHandler installs the callback invoked on every keyboard
// event from any connected viewer.
func (s *Server) SetKeyEventHandler(handler KeyEventHandler) {
	s.keyEventHandler = handler
	C.setKeyEventCallback(s.rfbScreen)
}

// InitServer finishes server setup and opens the listening socket. Must
// be called after the port, password, and callbacks are configured and
// before the event loop starts processing.
func (s *Server) InitServer() error {
	C.rfbInitServer(s.rfbScreen)
	return nil
}

// SetDesktopName updates the name advertised to viewers.
func (s *Server) SetDesktopName(name string) {
	cName := C.CString(name)
	if s.nameSet {
		C.free(unsafe.Pointer(s.rfbScreen.desktopName))
	}
	s.rfbScreen.desktopName = cName
	s.nameSet = true
}

// Width and Height report the server's current advertised dimensions.
func (s *Server) Width() int  { return int(s.rfbScreen.width) }
func (s *Server) Height() int { return int(s.rfbScreen.height) }

// FrameBuffer returns the Go-owned backing slice libvncserver reads
// directly; callers must not replace it without going through Resize.
func (s *Server) FrameBuffer() []byte { return s.frameBuffer }

// MarkRectModified marks [x1,y1)-[x2,y2) as changed so libvncserver
// retransmits it to connected viewers.
func (s *Server) MarkRectModified(x1, y1, x2, y2 int) {
	C.markRectAsModified(s.rfbScreen, C.int(x1), C.int(y1), C.int(x2), C.int(y2))
}

// Resize replaces the framebuffer wholesale, keeping the bits-per-sample /
// samples-per-pixel layout fixed at 5/3/2.
func (s *Server) Resize(buf []byte, width, height int) {
	s.frameBuffer = buf
	var ptr *C.char
	if len(buf) > 0 {
		ptr = (*C.char)(unsafe.Pointer(&buf[0]))
	}
	C.rfbNewFramebuffer(s.rfbScreen, ptr, C.int(width), C.int(height), 5, 3, 2)
}

// ProcessEvents steps libvncserver's own event handling once. timeoutUs
// is in microseconds; -1 blocks until there is something to do. The check
// watcher in eventloop.go calls this once per libev iteration.
func (s *Server) ProcessEvents(timeoutUs int) {
	C.rfbProcessEvents(s.rfbScreen, C.long(timeoutUs))
}

// IsActive reports whether the server is still accepting/serving clients.
func (s *Server) IsActive() bool {
	return C.rfbIsActive(s.rfbScreen) != 0
}

// Close tears the server down and releases its native resources.
func (s *Server) Close() {
	serverMutex.Lock()
	delete(serverHandlers, s.rfbScreen)
	serverMutex.Unlock()

	if s.passwordCString != nil {
		C.free(unsafe.Pointer(s.passwordCString))
		s.passwordCString = nil
	}
	if s.rfbScreen != nil {
		C.rfbScreenCleanup(s.rfbScreen)
		s.rfbScreen = nil
	}
}
