//go:build !cgo
// +build !cgo

package vnc

func init() {
	defaultServerFactory = func(width, height, bitsPerSample, samplesPerPixel, bytesPerPixel int) (ServerPort, error) {
		return nil, ErrCreateServer
	}
	defaultEventLoopFactory = func(server ServerPort, onAsync func()) (EventLoopPort, error) {
		return nil, ErrCreateEventLoop
	}
}
