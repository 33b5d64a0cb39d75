//go:build cgo
// +build cgo

package vnc

func init() {
	defaultServerFactory = func(width, height, bitsPerSample, samplesPerPixel, bytesPerPixel int) (ServerPort, error) {
		s := NewServer(width, height, bitsPerSample, samplesPerPixel, bytesPerPixel)
		if s == nil {
			return nil, ErrCreateServer
		}
		return s, nil
	}
	defaultEventLoopFactory = func(server ServerPort, onAsync func()) (EventLoopPort, error) {
		return NewEventLoop(server, onAsync), nil
	}
}
