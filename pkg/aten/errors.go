package aten

import "errors"

// Sentinel errors for the ATEN-RFB upstream session. Callers use
// errors.Is to distinguish them; session-ending errors are always wrapped
// with additional context via fmt.Errorf("%w: ...").
var (
	// ErrConnect indicates DNS resolution or every candidate address failed.
	ErrConnect = errors.New("aten: connect failed")

	// ErrAuthFailed indicates the upstream rejected the credentials.
	ErrAuthFailed = errors.New("aten: authentication failed")

	// ErrPeerClosed indicates the upstream closed the socket (recv returned 0).
	ErrPeerClosed = errors.New("aten: peer closed connection")

	// ErrRead indicates a non-EOF read failure.
	ErrRead = errors.New("aten: read failed")

	// ErrWrite indicates a send failure.
	ErrWrite = errors.New("aten: write failed")

	// ErrProtocol indicates an unrecognized upstream message type. Fatal
	// to the process: the dialect is unknown past this point.
	ErrProtocol = errors.New("aten: unrecognized protocol message")

	// ErrAlloc indicates a framebuffer allocation failed. Fatal to the process.
	ErrAlloc = errors.New("aten: allocation failed")
)
