package aten

// UpdateKind discriminates the RFBUpdate sum type.
type UpdateKind int

const (
	// UpdateSetFramebuffer replaces the downstream framebuffer wholesale.
	UpdateSetFramebuffer UpdateKind = iota
	// UpdateAddDirtyRect marks a rectangle modified.
	UpdateAddDirtyRect
	// UpdateSetServerName updates the desktop name.
	UpdateSetServerName
)

// RFBUpdate is one entry in the upstream-to-downstream update queue.
type RFBUpdate struct {
	Kind UpdateKind

	// SetFramebuffer payload.
	Buffer        []byte
	Width, Height int

	// AddDirtyRect payload.
	X1, Y1, X2, Y2 int

	// SetServerName payload.
	Name string
}

// SetFramebufferUpdate builds a SetFramebuffer update.
func SetFramebufferUpdate(buffer []byte, width, height int) RFBUpdate {
	return RFBUpdate{Kind: UpdateSetFramebuffer, Buffer: buffer, Width: width, Height: height}
}

// AddDirtyRectUpdate builds an AddDirtyRect update.
func AddDirtyRectUpdate(x1, y1, x2, y2 int) RFBUpdate {
	return RFBUpdate{Kind: UpdateAddDirtyRect, X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// SetServerNameUpdate builds a SetServerName update.
func SetServerNameUpdate(name string) RFBUpdate {
	return RFBUpdate{Kind: UpdateSetServerName, Name: name}
}
