package aten

// ActionKind discriminates the WriteAction sum type. A tagged struct
// with one payload field per variant, rather than an untagged union,
// since no field overlaps in a way that needs the space saving.
type ActionKind int

const (
	// ActionKey requests a key down/up event be sent upstream.
	ActionKey ActionKind = iota
	// ActionUpdateFramebuffer requests the next framebuffer-update reply.
	ActionUpdateFramebuffer
	// ActionPing is a no-op used only to wake the writer so it observes
	// termination.
	ActionPing
)

// WriteAction is one entry in the downstream-to-upstream action queue.
type WriteAction struct {
	Kind ActionKind

	// Key payload.
	KeyDown bool
	KeySym  uint32

	// UpdateFramebuffer payload.
	Incremental uint8
	X, Y, W, H  uint16
}

// KeyAction builds a Key write-action.
func KeyAction(down bool, keysym uint32) WriteAction {
	return WriteAction{Kind: ActionKey, KeyDown: down, KeySym: keysym}
}

// UpdateFramebufferAction builds an UpdateFramebuffer write-action.
func UpdateFramebufferAction(incremental uint8, x, y, w, h uint16) WriteAction {
	return WriteAction{Kind: ActionUpdateFramebuffer, Incremental: incremental, X: x, Y: y, W: w, H: h}
}

// PingAction builds a Ping write-action.
func PingAction() WriteAction {
	return WriteAction{Kind: ActionPing}
}
