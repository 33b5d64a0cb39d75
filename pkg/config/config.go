// Package config holds the bridge's runtime configuration and the
// validation rules needed before a connection loop can safely start.
package config

import (
	"errors"
	"fmt"

	"github.com/atenbridge/vncbridge/pkg/logging"
)

// maxCredentialLen is one short of the 24-byte NUL-padded wire field each
// of username/password occupies in the handshake's credential block —
// the trailing byte is reserved for the terminating NUL.
const maxCredentialLen = 23

var (
	ErrMissingUpstreamHost = errors.New("config: upstream host is required")
	ErrCredentialTooLong   = errors.New("config: username/password must be 23 bytes or fewer")
	ErrInvalidListenPort   = errors.New("config: listen port must be between 1 and 65535")
)

// Config is the bridge's full set of runtime knobs.
type Config struct {
	// UpstreamHost/UpstreamService name the ATEN device's RFB endpoint.
	UpstreamHost    string
	UpstreamService string

	// Username/Password are written verbatim (NUL-padded to 24 bytes
	// each) into the handshake's credential block.
	Username string
	Password string

	// ListenPort is the TCP port the downstream RFB server listens on.
	ListenPort int

	// DownstreamPassword, if non-empty, enables libvncserver's plaintext
	// password-list check for viewers connecting to the bridge.
	DownstreamPassword string

	LogLevel logging.Level
	LogJSON  bool
}

// Default returns a Config with the reference deployment's defaults:
// upstream host "localhost", service "5901".
func Default() Config {
	return Config{
		UpstreamHost:    "localhost",
		UpstreamService: "5901",
		ListenPort:      5900,
		LogLevel:        logging.LevelInfo,
	}
}

// Validate checks the fields the bridge controller cannot safely proceed
// without.
func (c Config) Validate() error {
	if c.UpstreamHost == "" {
		return ErrMissingUpstreamHost
	}
	if len(c.Username) > maxCredentialLen || len(c.Password) > maxCredentialLen {
		return fmt.Errorf("%w (got username=%d password=%d bytes)", ErrCredentialTooLong, len(c.Username), len(c.Password))
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return ErrInvalidListenPort
	}
	return nil
}
