package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atenbridge/vncbridge/pkg/bridge"
	"github.com/atenbridge/vncbridge/pkg/config"
	"github.com/atenbridge/vncbridge/pkg/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var cfg = config.Default()
var logLevelFlag string

var rootCmd = &cobra.Command{
	Use:   "atenbridge",
	Short: "Bridge an ATEN IPMI/KVM RFB dialect to a standard VNC server",
	Long: `atenbridge connects as a client to an ATEN IPMI/KVM device speaking a
non-standard RFB dialect and re-exposes the live screen and keyboard as a
standards-compliant RFB server any VNC viewer can attach to.

Example:
  atenbridge --host 10.0.0.5 --port 5901 --listen 5900 --username admin --password secret`,
	RunE: runBridge,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfg.UpstreamHost, "host", cfg.UpstreamHost, "upstream ATEN device host")
	flags.StringVar(&cfg.UpstreamService, "port", cfg.UpstreamService, "upstream ATEN device port/service")
	flags.StringVar(&cfg.Username, "username", "", "upstream username (max 23 bytes)")
	flags.StringVar(&cfg.Password, "password", "", "upstream password (max 23 bytes)")
	flags.IntVar(&cfg.ListenPort, "listen", cfg.ListenPort, "downstream RFB listen port")
	flags.StringVar(&cfg.DownstreamPassword, "downstream-password", "", "optional password for downstream viewers")
	flags.StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&cfg.LogJSON, "log-json", false, "emit logs as line-delimited JSON")
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg.LogLevel = parseLogLevel(logLevelFlag)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.NewStdLogger(os.Stderr, cfg.LogLevel)
	logger.SetJSON(cfg.LogJSON)

	b, err := bridge.New(cfg, logger)
	if err != nil {
		// ErrAlloc is fatal to the process: the downstream server could
		// not even be created.
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = b.Run(ctx)
	if err != nil && ctx.Err() == nil {
		// Only a fatal protocol error reaches here uncancelled; any
		// reconnect-worthy error is already absorbed inside Run.
		return err
	}
	return nil
}

func parseLogLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
