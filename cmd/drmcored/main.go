// Command drmcored serves a software-backed DRM/KMS core over a
// Unix-domain socket, for clients that would otherwise talk to a real
// /dev/dri/cardN.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ChengyuZhu6/drmcore/internal/dmt"
	"github.com/ChengyuZhu6/drmcore/internal/swdriver"
	"github.com/ChengyuZhu6/drmcore/internal/wire"
	"github.com/ChengyuZhu6/drmcore/pkg/dispatch"
	"github.com/ChengyuZhu6/drmcore/pkg/kms"
	"github.com/ChengyuZhu6/drmcore/pkg/transport"
)

// uapi connector/encoder type ids this daemon's built-in topology uses;
// wire doesn't enumerate the full DRM_MODE_CONNECTOR_*/ENCODER_* tables
// since nothing else in the core inspects them beyond echoing them back.
const (
	connectorTypeVirtual = 15
	encoderTypeVirtual   = 5
)

var (
	socketPath  string
	cursorSize  uint32
	logLevel    string
)

func main() {
	root := &cobra.Command{
		Use:   "drmcored",
		Short: "Software-backed DRM/KMS core daemon",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "trace|debug|info|warn|error")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and serve the KMS core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	serveCmd.Flags().StringVar(&socketPath, "socket", "/run/drmcored.sock", "Unix-domain socket path")
	serveCmd.Flags().Uint32Var(&cursorSize, "cursor-size", 64, "cursor plane width/height in pixels")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print driver version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			drv := swdriver.New(newLogger(), cursorSize, true)
			major, minor, patch := drv.DriverVersion()
			name, desc, date := drv.DriverInfo()
			fmt.Printf("%s %d.%d.%d (%s) built %s\n", name, major, minor, patch, desc, date)
			return nil
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("component", "drmcored").Logger()
}

func runServe(ctx context.Context) error {
	log := newLogger()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	driver := swdriver.New(log, cursorSize, true)
	dev := kms.NewDevice(driver, log)
	if err := bringUp(dev); err != nil {
		return fmt.Errorf("drmcored: bring-up: %w", err)
	}
	disp := dispatch.New(dev, log)

	ln, err := transport.ListenUnix(socketPath)
	if err != nil {
		return fmt.Errorf("drmcored: listen: %w", err)
	}
	defer ln.Close()
	log.Info().Str("socket", socketPath).Msg("drmcored: listening")

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("drmcored: shutting down")
				return nil
			}
			log.Warn().Err(err).Msg("drmcored: accept failed")
			continue
		}
		go serveConn(ctx, dev, disp, conn, log)
	}
}

// bringUp constructs a single-head virtual display: one connector, one
// encoder, one Crtc with a primary and cursor plane, seeded with the
// standard VESA DMT mode list bounded at the Device's dimension limits.
func bringUp(dev *kms.Device) error {
	_, _, maxW, maxH := dev.DimensionLimits()

	primary, err := dev.AddPlane(kms.PlaneTypePrimary, nil, []uint32{wire.FormatXRGB8888, wire.FormatARGB8888}, nil)
	if err != nil {
		return err
	}
	cursor, err := dev.AddPlane(kms.PlaneTypeCursor, nil, []uint32{wire.FormatARGB8888}, nil)
	if err != nil {
		return err
	}
	crtc, err := dev.AddCrtc(primary, cursor)
	if err != nil {
		return err
	}
	primary.DrmState().Crtc = crtc
	cursor.DrmState().Crtc = crtc
	// AddCrtc needs its primary/cursor Planes up front, so only now does
	// the Crtc they belong to exist to report back on MODE_GETPLANE.
	primary.SetPossibleCrtcs([]*kms.Crtc{crtc})
	cursor.SetPossibleCrtcs([]*kms.Crtc{crtc})

	enc, err := dev.AddEncoder(encoderTypeVirtual, []*kms.Crtc{crtc})
	if err != nil {
		return err
	}
	conn, err := dev.AddConnector(connectorTypeVirtual, 0, 0, wire.SubpixelUnknown, []*kms.Encoder{enc})
	if err != nil {
		return err
	}
	conn.SetStatus(wire.ConnectorStatusConnected)
	conn.SetCurrentEncoder(enc)
	enc.SetCurrentCrtc(crtc)
	conn.SetModeList(dmt.Modes(maxW, maxH))
	return nil
}
