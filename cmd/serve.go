package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KaramelBytes/twincheck-cli/internal/analysis"
	"github.com/KaramelBytes/twincheck-cli/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the comparison, curve and sample-check API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		scfg := serverConfig()
		if cmd.Flags().Changed("addr") {
			scfg.Addr = serveAddr
		}
		if err := checkOptions(scfg.Analysis); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.New(scfg, logger).ListenAndServe(ctx)
	},
}

// serverConfig maps the loaded configuration onto server settings.
func serverConfig() server.Config {
	c := currentConfig()
	scfg := server.DefaultConfig()
	scfg.Addr = c.ServerAddr
	if c.RequestTimeoutSec > 0 {
		scfg.RequestTimeout = time.Duration(c.RequestTimeoutSec) * time.Second
	}
	if c.MaxUploadMB > 0 {
		scfg.MaxUploadBytes = int64(c.MaxUploadMB) << 20
	}
	if len(c.CORSOrigins) > 0 {
		scfg.CORSOrigins = c.CORSOrigins
	}
	scfg.Analysis = analysis.Options{
		Tolerance:    c.TolerancePercent,
		PairOnly:     c.PairOnly,
		GroupEpsilon: c.GroupEpsilon,
		Alpha:        c.Alpha,
	}
	if c.ResultsSheet != "" {
		scfg.ResultsSheet = c.ResultsSheet
	}
	scfg.SkipRows = c.SampleSkipRows
	if c.CurveSamples > 0 {
		scfg.Curve.Samples = c.CurveSamples
	}
	if c.CurvePoints > 1 {
		scfg.Curve.Points = c.CurvePoints
	}
	if c.FiberJitter > 0 {
		scfg.Curve.FiberRange = c.FiberJitter
	}
	if c.PolymerJitter > 0 {
		scfg.Curve.PolymerRange = c.PolymerJitter
	}
	return scfg
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8000", "listen address")
}
