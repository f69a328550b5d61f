// Package cmd holds the shared startup plumbing for service binaries.
package cmd

import (
	"context"
	"errors"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/perchsocial/perch/internal/platform/config"
	"github.com/perchsocial/perch/internal/platform/otel"
)

// Service identifiers used for telemetry resource naming.
const (
	ServiceTimeline = "timeline"
)

// Telemetry flush gets this long after the run loop returns.
const telemetryFlushTimeout = 5 * time.Second

// ParseConfig loads environment defaults into cfg.
func ParseConfig[T any](cfg *T) error {
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags on top of whatever cfg already holds.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// ParseConfigFromArgs loads env defaults and then lets flags override them.
func ParseConfigFromArgs[T any](cfg *T, fs *flag.FlagSet, args []string) error {
	if err := ParseConfig(cfg); err != nil {
		return err
	}
	return ParseArgs(fs, args)
}

// RunWithTelemetry sets up tracing for the named service, executes run, and
// flushes pending telemetry after run returns. The run error is returned
// unchanged; flush failures are only logged.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	switch {
	case service == "":
		return errors.New("service name is required")
	case run == nil:
		return errors.New("run function is required")
	}

	flush, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := flush(flushCtx); err != nil {
			log.Printf("%s otel shutdown: %v", service, err)
		}
	}()

	return run(ctx)
}
