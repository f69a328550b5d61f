// Package timeline parses timeline service flags and launches the service.
package timeline

import (
	"context"
	"flag"

	entrypoint "github.com/perchsocial/perch/internal/platform/cmd"
	server "github.com/perchsocial/perch/internal/services/timeline/app"
)

// Config holds timeline command configuration.
type Config struct {
	Port int `env:"PERCH_TIMELINE_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The timeline HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the timeline HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTimeline, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
