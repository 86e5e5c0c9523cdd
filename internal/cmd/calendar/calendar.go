// Package calendar wires configuration parsing and the run loop for
// the calendar service command.
package calendar

import (
	"context"
	"flag"

	platformcmd "github.com/louisbranch/gatherspace/internal/platform/cmd"
	server "github.com/louisbranch/gatherspace/internal/services/calendar/app"
)

// Config holds calendar command configuration.
type Config struct {
	Port int `env:"GATHERSPACE_CALENDAR_PORT"`
}

// ParseConfig loads env defaults and parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Port: 8087}
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.IntVar(&cfg.Port, "port", cfg.Port, "The calendar gRPC server port")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the calendar server with telemetry configured.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceCalendar, func(ctx context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
