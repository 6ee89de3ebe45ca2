package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

func init() {
	RegisterCommand(&Command{
		Name:  "locate",
		Short: "Take a single location fix",
		Long: `Request one high-accuracy fix and print the result.

The request is skipped when permission is already denied or sharing is off.
A failed request exits non-zero after printing the failure status.`,
		Usage: "geotrack locate [flags]",
		Run:   runLocate,
	})
}

func runLocate(args []string) error {
	var (
		host    hostFlags
		timeout time.Duration
	)
	fs := pflag.NewFlagSet("locate", pflag.ContinueOnError)
	host.add(fs)
	fs.DurationVarP(&timeout, "timeout", "t", 30*time.Second, "give up waiting after this long")
	if ok, err := parseFlags(commands["locate"], fs, args); !ok {
		return err
	}

	s, err := host.open()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	coords := s.tracker.GetCurrentLocation(ctx)
	printResult(stdout, s.tracker.Result())
	if coords == nil {
		return fmt.Errorf("no location: %s", s.tracker.Status())
	}
	return nil
}
