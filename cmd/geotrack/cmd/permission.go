package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

func init() {
	RegisterCommand(&Command{
		Name:  "permission",
		Short: "Report the geolocation permission state",
		Long: `Print the host's geolocation permission state.

Without flags the permission API is consulted and a probe runs only when the
host has none. --reset always probes, which may prompt the user.`,
		Usage: "geotrack permission [--reset] [flags]",
		Run:   runPermission,
	})
}

func runPermission(args []string) error {
	var (
		host  hostFlags
		reset bool
	)
	fs := pflag.NewFlagSet("permission", pflag.ContinueOnError)
	host.add(fs)
	fs.BoolVar(&reset, "reset", false, "re-probe instead of trusting the cached or queried state")
	if ok, err := parseFlags(commands["permission"], fs, args); !ok {
		return err
	}

	s, err := host.open()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	state := s.tracker.CheckBrowserPermission(ctx)
	if reset {
		state = s.tracker.ResetBrowserPermissionState(ctx)
	}
	fmt.Fprintf(stdout, "permission=%s sharing=%t\n", state, s.tracker.SharingAllowed())
	return nil
}
