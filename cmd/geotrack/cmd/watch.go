package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/go-drift/geotrack/pkg/platform"
)

func init() {
	RegisterCommand(&Command{
		Name:  "watch",
		Short: "Follow the simulated route until stopped",
		Long: `Start a continuous watch and print every location snapshot.

The watch runs until --duration elapses, the process is interrupted, or the
sharing gate closes. --deny-after and --disable-after change the simulated
host mid-run to show the automatic stop.`,
		Usage: "geotrack watch [flags]",
		Run:   runWatch,
	})
}

func runWatch(args []string) error {
	var (
		host         hostFlags
		duration     time.Duration
		denyAfter    time.Duration
		disableAfter time.Duration
	)
	fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	host.add(fs)
	fs.DurationVarP(&duration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
	fs.DurationVar(&denyAfter, "deny-after", 0, "revoke the simulated permission after this long")
	fs.DurationVar(&disableAfter, "disable-after", 0, "turn the sharing preference off after this long")
	if ok, err := parseFlags(commands["watch"], fs, args); !ok {
		return err
	}

	s, err := host.open()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	if denyAfter > 0 {
		t := time.AfterFunc(denyAfter, func() { s.bridge.SetPermission(platform.PermissionDenied) })
		defer t.Stop()
	}
	if disableAfter > 0 {
		t := time.AfterFunc(disableAfter, func() { s.prefs.SetSharingEnabled(false) })
		defer t.Stop()
	}

	stopped := make(chan struct{})
	var once sync.Once
	detach := s.tracker.OnSharingChange(func(allowed bool) {
		if !allowed {
			once.Do(func() { close(stopped) })
		}
	})
	defer detach()

	updates, unsubscribe := s.tracker.Subscribe()
	defer unsubscribe()

	s.tracker.StartWatching(ctx)
	if !s.tracker.IsWatching() {
		printResult(stdout, s.tracker.Result())
		return nil
	}
	s.log.Info().Msg("Watching, press Ctrl+C to stop")

	for {
		select {
		case <-ctx.Done():
			s.tracker.StopWatching()
			return nil
		case <-stopped:
			printResult(stdout, s.tracker.Result())
			s.log.Info().Msg("Sharing turned off, watch stopped")
			return nil
		case res, ok := <-updates:
			if !ok {
				return nil
			}
			printResult(stdout, res)
			if !s.tracker.IsWatching() {
				return nil
			}
		}
	}
}
