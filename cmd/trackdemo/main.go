// Command trackdemo plays the part of a host application: it initializes the
// tracker, records a few events and waits for them to reach the collector.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/PratikDhanave/event-analytics-sdk/internal/config"
	"github.com/PratikDhanave/event-analytics-sdk/internal/logging"
	"github.com/PratikDhanave/event-analytics-sdk/tracker"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "trackdemo:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("trackdemo", pflag.ContinueOnError)
	configPath := flags.String("config", "", "YAML config file (overrides ANALYTICS_* env vars)")
	screens := flags.StringSlice("screen", []string{"Home"}, "screen views to track")
	clicks := flags.StringSlice("click", []string{"BuyButton"}, "clicks to track")
	wait := flags.Duration("wait", 10*time.Second, "how long to wait for delivery before exiting")
	if err := flags.Parse(args); err != nil {
		return err
	}

	sdk, err := config.LoadSDK(*configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(sdk.LogLevel, sdk.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var opts []tracker.Option
	if sdk.StoreBackend == config.BackendBadger {
		opts = append(opts, tracker.WithBadgerStore(sdk.StorePath))
	}

	cfg := tracker.DefaultConfig(sdk.APIKey, sdk.Endpoint)
	cfg.FlushAtLaunch = sdk.FlushAtLaunch
	cfg.MaxRetryCount = sdk.MaxRetryCount
	cfg.StorePath = sdk.StorePath
	cfg.Logger = logger

	client := tracker.New(opts...)
	if err := client.Initialize(cfg); err != nil {
		return err
	}

	for _, name := range *screens {
		client.TrackScreen(name)
	}
	for _, name := range *clicks {
		client.TrackClick(name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *wait)
	defer cancel()

	if left, done := waitForDelivery(ctx, client); done {
		logger.Info("all events delivered")
	} else {
		logger.Warn("events still pending, they will be resent on next launch", zap.Int("pending", left))
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	return client.Close(closeCtx)
}

// waitForDelivery polls until the queue is empty or ctx ends, returning the
// last pending count seen.
func waitForDelivery(ctx context.Context, client *tracker.Client) (int, bool) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	left := -1
	for {
		if n, err := client.Pending(ctx); err == nil {
			if n == 0 {
				return 0, true
			}
			left = n
		}
		select {
		case <-ctx.Done():
			return left, false
		case <-ticker.C:
		}
	}
}
