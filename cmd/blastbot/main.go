package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"blastbot/internal/app"
)

func main() {
	var (
		cfgPath    string
		daemonMode bool
	)
	flag.StringVar(&cfgPath, "config", "./blastbot.yaml", "path to config file (yaml or json)")
	flag.BoolVar(&daemonMode, "daemon", false, "run headless: config jobs + scheduler, no menu")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if !daemonMode {
		runErr := a.RunMenu(ctx)

		reason := app.StopMenuExit
		if ctx.Err() != nil {
			reason = app.StopSignal
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = a.Stop(stopCtx, reason)
		stopCancel()

		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			fmt.Fprintln(os.Stderr, "fatal:", runErr)
			os.Exit(1)
		}
		return
	}

	if err := a.StartDaemon(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	// Under systemd Type=notify this flips the unit to active; anywhere
	// else the missing socket makes it a no-op.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	<-a.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	reason := app.StopSignal
	if ctx.Err() == nil {
		reason = app.StopFatal
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = a.Stop(stopCtx, reason)
	stopCancel()

	if reason == app.StopFatal {
		fmt.Fprintln(os.Stderr, "fatal:", a.Err())
		os.Exit(1)
	}
}
