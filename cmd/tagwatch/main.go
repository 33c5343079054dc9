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

	"tagwatch/internal/app"
	"tagwatch/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath     string
		once        bool
		checkConfig bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to config file (json, yaml or toml); env only when empty")
	flag.BoolVar(&once, "once", false, "run a single poll cycle, persist state and exit")
	flag.BoolVar(&checkConfig, "check-config", false, "validate configuration and exit")
	flag.Parse()

	if checkConfig {
		if _, _, err := app.LoadConfig(cfgPath, nil); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCode(err)
		}
		fmt.Println("config ok")
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, app.Options{ConfigPath: cfgPath})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return exitCode(err)
	}

	stop := func(reason app.StopReason) {
		sctx, scancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer scancel()
		_ = a.Stop(sctx, reason)
	}

	if once {
		err := a.RunOnce(ctx)
		stop(app.StopOnceDone)
		if err != nil && ctx.Err() == nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			return 1
		}
		return 0
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		stop(app.StopFatalError)
		return 1
	}

	select {
	case <-ctx.Done():
		stop(app.StopSignal)
		return 0
	case <-a.Done():
		err := a.Err()
		if ctx.Err() != nil || err == nil {
			stop(app.StopSignal)
			return 0
		}
		fmt.Fprintln(os.Stderr, "fatal:", err)
		stop(app.StopFatalError)
		return 1
	}
}

func exitCode(err error) int {
	var ce *config.Error
	if errors.As(err, &ce) {
		return 2
	}
	return 1
}
