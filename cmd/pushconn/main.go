package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pushconn/internal/app"
)

func main() {
	var (
		cfgPath   string
		inputPath string
		exitOnEOF bool
		stopAfter time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json/yaml")
	flag.StringVar(&inputPath, "input", "-", "JSON Lines notification source (- for stdin)")
	flag.BoolVar(&exitOnEOF, "exit-on-eof", false, "shut down once the input is exhausted")
	flag.DurationVar(&stopAfter, "stop-timeout", 30*time.Second, "upper bound for graceful shutdown")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	in, closeIn, err := openInput(inputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal input:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}
	defer closeIn()

	fed := make(chan error, 1)
	go func() {
		_, err := a.Feed(ctx, in)
		fed <- err
	}()

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	case err := <-fed:
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			fmt.Fprintln(os.Stderr, "input:", err)
			reason = app.StopFatalError
		case exitOnEOF:
			reason = app.StopInputEOF
		default:
			<-ctx.Done()
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopAfter)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		fmt.Fprintln(os.Stderr, "stop:", err)
		os.Exit(1)
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
