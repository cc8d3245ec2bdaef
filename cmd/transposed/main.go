// Command transposed runs the parallel in-place matrix transposition
// server.
//
// Usage: transposed [port]
//
// With no arguments the server binds to any free port; with one argument
// it binds to that TCP port on 127.0.0.1. Two or more arguments is a
// usage error.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/behrlich/transposed/internal/eventlog"
	"github.com/behrlich/transposed/internal/logging"
	"github.com/behrlich/transposed/internal/memoracle"
	"github.com/behrlich/transposed/internal/metrics"
	"github.com/behrlich/transposed/internal/server"
)

var verbose = flag.Bool("v", false, "enable debug logging")

func main() {
	flag.Parse()

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	logging.SetDefault(logging.NewLogger(&logging.Config{Level: level, Output: os.Stderr}))

	args := flag.Args()
	var port string
	switch len(args) {
	case 0:
		port = "0"
	case 1:
		port = args[0]
	default:
		fmt.Fprintln(os.Stderr, "usage: transposed [port]")
		os.Exit(1)
	}

	installStackDumpHandler()

	srv := server.New(memoracle.NewSysOracle(), metrics.NewMetrics(), eventlog.Default(), logging.Default())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(port) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-done:
		if err != nil {
			logging.Default().Errorf("server exited: %v", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		logging.Default().Infof("received %v, shutting down", sig)
		if err := srv.Close(); err != nil {
			logging.Default().Warnf("close listener: %v", err)
		}
		<-done
	}
}

// installStackDumpHandler dumps all goroutine stacks to stderr on
// SIGUSR1, for diagnosing a wedged transpose or stuck connection without
// killing the process.
func installStackDumpHandler() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	go func() {
		for range sigCh {
			fmt.Fprintln(os.Stderr, "--- SIGUSR1 stack dump ---")
			_ = pprof.Lookup("goroutine").WriteTo(os.Stderr, 1)
		}
	}()
}
