// Command webserv runs a single-threaded, event-driven HTTP/1.1 origin
// server configured by an nginx-style configuration file.
//
// Usage:
//
//	webserv <config-file.conf>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"

	"github.com/webserv/webserv/config"
	"github.com/webserv/webserv/internal/connmgr"
	"github.com/webserv/webserv/internal/weblog"
)

// exit codes per spec.md §6 "CLI": 0 graceful, 1 argument/config/bind error.
const (
	exitOK    = 0
	exitError = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config-file.conf>\n", os.Args[0])
		return exitError
	}
	configFile := os.Args[1]
	if !strings.HasSuffix(configFile, ".conf") {
		fmt.Fprintf(os.Stderr, "webserv: config file must end in .conf: %s\n", configFile)
		return exitError
	}

	logger, err := weblog.New(weblog.Production)
	if err != nil {
		fmt.Fprintf(os.Stderr, "webserv: could not set up logger: %v\n", err)
		return exitError
	}
	defer logger.Sync()

	undo, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof))
	defer undo()
	if err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	_, err = memlimit.SetGoMemLimitWithOpts(
		memlimit.WithLogger(slog.New(zapslog.NewHandler(logger.Core()))),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	)
	if err != nil {
		logger.Warn("failed to set memory limit", zap.Error(err))
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Error("loading configuration", zap.Error(err))
		return exitError
	}

	loop, err := connmgr.New(cfg, logger)
	if err != nil {
		logger.Error("starting listeners", zap.Error(err))
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	signal.Ignore(syscall.SIGPIPE)

	logger.Info("webserv starting", zap.String("config", configFile), zap.Int("servers", len(cfg.Servers)))

	if err := loop.Run(ctx); err != nil {
		logger.Error("event loop exited with error", zap.Error(err))
		return exitError
	}

	logger.Info("webserv shut down")
	return exitOK
}
