package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	goSubmit "github.com/MrEthical07/goSubmit"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	redisAddr string
	prefix    string
	logLevel  string
	logJSON   bool

	client  redis.UniversalClient
	cleanup func()
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "gosubmitd",
		Short:         "Authenticated SMTP submission gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.open(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.close()
		},
	}

	root.PersistentFlags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, GOSUBMIT_REDIS_ADDR, REDIS_ADDR or an in-process miniredis is used")
	root.PersistentFlags().StringVar(&opts.prefix, "prefix", goSubmit.DefaultConfig().Redis.Prefix, "redis key prefix")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit JSON log lines")

	root.AddCommand(serveCmd(opts), keysCmd(opts), principalsCmd(opts), sessionsCmd(opts))
	return root
}

func (o *globalOptions) open(stderr io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", o.logLevel)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if o.logJSON {
		o.logger = slog.New(slog.NewJSONHandler(stderr, handlerOpts))
	} else {
		o.logger = slog.New(slog.NewTextHandler(stderr, handlerOpts))
	}

	addr := o.redisAddr
	if addr == "" {
		addr = os.Getenv("GOSUBMIT_REDIS_ADDR")
	}
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		o.logger.Warn("no redis address configured, using in-process miniredis; records are lost on exit", "addr", mr.Addr())
		addr = mr.Addr()
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		o.client = client
		o.cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		return nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	o.client = client
	o.cleanup = func() { _ = client.Close() }
	return nil
}

func (o *globalOptions) close() {
	if o.cleanup != nil {
		o.cleanup()
		o.cleanup = nil
	}
}
