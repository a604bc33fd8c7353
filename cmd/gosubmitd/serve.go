package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goSubmit "github.com/MrEthical07/goSubmit"
	"github.com/MrEthical07/goSubmit/metrics/export/prometheus"
	"github.com/MrEthical07/goSubmit/smtpd"
	"github.com/MrEthical07/goSubmit/submit"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	listener     smtpd.Config
	tlsCert      string
	tlsKey       string
	metricsAddr  string
	submitURL    string
	idleTimeout  time.Duration
	maxRcpts     int
	requireAuth  bool
	ipThrottle   bool
	shutdownWait time.Duration
}

func serveCmd(opts *globalOptions) *cobra.Command {
	so := &serveOptions{listener: smtpd.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SMTP submission listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, so)
		},
	}

	f := cmd.Flags()
	f.StringVar(&so.listener.Addr, "addr", so.listener.Addr, "SMTP listen address")
	f.StringVar(&so.listener.Domain, "domain", so.listener.Domain, "domain announced in the greeting")
	f.BoolVar(&so.listener.AllowInsecureAuth, "insecure-auth", false, "offer AUTH without TLS")
	f.Int64Var(&so.listener.MaxMessageBytes, "max-message-bytes", so.listener.MaxMessageBytes, "largest accepted DATA payload")
	f.DurationVar(&so.listener.ReadTimeout, "read-timeout", so.listener.ReadTimeout, "per-command read timeout")
	f.StringVar(&so.tlsCert, "tls-cert", "", "PEM certificate for STARTTLS")
	f.StringVar(&so.tlsKey, "tls-key", "", "PEM private key for STARTTLS")
	f.StringVar(&so.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address; empty disables")
	f.StringVar(&so.submitURL, "submit-url", "", "delivery API endpoint; empty keeps messages in memory")
	f.DurationVar(&so.idleTimeout, "idle-timeout", goSubmit.DefaultConfig().Session.IdleTimeout, "reap sessions idle for longer than this")
	f.IntVar(&so.maxRcpts, "max-recipients", goSubmit.DefaultConfig().Session.MaxRecipients, "recipients per transaction")
	f.BoolVar(&so.requireAuth, "require-auth", true, "refuse MAIL before AUTH")
	f.BoolVar(&so.ipThrottle, "ip-throttle", false, "also count AUTH failures per remote IP")
	f.DurationVar(&so.shutdownWait, "shutdown-timeout", 10*time.Second, "grace period for open connections on exit")
	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, so *serveOptions) error {
	logger := opts.logger

	cfg := goSubmit.DefaultConfig()
	cfg.Redis.Prefix = opts.prefix
	cfg.Session.IdleTimeout = so.idleTimeout
	if cfg.Session.ReaperInterval > so.idleTimeout {
		cfg.Session.ReaperInterval = so.idleTimeout
	}
	cfg.Session.MaxRecipients = so.maxRcpts
	cfg.Auth.RequireAuth = so.requireAuth
	cfg.Security.EnableIPThrottle = so.ipThrottle
	cfg.Submission.MaxMessageBytes = so.listener.MaxMessageBytes
	cfg.Metrics.Enabled = so.metricsAddr != ""
	cfg.Metrics.EnableLatencyHistograms = so.metricsAddr != ""

	b := goSubmit.New().
		WithConfig(cfg).
		WithRedis(opts.client).
		WithLogger(logger)
	if so.submitURL != "" {
		b.WithSubmitter(submit.NewHTTPSubmitter(so.submitURL, nil, cfg.Submission.Timeout))
	}
	engine, err := b.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if so.tlsCert != "" || so.tlsKey != "" {
		cert, err := tls.LoadX509KeyPair(so.tlsCert, so.tlsKey)
		if err != nil {
			return fmt.Errorf("load tls keypair: %w", err)
		}
		so.listener.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	srv := smtpd.NewServer(engine, so.listener, logger)
	errc := make(chan error, 2)
	go func() { errc <- srv.ListenAndServe() }()

	var metricsSrv *http.Server
	if so.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prometheus.NewPrometheusExporter(engine).Handler())
		metricsSrv = &http.Server{
			Addr:              so.metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", so.metricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), so.shutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("smtp shutdown", "error", err.Error())
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}
