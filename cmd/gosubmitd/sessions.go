package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	goSubmit "github.com/MrEthical07/goSubmit"
	"github.com/MrEthical07/goSubmit/session"
	"github.com/spf13/cobra"
)

func sessionsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect live submission sessions",
	}
	cmd.AddCommand(sessionsStatsCmd(opts))
	return cmd
}

func sessionsStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the number of sessions in each state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			latency, err := session.NewRedisStore(opts.client, opts.prefix, 0).Ping(cmd.Context())
			if err != nil {
				return err
			}

			cfg := goSubmit.DefaultConfig()
			cfg.Redis.Prefix = opts.prefix
			cfg.Audit.Enabled = false

			engine, err := goSubmit.New().
				WithConfig(cfg).
				WithRedis(opts.client).
				WithLogger(opts.logger).
				Build()
			if err != nil {
				return err
			}
			defer engine.Close()

			st, err := engine.Stats(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATE\tSESSIONS")
			for _, state := range session.States() {
				fmt.Fprintf(w, "%s\t%d\n", state, st.ByState[state])
			}
			fmt.Fprintf(w, "total\t%d\n", st.Total)
			fmt.Fprintf(w, "redis latency\t%s\n", latency.Round(time.Microsecond))
			return w.Flush()
		},
	}
}
