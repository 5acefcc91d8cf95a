package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"ShardRelay/internal/api"
	"ShardRelay/internal/config"
	"ShardRelay/internal/logger"
)

func newRunCmd(f *flags) *cobra.Command {
	var (
		rounds   int
		httpAddr string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a devnet relay chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("rounds") {
				cfg.Rounds = rounds
			}

			if cmd.Flags().Changed("http") {
				cfg.HTTPAddress = httpAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runNode(ctx, cfg, interval)
		},
	}

	cmd.Flags().IntVar(&rounds, "rounds", 0, "number of rounds to run, 0 runs until interrupted")
	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP API address, empty disables")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between rounds")

	return cmd
}

// runNode starts the chain from genesis if needed, serves the API and drives rounds.
func runNode(ctx context.Context, cfg config.NodeConfig, interval time.Duration) error {
	n, err := openNode(cfg)
	if err != nil {
		return err
	}
	defer n.Close()

	if !n.chain.Started() {
		if err := n.chain.Genesis(cfg.Shards); err != nil {
			return fmt.Errorf("genesis:\n%w", err)
		}
	}

	logger.Info("starting relay node",
		"network", cfg.Network,
		"data", cfg.DataDir,
		"http", cfg.HTTPAddress,
		"validators", cfg.Validators,
		"shards", len(cfg.Shards),
		"round", n.chain.Round(),
	)

	if cfg.HTTPAddress != "" {
		n.registry.MustRegister(collectors.NewGoCollector())

		server := api.New(cfg.HTTPAddress, n.chain, n.chain.Engine(), n.chain.Paras(), n.registry)
		if err := server.Start(); err != nil {
			return fmt.Errorf("start api:\n%w", err)
		}
		defer server.Stop()
	}

	ticker := time.NewTicker(max(interval, time.Millisecond))
	defer ticker.Stop()

	for done := 0; cfg.Rounds == 0 || done < cfg.Rounds; done++ {
		res, err := n.chain.ExecuteRound(n.net)
		if err != nil {
			return err
		}

		logger.Info("round",
			"round", res.Round,
			"hash", res.Hash.Short(),
			"included", len(res.Available),
			"backed", len(res.Occupied),
			"timed_out", len(res.TimedOut),
			"upgraded", len(res.Upgraded),
		)

		select {
		case <-ctx.Done():
			logger.Info("shutting down", "round", n.chain.Round())
			return nil
		case <-ticker.C:
		}
	}

	return nil
}
