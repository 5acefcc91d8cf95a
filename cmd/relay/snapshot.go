package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ShardRelay/internal/logger"
	"ShardRelay/internal/relay"
	"ShardRelay/internal/snapshot"
	"ShardRelay/internal/storage"
)

func newExportCmd(f *flags) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a compressed snapshot of the chain state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}

			n, err := openNode(cfg)
			if err != nil {
				return err
			}
			defer n.Close()

			data, err := snapshot.Create(n.db, uint64(n.chain.Round()), relay.StatePrefixes())
			if err != nil {
				return fmt.Errorf("create snapshot:\n%w", err)
			}

			compressed, err := snapshot.Compress(data)
			if err != nil {
				return err
			}

			if err := os.WriteFile(out, compressed, 0o644); err != nil {
				return fmt.Errorf("write %s:\n%w", out, err)
			}

			logger.Info("snapshot exported", "round", n.chain.Round(), "file", out, "size", len(compressed))

			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "snapshot.zst", "output file")

	return cmd
}

func newImportCmd(f *flags) *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the chain state with a snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}

			compressed, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read %s:\n%w", in, err)
			}

			data, err := snapshot.Decompress(compressed)
			if err != nil {
				return fmt.Errorf("decompress snapshot:\n%w", err)
			}

			db, err := storage.New(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("open storage %s:\n%w", cfg.DataDir, err)
			}
			defer db.Close()

			if _, err := snapshot.Apply(db, data, relay.StatePrefixes()); err != nil {
				return err
			}

			// reopening validates the restored state
			n, err := openChain(cfg, db)
			if err != nil {
				return err
			}

			logger.Info("snapshot imported", "round", n.chain.Round(), "parent", n.chain.ParentHash().Short())

			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "snapshot.zst", "snapshot file")

	return cmd
}
