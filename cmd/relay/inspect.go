package main

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ShardRelay/internal/primitives"
	"ShardRelay/internal/relay"
)

func newInspectCmd(f *flags) *cobra.Command {
	var shard int64

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print session, pending candidates and shard heads",
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

			if !n.chain.Started() {
				return fmt.Errorf("no chain in %s", cfg.DataDir)
			}

			if shard >= 0 {
				return inspectShard(cmd.OutOrStdout(), n.chain, primitives.ShardID(shard))
			}

			return inspectChain(cmd.OutOrStdout(), n.chain)
		},
	}

	cmd.Flags().Int64Var(&shard, "shard", -1, "only show this shard")

	return cmd
}

func inspectChain(w io.Writer, c *relay.Chain) error {
	session, err := c.SessionIndex()
	if err != nil {
		return err
	}

	validators, err := c.Engine().Validators()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "round:      %d\n", c.Round())
	fmt.Fprintf(w, "parent:     %s\n", c.ParentHash())
	fmt.Fprintf(w, "session:    %d\n", session)
	fmt.Fprintf(w, "validators: %d\n", len(validators))
	fmt.Fprintf(w, "cores:      %d\n", c.Scheduler().NumCores())

	shards := append(c.Paras().Parachains(), c.Paras().Parathreads()...)
	for _, id := range shards {
		if err := inspectShard(w, c, id); err != nil {
			return err
		}
	}

	return nil
}

func inspectShard(w io.Writer, c *relay.Chain, id primitives.ShardID) error {
	reg, ok := c.Paras().Registration(id)
	if !ok {
		return fmt.Errorf("shard %d not registered", id)
	}

	head, _, err := c.Paras().Head(id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "shard %d (%s) head=%s\n", id, reg.Kind, shortHex(head))

	if up, ok := c.Paras().FutureUpgrade(id); ok {
		fmt.Fprintf(w, "  upgrade at round %d (%d bytes)\n", up.At, len(up.Code))
	}

	p, ok, err := c.Engine().PendingAvailability(id)
	if err != nil {
		return err
	}

	if ok {
		fmt.Fprintf(w, "  pending on core %d since round %d, votes %s\n", p.Core, p.BackedInNumber, p.AvailabilityVotes)
	}

	return nil
}

func shortHex(b []byte) string {
	if len(b) > 8 {
		return hex.EncodeToString(b[:8]) + "..."
	}

	return hex.EncodeToString(b)
}
