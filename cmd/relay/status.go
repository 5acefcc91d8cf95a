package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ShardRelay/client"
	"ShardRelay/internal/primitives"
)

func newStatusCmd() *cobra.Command {
	var (
		addr  string
		shard int64
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running node over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.New(addr)
			w := cmd.OutOrStdout()

			if shard >= 0 {
				id := primitives.ShardID(shard)

				s, err := c.Shard(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "shard %d (%s) head=%s code=%s\n", s.Shard, s.Kind, s.Head, abbrev(s.CodeHash))

				p, ok, err := c.Pending(id)
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintf(w, "  pending %s on core %d since round %d, votes %s\n", abbrev(p.CandidateHash), p.Core, p.BackedIn, p.VoteBits)
				}

				return nil
			}

			status, err := c.Status()
			if err != nil {
				return err
			}

			fmt.Fprintf(w, "round %d session %d validators %d pending %d parent %s\n",
				status.Round, status.Session, status.Validators, status.Pending, status.ParentHash)

			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "node HTTP address")
	cmd.Flags().Int64Var(&shard, "shard", -1, "show one shard")

	return cmd
}

func abbrev(h string) string {
	if len(h) > 16 {
		return h[:16]
	}

	return h
}
