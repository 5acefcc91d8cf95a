package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ShardRelay/internal/relay"
	"ShardRelay/internal/snapshot"
	"ShardRelay/internal/storage"
)

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare DIR1 DIR2",
		Short: "Compare the chain state of two data directories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := storage.New(args[0])
			if err != nil {
				return fmt.Errorf("open %s:\n%w", args[0], err)
			}
			defer a.Close()

			b, err := storage.New(args[1])
			if err != nil {
				return fmt.Errorf("open %s:\n%w", args[1], err)
			}
			defer b.Close()

			d, err := snapshot.Compare(a, b, relay.StatePrefixes())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if d.Equal() {
				fmt.Fprintln(w, "states are identical")
				return nil
			}

			for _, k := range d.OnlyA {
				fmt.Fprintf(w, "only in %s: %q\n", args[0], k)
			}
			for _, k := range d.OnlyB {
				fmt.Fprintf(w, "only in %s: %q\n", args[1], k)
			}
			for _, k := range d.Different {
				fmt.Fprintf(w, "differs: %q\n", k)
			}

			return fmt.Errorf("states differ: %d keys", len(d.OnlyA)+len(d.OnlyB)+len(d.Different))
		},
	}
}
