package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// withRuntime runs fn against a bootstrapped runtime and closes it afterwards
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	cfg, err := configFromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := rt.protocol.Bootstrap(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap protocol: %w", err)
	}
	return fn(ctx, rt)
}

func tickCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run a single epoch tick",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				result, err := rt.protocol.TickEpoch(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Epoch %d: %s -> %s\n", result.EpochNumber, result.PreviousPhase, result.Phase)
				fmt.Fprintf(out, "Shared pool: %s, quorum stake: %s / %s\n",
					result.SharedPool.Dec(), result.QuorumStake.Dec(), result.Threshold.Dec())
				if result.Advanced() {
					fmt.Fprintf(out, "Distributed %s to %d recipients, next epoch %d\n",
						result.Distribution.TotalDistributed.Dec(), result.Distribution.Recipients, result.NextEpoch)
				}
				return nil
			})
		},
	}
}

func verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <wager-id>",
		Short: "Recompute a settled wager and print the proof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wagerID, err := parseWagerID(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				verification, err := rt.protocol.VerifyWager(ctx, wagerID)
				if err != nil {
					return err
				}
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(verification)
			})
		},
	}
}

func cleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired wager commitments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				deleted, err := rt.protocol.CleanupCommitments(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired commitments\n", deleted)
				return nil
			})
		},
	}
}

func parseWagerID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("wager id must be a positive integer, got %q", arg)
	}
	return id, nil
}
