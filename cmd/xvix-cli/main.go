package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xvix-labs/xvix-floor/internal/logging"
	"github.com/xvix-labs/xvix-floor/pkg/policy"
	"github.com/xvix-labs/xvix-floor/pkg/protocol"
	"github.com/xvix-labs/xvix-floor/pkg/scenario"
	"github.com/xvix-labs/xvix-floor/pkg/supply"
)

type options struct {
	policyPath string
	logLevel   string
	compact    bool

	logger *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "xvix-cli",
		Short:         "Inspect and simulate an XVIX protocol instance",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			opts.logger, err = logging.New(opts.logLevel, false)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.policyPath, "policy", os.Getenv("XVIX_POLICY_PATH"), "Path to policy YAML file (empty uses defaults)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	root.PersistentFlags().BoolVar(&opts.compact, "compact", false, "Compact JSON output")

	root.AddCommand(newSimulateCmd(opts), newSnapshotCmd(opts), newPolicyCmd(opts))
	return root
}

// newSimulateCmd replays a scenario file on a mock clock.
func newSimulateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate [scenario.yaml]",
		Short: "Run a scenario and print the step report and final snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			r, err := scenario.NewRunner(sc, opts.logger)
			if err != nil {
				return err
			}
			rep, runErr := r.Run(sc)
			if err := encode(cmd.OutOrStdout(), rep, opts.compact); err != nil {
				return err
			}
			return runErr
		},
	}
}

func newSnapshotCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the genesis snapshot of a policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := loadPolicy(opts.policyPath)
			if err != nil {
				return err
			}
			pr, err := protocol.New(pol, clock.NewMock(), opts.logger)
			if err != nil {
				return err
			}
			snap, err := supply.NewComputer(pr).ComputeSnapshot()
			if err != nil {
				return fmt.Errorf("compute snapshot failed: %w", err)
			}
			return encode(cmd.OutOrStdout(), snap, opts.compact)
		},
	}
}

func newPolicyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the effective policy as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := loadPolicy(opts.policyPath)
			if err != nil {
				return err
			}
			b, err := pol.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	return policy.Load(path)
}

func encode(w io.Writer, v any, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}
	return nil
}
