package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/govbot/internal/harness"
	"github.com/roach88/govbot/internal/service"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Offline bool
	Socket  string
}

// SeedResult reports how the records of a fixture file were acknowledged.
type SeedResult struct {
	Sent    int `json:"sent"`
	OK      int `json:"ok"`
	Ignored int `json:"ignored"`
	Failed  int `json:"failed"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Load entries, registrations and users",
		Long: `Load a YAML fixture file holding entries, registrations and users.

By default each record is sent to the notification socket of a running
govbot, as a producer would, so stored entries trigger a subscription
refresh. With --offline the records are written straight to the
configured store; the service must not be running on the same store.

Fixture file:
  users:
    - { user_id: 99, username: alice }
  registrations:
    - { token: 5, user_hash: 8 }
  entries:
    - timestamp: 1700000000
      origin: osmosis_proposals
      imperative: notify
      custom_data:
        kind: proposal_data
        data: { ... }

Examples:
  govbot seed ./fixtures.yaml
  govbot seed ./fixtures.yaml --offline --config ./govbot.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "write to the store directly instead of the socket")
	cmd.Flags().StringVar(&opts.Socket, "socket", "", "notification socket path (default from config)")

	return cmd
}

func runSeed(opts *SeedOptions, path string, cmd *cobra.Command) error {
	fixtures, err := harness.LoadFixtures(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fixtures", err)
	}
	out := opts.formatter(cmd)

	if opts.Offline {
		_, st, err := opts.openStore(out)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := harness.Seed(cmd.Context(), st, fixtures)
		if err != nil {
			return out.Fail(ExitFailure, CodeStore, "seeding failed", err)
		}
		if out.JSON() {
			return out.Success(stats)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d entries, %d registrations, %d users\n",
			stats.Entries, stats.Registrations, stats.Users)
		return nil
	}

	socket := opts.Socket
	if socket == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		socket = cfg.Sockets.Notification
	}
	client := service.NewNotifyClient(socket)

	var result SeedResult
	for _, v := range fixtures.Values() {
		st, err := client.Send(cmd.Context(), v)
		if err != nil {
			return out.Fail(ExitCommandError, CodeSocket, fmt.Sprintf("sent %d of %d records", result.Sent, fixtures.Len()), err)
		}
		result.Sent++
		switch st {
		case service.StatusOK:
			result.OK++
		case service.StatusIgnored:
			result.Ignored++
		default:
			result.Failed++
		}
		out.VerboseLog("%s: %s", v.Kind(), st)
	}

	if result.Failed > 0 {
		msg := fmt.Sprintf("%d record(s) rejected", result.Failed)
		if out.JSON() {
			if err := out.Error(CodeRejected, msg, result); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %d records: %d ok, %d ignored, %d failed\n",
				result.Sent, result.OK, result.Ignored, result.Failed)
		}
		return NewExitError(ExitFailure, msg)
	}

	if out.JSON() {
		return out.Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %d records: %d ok, %d ignored, %d failed\n",
		result.Sent, result.OK, result.Ignored, result.Failed)
	return nil
}
