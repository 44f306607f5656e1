package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/govbot/internal/codec"
	"github.com/roach88/govbot/internal/ir"
)

// DrainOptions holds flags for the drain command.
type DrainOptions struct {
	*RootOptions
	Delete bool
	User   uint64
	Raw    bool
}

// PendingNotify is one queued message in drain output.
type PendingNotify struct {
	Key    ir.Key     `json:"key"`
	Notify *ir.Notify `json:"notify"`
	Raw    string     `json:"raw,omitempty"`
}

// DrainResult lists pending notifies.
type DrainResult struct {
	Notifies []PendingNotify `json:"notifies"`
	Deleted  int             `json:"deleted"`
}

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DrainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "List (and optionally delete) pending notifies",
		Long: `List the Notify records waiting for a chat frontend to deliver.

With --raw, each record is also shown in CBOR diagnostic notation, as it
is stored.

With --delete, every listed record is removed after it is printed, the way
a frontend acknowledges delivery. The service must not be running on the
same store.

Examples:
  govbot drain
  govbot drain --user 42 --format json
  govbot drain --delete
  govbot drain --raw`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete notifies after listing them")
	cmd.Flags().Uint64Var(&opts.User, "user", 0, "only notifies for this user hash")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "show stored CBOR in diagnostic notation")

	return cmd
}

func runDrain(opts *DrainOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	_, st, err := opts.openStore(out)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	pending, err := st.Notifies(ctx)
	if err != nil {
		return out.Fail(ExitFailure, CodeStore, "failed to read notifies", err)
	}

	result := DrainResult{Notifies: []PendingNotify{}}
	for _, kn := range pending {
		if opts.User != 0 && kn.Notify.UserHash != opts.User {
			continue
		}
		p := PendingNotify{Key: kn.Key, Notify: kn.Notify}
		if opts.Raw {
			if p.Raw, err = diagnose(kn.Notify); err != nil {
				return out.Fail(ExitFailure, CodeStore, "failed to encode notify", err)
			}
		}
		result.Notifies = append(result.Notifies, p)
	}

	if opts.Delete {
		for _, p := range result.Notifies {
			if err := st.DeleteNotify(ctx, p.Key); err != nil {
				return out.Fail(ExitFailure, CodeStore, fmt.Sprintf("deleted %d of %d notifies", result.Deleted, len(result.Notifies)), err)
			}
			result.Deleted++
		}
	}

	if out.JSON() {
		return out.Success(result)
	}
	w := cmd.OutOrStdout()
	if len(result.Notifies) == 0 {
		fmt.Fprintln(w, "No pending notifies.")
		return nil
	}
	for _, p := range result.Notifies {
		n := p.Notify
		fmt.Fprintf(w, "user=%d ts=%d key=%s\n", n.UserHash, n.Timestamp, p.Key)
		if p.Raw != "" {
			fmt.Fprintf(w, "  cbor: %s\n", p.Raw)
		}
		for _, msg := range n.Message {
			fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(msg, "\n", "\n  "))
		}
		for _, row := range n.Buttons {
			for _, b := range row {
				fmt.Fprintf(w, "  [%s] %s\n", b.Label, b.Action)
			}
		}
	}
	if opts.Delete {
		fmt.Fprintf(w, "Deleted %d notifies\n", result.Deleted)
	}
	return nil
}

// diagnose renders v's stored encoding in CBOR diagnostic notation.
func diagnose(v ir.Value) (string, error) {
	data, err := ir.Encode(v)
	if err != nil {
		return "", err
	}
	return codec.Diagnose(data)
}
