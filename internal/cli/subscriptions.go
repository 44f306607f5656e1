package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/store"
)

// SubscriptionsOptions holds flags for the subscriptions command.
type SubscriptionsOptions struct {
	*RootOptions
	User uint64
}

// SubscriptionInfo summarizes one stored subscription.
type SubscriptionInfo struct {
	Key     ir.Key   `json:"key"`
	Command string   `json:"command"`
	Users   []uint64 `json:"users"`
	Results int      `json:"results"`
}

// NewSubscriptionsCommand creates the subscriptions command group.
func NewSubscriptionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubscriptionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Inspect and remove stored subscriptions",
		Long: `Inspect and remove stored subscriptions.

The service must not be running on the same store.

Examples:
  govbot subscriptions list
  govbot subscriptions list --user 42 --format json
  govbot subscriptions remove 737562736372697074696f6e...`,
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List subscriptions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscriptionsList(opts, cmd)
		},
	}
	list.Flags().Uint64Var(&opts.User, "user", 0, "only subscriptions of this user hash")

	remove := &cobra.Command{
		Use:           "remove <key>",
		Short:         "Delete a subscription by its hex key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscriptionsRemove(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(list, remove)
	return cmd
}

func runSubscriptionsList(opts *SubscriptionsOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	_, st, err := opts.openStore(out)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	var subs []*ir.Subscription
	if opts.User != 0 {
		subs, err = st.SubscriptionsForUser(ctx, opts.User)
	} else {
		subs, err = st.Subscriptions(ctx)
	}
	if err != nil {
		return out.Fail(ExitFailure, CodeStore, "failed to read subscriptions", err)
	}

	infos := make([]SubscriptionInfo, 0, len(subs))
	for _, s := range subs {
		key, err := s.Key()
		if err != nil {
			return out.Fail(ExitFailure, CodeStore, "failed to key subscription", err)
		}
		infos = append(infos, SubscriptionInfo{
			Key:     key,
			Command: s.Query.Command(),
			Users:   s.Users,
			Results: len(s.Results),
		})
	}

	if out.JSON() {
		return out.Success(infos)
	}
	w := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(w, "No subscriptions.")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(w, "/%s  users=%v results=%d\n  %s\n", info.Command, info.Users, info.Results, info.Key)
	}
	return nil
}

func runSubscriptionsRemove(opts *SubscriptionsOptions, hexKey string, cmd *cobra.Command) error {
	var key ir.Key
	if err := key.UnmarshalText([]byte(hexKey)); err != nil {
		return WrapExitError(ExitCommandError, "invalid key", err)
	}
	if !key.HasPrefix(ir.PrefixSubscription) {
		return NewExitError(ExitCommandError, fmt.Sprintf("key %s is not a subscription key", hexKey))
	}

	out := opts.formatter(cmd)
	_, st, err := opts.openStore(out)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	sub, err := st.GetSubscription(ctx, key)
	if store.IsNotFound(err) {
		return out.Fail(ExitFailure, CodeStore, fmt.Sprintf("no subscription %s", hexKey), nil)
	}
	if err != nil {
		return out.Fail(ExitFailure, CodeStore, "failed to read subscription", err)
	}
	if err := st.DeleteSubscription(ctx, key); err != nil {
		return out.Fail(ExitFailure, CodeStore, "failed to delete subscription", err)
	}

	if out.JSON() {
		return out.Success(map[string]any{"removed": key, "command": sub.Query.Command()})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed /%s (%d users)\n", sub.Query.Command(), len(sub.Users))
	return nil
}
