package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/service"
)

// Query kinds accepted by --kind.
const (
	queryKindEntries       = "entries"
	queryKindSubscriptions = "subscriptions"
	queryKindRegister      = "register"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Kind        string
	User        uint64
	Subscribe   bool
	Unsubscribe bool
	Register    bool
	Display     string
	Indices     []string
	Filter      map[string]string
	OrderBy     string
	Limit       int
	Fields      []string
	Socket      string
	Timeout     time.Duration
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <message>",
		Short: "Send a user query to the query socket",
		Long: `Send a user query to a running govbot and print the rows it answers.

The message is the command text a user typed. The answer is also rendered
and dispatched to the user's notify queue by the service.

Examples:
  govbot query /latest --user 42 --order-by timestamp --limit 5
  govbot query /gov_proposals --user 42 --subscribe --index origin_osmosis_proposals
  govbot query /subscriptions --kind subscriptions --user 42
  govbot query /register --kind register --user 42 --register
  govbot query /latest --user 42 --fields origin,custom_data.data.title --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", queryKindEntries, "query kind (entries|subscriptions|register)")
	cmd.Flags().Uint64Var(&opts.User, "user", 0, "requesting user hash (0 for none)")
	cmd.Flags().BoolVar(&opts.Subscribe, "subscribe", false, "subscribe the user to the query")
	cmd.Flags().BoolVar(&opts.Unsubscribe, "unsubscribe", false, "unsubscribe the user from the query")
	cmd.Flags().BoolVar(&opts.Register, "register", false, "issue a login token")
	cmd.Flags().StringVar(&opts.Display, "display", "", "where field appended to rendered lines")
	cmd.Flags().StringSliceVar(&opts.Indices, "index", nil, "indices to search (default all entries)")
	cmd.Flags().StringToStringVar(&opts.Filter, "filter", nil, "where predicates (field=value, value \"any\" matches all)")
	cmd.Flags().StringVar(&opts.OrderBy, "order-by", "", "order_by field to rank by, descending")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entries (0 for all)")
	cmd.Flags().StringSliceVar(&opts.Fields, "fields", nil, "fields to keep in each row")
	cmd.Flags().StringVar(&opts.Socket, "socket", "", "query socket path (default from config)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	return cmd
}

// userQuery builds the request from the flags.
func (o *QueryOptions) userQuery(message string) (ir.UserQuery, error) {
	var part ir.QueryPart
	switch o.Kind {
	case queryKindEntries:
		part = ir.EntriesQueryPart{
			Message: message,
			Display: o.Display,
			Indices: o.Indices,
			Filter:  o.Filter,
			OrderBy: o.OrderBy,
			Limit:   o.Limit,
		}
	case queryKindSubscriptions:
		part = ir.SubscriptionsQueryPart{Message: message}
	case queryKindRegister:
		part = ir.RegisterQueryPart{Message: message}
	default:
		return ir.UserQuery{}, fmt.Errorf("invalid kind %q: must be one of entries, subscriptions, register", o.Kind)
	}
	if o.Limit < 0 {
		return ir.UserQuery{}, fmt.Errorf("limit must be non-negative, got %d", o.Limit)
	}

	settings := ir.Settings{
		Subscribe:   o.Subscribe,
		Unsubscribe: o.Unsubscribe,
		Register:    o.Register,
	}
	if o.User != 0 {
		user := o.User
		settings.UserHash = &user
	}
	return ir.UserQuery{Part: part, Settings: settings, Fields: o.Fields}, nil
}

func runQuery(opts *QueryOptions, message string, cmd *cobra.Command) error {
	q, err := opts.userQuery(message)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	socket := opts.Socket
	if socket == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		socket = cfg.Sockets.Query
	}

	out := opts.formatter(cmd)
	out.VerboseLog("querying %s", socket)

	ctx := cmd.Context()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	rows, err := service.Query(ctx, socket, q)
	if err != nil {
		return out.Fail(ExitCommandError, CodeSocket, "query failed", err)
	}

	if out.JSON() {
		return out.Success(rows)
	}
	w := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(w, "No results.")
		return nil
	}
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(line))
	}
	return nil
}
