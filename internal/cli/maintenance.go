package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/govbot/internal/engine"
	"github.com/roach88/govbot/internal/store"
)

// NewCompactCommand creates the compact command.
func NewCompactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Remove dangling references from indices and subscriptions",
		Long: `Remove keys of deleted entries from every index and subscription
result cache, delete empty indices and collapse same-name duplicates.

The service compacts on its own interval; this runs one pass offline.

Examples:
  govbot compact
  govbot compact --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(rootOpts, cmd)
		},
	}
}

func runCompact(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	_, st, err := opts.openStore(out)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Compact(cmd.Context())
	if err != nil {
		return out.Fail(ExitFailure, CodeStore, "compaction failed", err)
	}
	if out.JSON() {
		return out.Success(compactReport(stats))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d dangling refs, %d empty indices, %d superseded indices, %d trimmed results\n",
		stats.DanglingRefs, stats.EmptyIndices, stats.SupersededIndices, stats.TrimmedResults)
	return nil
}

func compactReport(stats store.CompactStats) map[string]int {
	return map[string]int{
		"dangling_refs":      stats.DanglingRefs,
		"empty_indices":      stats.EmptyIndices,
		"superseded_indices": stats.SupersededIndices,
		"trimmed_results":    stats.TrimmedResults,
	}
}

// IndexInfo summarizes one stored index.
type IndexInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild every index from the stored entries",
		Long: `Rebuild the membership and sorted indices named by the configured
index plan and print the result.

Examples:
  govbot reindex
  GOVBOT_INDEX_MEMBERSHIP=origin govbot reindex --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(rootOpts, cmd)
		},
	}
}

func runReindex(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	cfg, st, err := opts.openStore(out)
	if err != nil {
		return err
	}
	defer st.Close()

	eng, err := engine.New(st, cfg.Index)
	if err != nil {
		return out.Fail(ExitCommandError, CodeConfig, "invalid index plan", err)
	}
	ctx := cmd.Context()
	if err := eng.Reindex(ctx); err != nil {
		return out.Fail(ExitFailure, CodeStore, "reindex failed", err)
	}
	indices, err := st.Indices(ctx)
	if err != nil {
		return out.Fail(ExitFailure, CodeStore, "failed to read indices", err)
	}

	infos := make([]IndexInfo, 0, len(indices))
	for _, ix := range indices {
		infos = append(infos, IndexInfo{Name: ix.Name, Members: len(ix.List)})
	}
	if out.JSON() {
		return out.Success(infos)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Rebuilt %d indices\n", len(infos))
	for _, info := range infos {
		fmt.Fprintf(w, "  %-32s %d\n", info.Name, info.Members)
	}
	return nil
}
