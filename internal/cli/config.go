package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/govbot/internal/config"
	"github.com/roach88/govbot/internal/index"
)

// ConfigOptions holds flags for the config command.
type ConfigOptions struct {
	*RootOptions
	Schema bool
	Env    bool
}

// ConfigView is the resolved configuration in the field names of the
// configuration file.
type ConfigView struct {
	Storage struct {
		Backend   string `json:"backend"`
		Path      string `json:"path"`
		CacheSize int    `json:"cache_size"`
	} `json:"storage"`
	Sockets struct {
		Query          string `json:"query"`
		Notification   string `json:"notification"`
		ReadTimeout    string `json:"read_timeout"`
		WriteTimeout   string `json:"write_timeout"`
		MaxRequestSize int64  `json:"max_request_size"`
	} `json:"sockets"`
	Index              index.Plan `json:"index"`
	RefreshInterval    string     `json:"refresh_interval"`
	CompactionInterval string     `json:"compaction_interval"`
	LoginURL           string     `json:"login_url"`
	MetricsAddr        string     `json:"metrics_addr"`
	LogLevel           string     `json:"log_level"`
}

func newConfigView(cfg *config.Config) ConfigView {
	var v ConfigView
	v.Storage.Backend = string(cfg.Storage.Backend)
	v.Storage.Path = cfg.Storage.Path
	v.Storage.CacheSize = cfg.Storage.CacheSize
	v.Sockets.Query = cfg.Sockets.Query
	v.Sockets.Notification = cfg.Sockets.Notification
	v.Sockets.ReadTimeout = cfg.Sockets.ReadTimeout.String()
	v.Sockets.WriteTimeout = cfg.Sockets.WriteTimeout.String()
	v.Sockets.MaxRequestSize = cfg.Sockets.MaxRequestSize
	v.Index = cfg.Index
	v.RefreshInterval = cfg.RefreshInterval.String()
	v.CompactionInterval = cfg.CompactionInterval.String()
	v.LoginURL = cfg.LoginURL
	v.MetricsAddr = cfg.MetricsAddr
	v.LogLevel = cfg.LogLevel
	return v
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Print the configuration govbot would run with: schema defaults,
unified with the --config file, overridden by GOVBOT_* variables.

Examples:
  govbot config
  govbot config --config ./govbot.cue --format json
  govbot config --schema
  govbot config --env`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Schema, "schema", false, "print the CUE schema instead")
	cmd.Flags().BoolVar(&opts.Env, "env", false, "list the supported environment variables instead")

	return cmd
}

func runConfig(opts *ConfigOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	w := cmd.OutOrStdout()

	switch {
	case opts.Schema:
		if out.JSON() {
			return out.Success(map[string]string{"schema": config.Schema()})
		}
		fmt.Fprint(w, config.Schema())
		return nil
	case opts.Env:
		if out.JSON() {
			return out.Success(config.EnvNames())
		}
		fmt.Fprintln(w, strings.Join(config.EnvNames(), "\n"))
		return nil
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		if out.JSON() {
			var details any
			var le *config.LoadError
			if errors.As(err, &le) {
				details = map[string]string{"config_code": le.Code}
			}
			if werr := out.Error(CodeConfig, err.Error(), details); werr != nil {
				return werr
			}
		}
		return err
	}

	view := newConfigView(cfg)
	if out.JSON() {
		return out.Success(view)
	}
	fmt.Fprintf(w, "storage.backend             %s\n", view.Storage.Backend)
	fmt.Fprintf(w, "storage.path                %s\n", view.Storage.Path)
	fmt.Fprintf(w, "storage.cache_size          %d\n", view.Storage.CacheSize)
	fmt.Fprintf(w, "sockets.query               %s\n", view.Sockets.Query)
	fmt.Fprintf(w, "sockets.notification        %s\n", view.Sockets.Notification)
	fmt.Fprintf(w, "sockets.read_timeout        %s\n", view.Sockets.ReadTimeout)
	fmt.Fprintf(w, "sockets.write_timeout       %s\n", view.Sockets.WriteTimeout)
	fmt.Fprintf(w, "sockets.max_request_size    %d\n", view.Sockets.MaxRequestSize)
	fmt.Fprintf(w, "index.membership            %s\n", strings.Join(view.Index.Membership, ","))
	for _, s := range view.Index.Sorted {
		fmt.Fprintf(w, "index.sorted                %s=%s\n", s.Name, s.Field)
	}
	fmt.Fprintf(w, "refresh_interval            %s\n", view.RefreshInterval)
	fmt.Fprintf(w, "compaction_interval         %s\n", view.CompactionInterval)
	fmt.Fprintf(w, "login_url                   %s\n", view.LoginURL)
	fmt.Fprintf(w, "metrics_addr                %s\n", view.MetricsAddr)
	fmt.Fprintf(w, "log_level                   %s\n", view.LogLevel)
	return nil
}
