package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/govbot/internal/index"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GOVBOT_"

type override struct {
	name  string
	apply func(d *document, v string) error
}

// overrides lists the supported variables. Lists take comma-separated
// values; sorted indices are name=field pairs.
var overrides = []override{
	{"STORAGE_BACKEND", func(d *document, v string) error { d.Storage.Backend = v; return nil }},
	{"STORAGE_PATH", func(d *document, v string) error { d.Storage.Path = v; return nil }},
	{"CACHE_SIZE", func(d *document, v string) error { return parseInt(v, &d.Storage.CacheSize) }},
	{"QUERY_SOCKET", func(d *document, v string) error { d.Sockets.Query = v; return nil }},
	{"NOTIFICATION_SOCKET", func(d *document, v string) error { d.Sockets.Notification = v; return nil }},
	{"READ_TIMEOUT", func(d *document, v string) error { d.Sockets.ReadTimeout = v; return nil }},
	{"WRITE_TIMEOUT", func(d *document, v string) error { d.Sockets.WriteTimeout = v; return nil }},
	{"MAX_REQUEST_SIZE", func(d *document, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		d.Sockets.MaxRequestSize = n
		return nil
	}},
	{"INDEX_MEMBERSHIP", func(d *document, v string) error { d.Index.Membership = splitList(v); return nil }},
	{"INDEX_SORTED", func(d *document, v string) error { return parseSorted(v, d) }},
	{"REFRESH_INTERVAL", func(d *document, v string) error { d.RefreshInterval = v; return nil }},
	{"COMPACTION_INTERVAL", func(d *document, v string) error { d.CompactionInterval = v; return nil }},
	{"LOGIN_URL", func(d *document, v string) error { d.LoginURL = v; return nil }},
	{"METRICS_ADDR", func(d *document, v string) error { d.MetricsAddr = v; return nil }},
	{"LOG_LEVEL", func(d *document, v string) error { d.LogLevel = strings.ToLower(v); return nil }},
}

// EnvNames returns the full names of the supported variables.
func EnvNames() []string {
	names := make([]string, len(overrides))
	for i, o := range overrides {
		names[i] = EnvPrefix + o.name
	}
	return names
}

func applyEnv(d *document, getenv func(string) string) error {
	for _, o := range overrides {
		v := strings.TrimSpace(getenv(EnvPrefix + o.name))
		if v == "" {
			continue
		}
		if err := o.apply(d, v); err != nil {
			return &LoadError{Code: ErrCodeEnv, Message: fmt.Sprintf("%s%s: %v", EnvPrefix, o.name, err)}
		}
	}
	return nil
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	out := []string{}
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseSorted(v string, d *document) error {
	items := splitList(v)
	d.Index.Sorted = make([]index.SortedSpec, 0, len(items))
	for _, item := range items {
		name, field, ok := strings.Cut(item, "=")
		if !ok {
			return fmt.Errorf("%q: want name=field", item)
		}
		d.Index.Sorted = append(d.Index.Sorted, index.SortedSpec{Name: strings.TrimSpace(name), Field: strings.TrimSpace(field)})
	}
	return nil
}
