package cli

import (
	"github.com/roach88/govbot/internal/config"
	"github.com/roach88/govbot/internal/store"
)

// openStore opens the configured store for an offline maintenance command.
// Pebble holds an exclusive lock, so the service must not be running on
// the same path.
func (o *RootOptions) openStore(out *OutputFormatter) (*config.Config, *store.Store, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.Storage.Backend, cfg.Storage.Path, store.WithCacheSize(cfg.Storage.CacheSize))
	if err != nil {
		return nil, nil, out.Fail(ExitCommandError, CodeStore, "failed to open store", err)
	}
	out.VerboseLog("opened %s store at %s", cfg.Storage.Backend, cfg.Storage.Path)
	return cfg, st, nil
}
