package bootstrap

import (
	"github.com/artpar/crmgate/config"
	"github.com/rs/zerolog"
)

// NewWithHotReload creates the application from a config file and watches it
// for changes. Server address and database changes need a restart; the log
// level is picked up live.
func NewWithHotReload(path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	a, err := New(cfg)
	if err != nil {
		return nil, err
	}

	holder, err := config.NewHolder(path, a.Logger)
	if err != nil {
		return nil, err
	}

	holder.OnChange(func(cfg *config.Config) {
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && cfg.Logging.Level != "" {
			zerolog.SetGlobalLevel(level)
			a.Logger.Info().Str("level", cfg.Logging.Level).Msg("log level updated")
		}
	})

	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable, SIGHUP reload only")
	}
	holder.WatchSignals()

	a.holder = holder
	return a, nil
}
