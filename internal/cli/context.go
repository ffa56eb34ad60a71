package cli

import (
	"sync"

	"github.com/sirupsen/logrus"

	"clipcut/internal/config"
	"clipcut/internal/logging"
	"clipcut/internal/state"
)

// appContext carries flag values and lazily constructed shared resources
// across commands.
type appContext struct {
	configPath string
	quiet      bool

	once sync.Once
	cfg  *config.Config
	log  *logrus.Logger
	err  error
}

func (a *appContext) load() (*config.Config, *logrus.Logger, error) {
	a.once.Do(func() {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			a.err = err
			return
		}
		a.cfg = cfg
		a.log = logging.New(logging.Options{
			Level:      cfg.Logging.Level,
			File:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Quiet:      a.quiet,
		})
	})
	return a.cfg, a.log, a.err
}

// withStore opens the state store for the duration of fn.
func (a *appContext) withStore(fn func(*config.Config, *logrus.Logger, *state.Store) error) error {
	cfg, log, err := a.load()
	if err != nil {
		return err
	}
	store, err := state.Open(cfg.Paths.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, log, store)
}
