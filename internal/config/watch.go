package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
)

// ApplyTuning reads the tuning section from v and publishes it to store.
//
// Postcondition: on error the store's tuning is unchanged.
func ApplyTuning(v *viper.Viper, store *catalog.Store) error {
	var t TuningConfig
	if err := v.UnmarshalKey("tuning", &t); err != nil {
		return fmt.Errorf("unmarshalling tuning: %w", err)
	}
	if err := store.SetTuning(t.Tuning()); err != nil {
		return fmt.Errorf("applying tuning: %w", err)
	}
	return nil
}

// Watch re-applies the tuning section every time the config file changes.
// Encounters pick up the new snapshot on their next tick. Invalid tuning is
// logged and the previous snapshot stays in effect.
//
// Precondition: v must have been created with a config file path and read.
func Watch(v *viper.Viper, store *catalog.Store, logger *zap.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if err := ApplyTuning(v, store); err != nil {
			logger.Warn("tuning reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("tuning reloaded",
			zap.String("file", e.Name),
			zap.Uint64("version", store.Tuning().Version),
		)
	})
	v.WatchConfig()
}
