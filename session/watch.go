package session

import (
	"log/slog"

	"audiosession/config"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchConfig applies the music and effects enabled flags whenever the
// config file behind v changes.
func (s *Session) WatchConfig(v *viper.Viper) {
	if v.ConfigFileUsed() == "" {
		s.logger.Debug("No config file to watch")
		return
	}
	v.OnConfigChange(func(ev fsnotify.Event) {
		s.handleConfigChange(v, ev)
	})
	v.WatchConfig()
	s.logger.Info("Watching config file", slog.String("file", v.ConfigFileUsed()))
}

func (s *Session) handleConfigChange(v *viper.Viper, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	select {
	case <-s.ctx.Done():
		return
	default:
	}

	s.logger.Info("Config file changed", slog.String("file", ev.Name))

	if v.IsSet(config.KeyMusicEnabled) {
		if enabled := v.GetBool(config.KeyMusicEnabled); enabled != s.music.Enabled() {
			s.EnableMusic(enabled)
		}
	}
	if v.IsSet(config.KeyEffectsEnabled) {
		if enabled := v.GetBool(config.KeyEffectsEnabled); enabled != s.effects.Enabled() {
			s.EnableEffects(enabled)
		}
	}
}
