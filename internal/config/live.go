package config

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/joestump/slackbridge/internal/dispatch"
)

// Live holds the current configuration snapshot. Request goroutines read the
// snapshot and never call into viper, which is not safe for concurrent use
// while the config file watcher reloads it.
type Live struct {
	cur atomic.Pointer[Config]

	mu       sync.Mutex
	onChange []func(Config)
}

// NewLive returns a Live serving cfg until the next Reload.
func NewLive(cfg Config) *Live {
	l := &Live{}
	l.cur.Store(&cfg)
	return l
}

// Config returns the current snapshot.
func (l *Live) Config() Config {
	return *l.cur.Load()
}

// Settings returns the per-request view of the current snapshot.
func (l *Live) Settings() dispatch.Settings {
	return l.cur.Load().Settings()
}

// OnChange registers fn to run with the new snapshot after every Reload.
func (l *Live) OnChange(fn func(Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Reload re-reads viper into a new snapshot. It must run on the goroutine that
// owns viper: startup, or the config watcher callback.
func (l *Live) Reload() Config {
	cfg := Load()
	l.cur.Store(&cfg)

	l.mu.Lock()
	hooks := append([]func(Config){}, l.onChange...)
	l.mu.Unlock()
	for _, fn := range hooks {
		fn(cfg)
	}
	return cfg
}

// Watch reloads l whenever viper's config file changes. It is a no-op when no
// config file is in use.
func (l *Live) Watch() {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("config: %s changed (%s), reloading", e.Name, e.Op)
		l.Reload()
	})
	viper.WatchConfig()
}
