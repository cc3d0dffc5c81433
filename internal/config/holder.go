package config

import "sync"

// Holder provides concurrency-safe access to a Config that can be
// reloaded at runtime (e.g. on SIGHUP). A failed reload keeps the
// previous config.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	load func() (*Config, error)
}

// NewHolder wraps an already-loaded Config together with the loader
// that produced it, so reloads re-run the same pipeline.
func NewHolder(cfg *Config, load func() (*Config, error)) *Holder {
	return &Holder{cfg: cfg, load: load}
}

// Get returns the current Config. Callers must not mutate it.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Reload re-runs the load pipeline and swaps the config in atomically.
// On error the old config stays active.
func (h *Holder) Reload() error {
	cfg, err := h.load()
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return nil
}
