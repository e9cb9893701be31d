package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/menuflow/qbremote/pkg/config"
	"github.com/menuflow/qbremote/pkg/logger"
)

// Registry holds the configured downloader instances and answers which
// of them are reachable right now.
type Registry struct {
	accessors map[string]Accessor
	order     []string
}

// NewRegistry builds accessors for every enabled downloader in the
// configuration. A downloader that fails to construct is skipped with a
// log line rather than aborting startup.
func NewRegistry(configs []config.DownloaderConfig) *Registry {
	r := &Registry{accessors: make(map[string]Accessor)}
	for _, dc := range configs {
		if !dc.Enabled {
			continue
		}
		acc, err := NewQBittorrent(dc.Name, dc.URL, dc.Username, dc.Password)
		if err != nil {
			logger.ErrorCF("downloader", "Skipping downloader", map[string]any{
				"name":  dc.Name,
				"error": err.Error(),
			})
			continue
		}
		r.accessors[dc.Name] = acc
		r.order = append(r.order, dc.Name)
	}
	return r
}

// Names lists all registered downloaders in configuration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// RunningNames pings every registered downloader and returns the names
// that answered, in configuration order. Pings run concurrently with a
// shared deadline so one dead instance cannot stall the menu.
func (r *Registry) RunningNames(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	alive := make(map[string]bool, len(r.accessors))

	var wg sync.WaitGroup
	for name, acc := range r.accessors {
		wg.Add(1)
		go func(name string, acc Accessor) {
			defer wg.Done()
			if err := acc.Ping(ctx); err != nil {
				logger.DebugCF("downloader", "Ping failed", map[string]any{
					"name":  name,
					"error": err.Error(),
				})
				return
			}
			mu.Lock()
			alive[name] = true
			mu.Unlock()
		}(name, acc)
	}
	wg.Wait()

	var names []string
	for _, name := range r.order {
		if alive[name] {
			names = append(names, name)
		}
	}
	return names
}

// Instance returns the accessor registered under name.
func (r *Registry) Instance(name string) (Accessor, error) {
	acc, ok := r.accessors[name]
	if !ok {
		return nil, fmt.Errorf("downloader %q is not configured", name)
	}
	return acc, nil
}

// Register adds or replaces an accessor. Used by tests and by features
// that manage their own instances.
func (r *Registry) Register(acc Accessor) {
	name := acc.Name()
	if _, ok := r.accessors[name]; !ok {
		r.order = append(r.order, name)
	}
	r.accessors[name] = acc
}
