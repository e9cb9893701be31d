// Package capability describes per-channel UI constraints consumed by
// view renderers for pagination and button layout.
package capability

import "sync"

// Caps is the button capability of one channel.
type Caps struct {
	Buttons       bool
	ButtonsPerRow int
	ButtonRows    int
}

// Provider answers capability queries for a channel name.
type Provider interface {
	SupportsButtons(channel string) bool
	MaxButtonsPerRow(channel string) int
	MaxButtonRows(channel string) int
}

// StaticProvider maps channel names to fixed capabilities, with a
// text-only fallback for channels it has never heard of.
type StaticProvider struct {
	mu       sync.RWMutex
	caps     map[string]Caps
	fallback Caps
}

// Defaults returns a provider preloaded with the platforms qbremote
// ships adapters for. Unknown channels degrade to text-only.
func Defaults() *StaticProvider {
	return &StaticProvider{
		caps: map[string]Caps{
			"telegram": {Buttons: true, ButtonsPerRow: 8, ButtonRows: 10},
			"discord":  {Buttons: true, ButtonsPerRow: 5, ButtonRows: 5},
		},
		fallback: Caps{Buttons: false, ButtonsPerRow: 1, ButtonRows: 1},
	}
}

// Register sets or overrides the capabilities of a channel.
func (p *StaticProvider) Register(channel string, caps Caps) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.caps[channel] = caps
}

func (p *StaticProvider) lookup(channel string) Caps {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if c, ok := p.caps[channel]; ok {
		return c
	}
	return p.fallback
}

func (p *StaticProvider) SupportsButtons(channel string) bool {
	return p.lookup(channel).Buttons
}

func (p *StaticProvider) MaxButtonsPerRow(channel string) int {
	return p.lookup(channel).ButtonsPerRow
}

func (p *StaticProvider) MaxButtonRows(channel string) int {
	return p.lookup(channel).ButtonRows
}
