package channels

import (
	"context"
	"sync"

	"github.com/menuflow/qbremote/pkg/bus"
	"github.com/menuflow/qbremote/pkg/config"
	"github.com/menuflow/qbremote/pkg/logger"
)

const defaultChannelQueueSize = 100

type channelWorker struct {
	ch    Channel
	queue chan bus.OutboundDirective
	done  chan struct{}
}

// Manager owns the enabled channel adapters, starts and stops them
// together, and routes outbound directives from the bus to the right
// adapter through per-channel worker queues.
type Manager struct {
	channels map[string]Channel
	workers  map[string]*channelWorker
	bus      *bus.MessageBus
	config   *config.Config
	cancel   context.CancelFunc
	mu       sync.RWMutex
}

func NewManager(cfg *config.Config, messageBus *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		workers:  make(map[string]*channelWorker),
		bus:      messageBus,
		config:   cfg,
	}
	m.initChannels()
	return m, nil
}

func (m *Manager) addChannel(ch Channel) {
	m.channels[ch.Name()] = ch
	m.workers[ch.Name()] = &channelWorker{
		ch:    ch,
		queue: make(chan bus.OutboundDirective, defaultChannelQueueSize),
		done:  make(chan struct{}),
	}
	logger.InfoCF("channels", "Channel enabled", map[string]any{
		"channel": ch.Name(),
	})
}

func (m *Manager) initChannels() {
	logger.InfoC("channels", "Initializing channel manager")

	if m.config.Channels.Telegram.Enabled && m.config.Channels.Telegram.Token != "" {
		ch, err := NewTelegramChannel(m.config.Channels.Telegram, m.bus)
		if err != nil {
			logger.ErrorCF("channels", "Failed to initialize channel", map[string]any{
				"channel": "telegram",
				"error":   err.Error(),
			})
		} else {
			m.addChannel(ch)
		}
	}

	if m.config.Channels.Discord.Enabled && m.config.Channels.Discord.Token != "" {
		ch, err := NewDiscordChannel(m.config.Channels.Discord, m.bus)
		if err != nil {
			logger.ErrorCF("channels", "Failed to initialize channel", map[string]any{
				"channel": "discord",
				"error":   err.Error(),
			})
		} else {
			m.addChannel(ch)
		}
	}

	logger.InfoCF("channels", "Channel initialization completed", map[string]any{
		"enabled_channels": len(m.channels),
	})
}

// Enabled lists the names of the initialized channels.
func (m *Manager) Enabled() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.channels) == 0 {
		logger.WarnC("channels", "No channels enabled")
		return nil
	}

	logger.InfoC("channels", "Starting all channels")

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for name, channel := range m.channels {
		if err := channel.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}

	for name, w := range m.workers {
		go m.runWorker(dispatchCtx, name, w)
	}
	go m.dispatchOutbound(dispatchCtx)

	logger.InfoC("channels", "All channels started")
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.InfoC("channels", "Stopping all channels")

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	for _, w := range m.workers {
		close(w.queue)
	}
	for _, w := range m.workers {
		<-w.done
	}

	for name, channel := range m.channels {
		if err := channel.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}

	logger.InfoC("channels", "All channels stopped")
	return nil
}

// runWorker delivers directives for a single channel in order.
func (m *Manager) runWorker(ctx context.Context, name string, w *channelWorker) {
	defer close(w.done)
	for {
		select {
		case d, ok := <-w.queue:
			if !ok {
				return
			}
			if err := w.ch.Deliver(ctx, d); err != nil {
				logger.ErrorCF("channels", "Error delivering directive", map[string]any{
					"channel": name,
					"kind":    string(d.Kind),
					"error":   err.Error(),
				})
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	logger.InfoC("channels", "Outbound dispatcher started")

	for {
		select {
		case <-ctx.Done():
			logger.InfoC("channels", "Outbound dispatcher stopped")
			return
		default:
			d, ok := m.bus.SubscribeOutbound(ctx)
			if !ok {
				continue
			}

			m.mu.RLock()
			w, exists := m.workers[d.Channel]
			m.mu.RUnlock()

			if !exists {
				logger.WarnCF("channels", "Unknown channel for outbound directive", map[string]any{
					"channel": d.Channel,
				})
				continue
			}

			select {
			case w.queue <- d:
			case <-ctx.Done():
				return
			}
		}
	}
}
