package provider

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HealthPoller runs the registry's health-check loop in the background at
// a fixed interval, fanning a probe out to every adapter each tick and
// detecting healthy/unhealthy transitions.
type HealthPoller struct {
	registry *Registry
	logger   zerolog.Logger
	interval time.Duration

	mu             sync.RWMutex
	lastStatus     map[string]bool
	statusChangeCB func(provider string, healthy bool, status HealthStatus)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthPoller builds a poller over registry, clamping interval to a
// 5-second floor.
func NewHealthPoller(registry *Registry, logger zerolog.Logger, interval time.Duration) *HealthPoller {
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	return &HealthPoller{
		registry:   registry,
		logger:     logger.With().Str("component", "health_poller").Logger(),
		interval:   interval,
		lastStatus: make(map[string]bool),
		done:       make(chan struct{}),
	}
}

// OnStatusChange registers a callback fired whenever a provider's health
// flips between healthy and unhealthy.
func (hp *HealthPoller) OnStatusChange(cb func(provider string, healthy bool, status HealthStatus)) {
	hp.statusChangeCB = cb
}

// Start launches the polling loop in a new goroutine.
func (hp *HealthPoller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	hp.cancel = cancel
	hp.logger.Info().Dur("interval", hp.interval).Msg("starting provider health poller")
	go hp.loop(ctx)
}

// Stop cancels the loop and waits for the in-flight probe round to finish.
func (hp *HealthPoller) Stop() {
	if hp.cancel != nil {
		hp.cancel()
	}
	<-hp.done
	hp.logger.Info().Msg("health poller stopped")
}

func (hp *HealthPoller) loop(ctx context.Context) {
	defer close(hp.done)
	hp.poll(ctx)

	ticker := time.NewTicker(hp.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hp.poll(ctx)
		}
	}
}

func (hp *HealthPoller) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, hp.interval/2)
	defer cancel()

	results := hp.registry.HealthCheckAll(pollCtx)

	hp.mu.Lock()
	defer hp.mu.Unlock()
	healthy, unhealthy := 0, 0
	for name, status := range results {
		wasHealthy, known := hp.lastStatus[name]
		if known && wasHealthy != status.Healthy {
			transition := "recovered"
			if !status.Healthy {
				transition = "degraded"
			}
			hp.logger.Warn().
				Str("provider", name).
				Str("transition", transition).
				Str("message", status.Message).
				Int64("latency_ms", status.LatencyMs).
				Msg("provider status change")
			if hp.statusChangeCB != nil {
				hp.statusChangeCB(name, status.Healthy, status)
			}
		}
		hp.lastStatus[name] = status.Healthy
		if status.Healthy {
			healthy++
		} else {
			unhealthy++
		}
	}
	hp.logger.Debug().Int("healthy", healthy).Int("unhealthy", unhealthy).Msg("health poll complete")
}
