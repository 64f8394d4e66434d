// Package worker holds the engine's background processes: the promotion
// sweeper and the payment signal consumer.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alexxgorcea9/primepass/internal/allocation"
	"github.com/alexxgorcea9/primepass/internal/repository"
	"github.com/alexxgorcea9/primepass/pkg/logger"
)

// PromotionSweeperConfig contains configuration for the promotion sweeper
type PromotionSweeperConfig struct {
	// SweepInterval is the interval between sweeps over the waitlisted pools
	SweepInterval time.Duration
}

// DefaultPromotionSweeperConfig returns default configuration
func DefaultPromotionSweeperConfig() *PromotionSweeperConfig {
	return &PromotionSweeperConfig{
		SweepInterval: 30 * time.Second,
	}
}

// PromotionSweeper periodically drains waitlists into free capacity. It backs
// up the promotion that runs inline on cancel: capacity freed while a
// promotion failed, or raised out of band, is picked up here.
type PromotionSweeper struct {
	coordinator *allocation.Coordinator
	regs        repository.RegistrationRepository
	config      *PromotionSweeperConfig
	log         *logger.Logger
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool

	totalPromoted int64
	lastSweepTime time.Time
}

// NewPromotionSweeper creates a new promotion sweeper
func NewPromotionSweeper(
	coordinator *allocation.Coordinator,
	regs repository.RegistrationRepository,
	config *PromotionSweeperConfig,
) *PromotionSweeper {
	if config == nil {
		config = DefaultPromotionSweeperConfig()
	}
	return &PromotionSweeper{
		coordinator: coordinator,
		regs:        regs,
		config:      config,
		log:         logger.Get(),
		stopCh:      make(chan struct{}),
	}
}

// Start starts the promotion sweeper
func (w *PromotionSweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("promotion sweeper already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting promotion sweeper")

	w.wg.Add(1)
	go w.run(ctx)

	return nil
}

// Stop stops the promotion sweeper
func (w *PromotionSweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping promotion sweeper")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Promotion sweeper stopped")
}

func (w *PromotionSweeper) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep promotes from every pool that currently has a waitlist. It returns
// the number of promotions made.
func (w *PromotionSweeper) Sweep(ctx context.Context) int {
	w.mu.Lock()
	w.lastSweepTime = time.Now()
	w.mu.Unlock()

	keys, err := w.regs.WaitlistedKeys(ctx)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to list waitlisted pools: %v", err))
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	promoted := 0
	for _, key := range keys {
		n, err := w.coordinator.PromoteAll(ctx, key)
		promoted += n
		if err != nil {
			w.log.Error(fmt.Sprintf("Failed to promote pool (tier: %s, wave: %s): %v",
				key.TierID, key.WaveID, err))
		}
	}

	if promoted > 0 {
		w.log.Info(fmt.Sprintf("Promoted %d waitlisted registrations across %d pools",
			promoted, len(keys)))
	}

	w.mu.Lock()
	w.totalPromoted += int64(promoted)
	w.mu.Unlock()

	return promoted
}

// GetStats returns sweeper statistics
func (w *PromotionSweeper) GetStats() *PromotionSweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &PromotionSweeperStats{
		IsRunning:     w.running,
		TotalPromoted: w.totalPromoted,
		LastSweepTime: w.lastSweepTime,
	}
}

// PromotionSweeperStats contains sweeper statistics
type PromotionSweeperStats struct {
	IsRunning     bool      `json:"is_running"`
	TotalPromoted int64     `json:"total_promoted"`
	LastSweepTime time.Time `json:"last_sweep_time"`
}
