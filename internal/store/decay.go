package store

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/recall/internal/logging"
)

// DecaySweep lowers every unit's importance by rate * hours elapsed since
// the later of its last access and its last sweep, floored at the configured
// minimum. Sweeping twice with the same now changes nothing the second time.
// The whole sweep commits in one transaction under the write lock.
func (s *SQLiteStore) DecaySweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	now = now.UTC()
	rate := s.opts.Decay.RatePerHour
	floor := s.opts.Decay.Floor

	s.mu.Lock()
	defer s.mu.Unlock()

	res := &SweepResult{At: now, Scanned: len(s.order)}

	type change struct {
		idx        int
		importance float64
	}
	var changes []change

	for i, u := range s.order {
		ref := u.LastAccessedAt
		if u.DecayedAt != nil && u.DecayedAt.After(ref) {
			ref = *u.DecayedAt
		}
		elapsed := now.Sub(ref).Hours()
		if elapsed <= 0 {
			continue
		}
		imp := math.Max(floor, u.Importance-rate*elapsed)
		changes = append(changes, change{idx: i, importance: imp})
	}

	if len(changes) == 0 {
		s.metrics.RecordDecaySweep(0)
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stamp := formatTime(now)
	for _, c := range changes {
		u := s.order[c.idx]
		if _, err := tx.ExecContext(ctx,
			`UPDATE units SET importance = ?, decayed_at = ? WHERE id = ?`,
			c.importance, stamp, u.ID); err != nil {
			return nil, fmt.Errorf("decay %s: %w", u.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for _, c := range changes {
		u := s.order[c.idx]
		if c.importance != u.Importance {
			res.Decayed++
		}
		if c.importance == floor {
			res.Floored++
		}
		u.Importance = c.importance
		t := now
		u.DecayedAt = &t
	}

	s.metrics.RecordDecaySweep(res.Decayed)
	s.log.Info().Int("scanned", res.Scanned).Int("decayed", res.Decayed).Int("floored", res.Floored).Msg("decay sweep")

	return res, nil
}

// Sweeper is the part of a store the background decayer drives.
type Sweeper interface {
	DecaySweep(ctx context.Context, now time.Time) (*SweepResult, error)
}

// Decayer runs DecaySweep on a ticker, outside of any query path.
type Decayer struct {
	sweeper  Sweeper
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger

	mu    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	sweeps int64
	errors int64
}

// NewDecayer creates a decayer. now defaults to time.Now.
func NewDecayer(sweeper Sweeper, interval time.Duration, now func() time.Time, log zerolog.Logger) *Decayer {
	if now == nil {
		now = time.Now
	}
	return &Decayer{
		sweeper:  sweeper,
		interval: interval,
		now:      now,
		log:      logging.Component(log, "decayer"),
	}
}

// Start launches the background loop. It stops when ctx is cancelled or
// Stop is called.
func (d *Decayer) Start(parent context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		return fmt.Errorf("decayer already started")
	}
	if d.interval <= 0 {
		return fmt.Errorf("decayer interval must be positive, got %s", d.interval)
	}

	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				d.RunOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	d.log.Info().Dur("interval", d.interval).Msg("decay loop started")
	return nil
}

// RunOnce performs a single sweep at the current clock time.
func (d *Decayer) RunOnce(ctx context.Context) {
	_, err := d.sweeper.DecaySweep(ctx, d.now())

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sweeps++
	if err != nil {
		d.errors++
		d.log.Error().Err(err).Msg("decay sweep failed")
	}
}

// Stop stops the loop and waits for it to exit.
func (d *Decayer) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Stats returns how many sweeps ran and how many failed.
func (d *Decayer) Stats() (sweeps, failed int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sweeps, d.errors
}
