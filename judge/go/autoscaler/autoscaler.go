// Package autoscaler sizes the jury fleet from queue depth.
//
// Every tick samples the number of claimable jobs, keeps the last ten
// samples in a ring, and divides the moving average by the fleet size to
// get the load index: claimable jobs per jury. At or above 20 the fleet
// grows by floor(index/20), below 2 it shrinks by one, and the wide dead
// band between keeps the fleet from oscillating. The provider is re-read
// every tick so failed creates and destroys self-correct instead of
// drifting a local counter.
package autoscaler

import (
	"context"
	"time"

	"github.com/easyctf/openctf-judge/go/metrics2"
	"github.com/easyctf/openctf-judge/go/now"
	"github.com/easyctf/openctf-judge/go/ring"
	"github.com/easyctf/openctf-judge/go/skerr"
	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/easyctf/openctf-judge/judge/go/db"
)

const (
	// TickPeriod is how often the control loop runs.
	TickPeriod = 5 * time.Second

	// MaxJuries caps the fleet size.
	MaxJuries = 10

	// windowSize is the number of samples in the moving average. Ten
	// samples at the tick period gives about fifty seconds of smoothing.
	windowSize = 10

	// scaleUpIndex and scaleDownIndex bound the dead band. At or above the
	// upper threshold the fleet grows, below the lower one it shrinks.
	scaleUpIndex   = 20
	scaleDownIndex = 2
)

// Cloud provisions and destroys juries. Implementations own the naming and
// credential handoff for new juries.
type Cloud interface {
	// CurrentCount returns the number of juries the provider reports.
	CurrentCount(ctx context.Context) (int, error)

	// Create provisions n new juries.
	Create(ctx context.Context, n int) error

	// Destroy removes up to n juries, returning how many were destroyed,
	// which may be fewer than requested.
	Destroy(ctx context.Context, n int) (int, error)
}

// Autoscaler is the control loop state. Construct with New, call Bootstrap
// once, then Tick on every period.
type Autoscaler struct {
	db     db.DB
	cloud  Cloud
	window *ring.Int64Ring

	fleetSize metrics2.Int64Metric
	loadIndex metrics2.Float64Metric
	created   metrics2.Counter
	destroyed metrics2.Counter
	liveness  metrics2.Liveness
}

// New returns an Autoscaler sampling d and scaling cloud.
func New(d db.DB, cloud Cloud) (*Autoscaler, error) {
	window, err := ring.NewInt64Ring(windowSize)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return &Autoscaler{
		db:        d,
		cloud:     cloud,
		window:    window,
		fleetSize: metrics2.GetInt64Metric("judge_jury_fleet_size"),
		loadIndex: metrics2.GetFloat64Metric("judge_load_index"),
		created:   metrics2.GetCounter("judge_juries", map[string]string{"action": "created"}),
		destroyed: metrics2.GetCounter("judge_juries", map[string]string{"action": "destroyed"}),
		liveness:  metrics2.NewLiveness("judge_autoscaler_tick"),
	}, nil
}

// Bootstrap creates one jury if the provider reports none, so a cold fleet
// can serve the first claim without waiting for the window to fill.
func (a *Autoscaler) Bootstrap(ctx context.Context) error {
	count, err := a.cloud.CurrentCount(ctx)
	if err != nil {
		return skerr.Wrap(err)
	}
	if count > 0 {
		return nil
	}
	sklog.Info("Spinning up 1 jury because none previously existed.")
	if err := a.cloud.Create(ctx, 1); err != nil {
		return skerr.Wrap(err)
	}
	a.created.Inc(1)
	return nil
}

// Tick runs one control step: sample the queue depth, re-read the fleet
// size from the provider, and apply the scaling rule to the load index.
func (a *Autoscaler) Tick(ctx context.Context) error {
	enqueued, err := a.db.CountClaimable(ctx, now.Now(ctx))
	if err != nil {
		return skerr.Wrap(err)
	}
	a.window.Put(enqueued)

	count, err := a.cloud.CurrentCount(ctx)
	if err != nil {
		return skerr.Wrap(err)
	}
	a.fleetSize.Update(int64(count))
	if count == 0 {
		// The fleet floor is one jury. Restore it before dividing by the
		// fleet size.
		sklog.Warning("No juries exist; spinning up 1.")
		if err := a.cloud.Create(ctx, 1); err != nil {
			return skerr.Wrap(err)
		}
		a.created.Inc(1)
		a.liveness.Reset()
		return nil
	}

	index := a.index(count)
	a.loadIndex.Update(index)
	change := optimalChange(index)
	sklog.Infof("%d juries currently exist, load index is %.2f, optimal change is %d.", count, index, change)

	if change >= 1 {
		if count >= MaxJuries {
			sklog.Info("Maximum jury count reached.")
		} else {
			toCreate := change
			if toCreate > MaxJuries-count {
				toCreate = MaxJuries - count
			}
			sklog.Infof("Spinning up %d juries.", toCreate)
			if err := a.cloud.Create(ctx, toCreate); err != nil {
				return skerr.Wrap(err)
			}
			a.created.Inc(int64(toCreate))
		}
	} else if change <= -1 {
		if count <= 1 {
			sklog.Info("Not enough juries to destroy.")
		} else {
			toDestroy := -change
			if toDestroy > count-1 {
				toDestroy = count - 1
			}
			destroyed, err := a.cloud.Destroy(ctx, toDestroy)
			a.destroyed.Inc(int64(destroyed))
			if err != nil {
				return skerr.Wrap(err)
			}
			sklog.Infof("Destroyed %d juries.", destroyed)
		}
	}
	a.liveness.Reset()
	return nil
}

// index returns the load index: average claimable jobs per jury over the
// window.
func (a *Autoscaler) index(juryCount int) float64 {
	samples := a.window.GetAll()
	var sum int64
	for _, s := range samples {
		sum += s
	}
	avg := float64(sum) / float64(len(samples))
	return avg / float64(juryCount)
}

// optimalChange maps a load index to a fleet delta.
func optimalChange(index float64) int {
	if index >= scaleUpIndex {
		return int(index) / scaleUpIndex
	}
	if index < scaleDownIndex {
		return -1
	}
	return 0
}
