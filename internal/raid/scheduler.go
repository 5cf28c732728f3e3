package raid

import (
	"context"
	"time"
)

// Scheduler drives the background maintenance loops: weakness rotation,
// idle healing, and expired-shield sweeping. Each loop runs on its own
// ticker inside a single goroutine; errors are logged and the loop keeps
// going.
type Scheduler struct {
	engine *Engine
	cfg    SchedulerConfig
}

func NewScheduler(engine *Engine) *Scheduler {
	return &Scheduler{engine: engine, cfg: engine.cfg.Scheduler}
}

// Run blocks until stop is closed.
func (s *Scheduler) Run(stop <-chan struct{}) {
	rotate := time.NewTicker(s.cfg.RotateInterval)
	defer rotate.Stop()
	heal := time.NewTicker(s.cfg.IdleHealEvery)
	defer heal.Stop()
	sweep := time.NewTicker(s.cfg.ShieldSweep)
	defer sweep.Stop()

	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		case <-rotate.C:
			if err := s.engine.rotateTick(ctx); err != nil {
				s.engine.log.WithError(err).Warn("rotation tick failed")
			}
		case <-heal.C:
			if err := s.engine.idleHealTick(ctx); err != nil {
				s.engine.log.WithError(err).Warn("idle heal tick failed")
			}
		case <-sweep.C:
			if err := s.engine.sweepShieldTick(ctx); err != nil {
				s.engine.log.WithError(err).Warn("shield sweep tick failed")
			}
		}
	}
}

// rotateTick advances the per-boss rotation counter once per base interval
// and rotates the weakness when the counter reaches the boss's configured
// minutes.
func (e *Engine) rotateTick(ctx context.Context) error {
	e.mu.Lock()
	b := e.store.LoadBoss()
	if !b.Alive() || !b.Rotate.Enabled {
		e.mu.Unlock()
		return nil
	}
	b.Rotate.Tick++
	rotated := false
	if b.Rotate.Tick >= b.Rotate.Minutes {
		b.Weakness = NextWeakness(b.Weakness)
		b.Rotate.Tick = 0
		b.LastRotate = e.now()
		rotated = true
	}
	if err := e.store.SaveBoss(b); err != nil {
		e.mu.Unlock()
		return err
	}
	name, next := b.Name, b.Weakness
	e.mu.Unlock()

	if rotated {
		e.announceRotation(ctx, name, next)
	}
	return nil
}

// idleHealTick regenerates a sliver of hp when nobody has attacked within
// the idle window. The boss never heals past max and a dead boss never
// heals at all.
func (e *Engine) idleHealTick(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.store.LoadBoss()
	if !b.Alive() || b.HP >= b.MaxHP {
		return nil
	}
	cutoff := e.now().Add(-e.cfg.Scheduler.IdleHealEvery)
	if b.LastActionAfter(cutoff) {
		return nil
	}
	heal := int(float64(b.MaxHP) * e.cfg.Scheduler.IdleHealPct)
	if heal < 1 {
		heal = 1
	}
	b.HP += heal
	if b.HP > b.MaxHP {
		b.HP = b.MaxHP
	}
	return e.store.SaveBoss(b)
}

// sweepShieldTick drops shields whose timer ran out between attacks, so
// the board doesn't show a stale shield when nobody is hitting the boss.
func (e *Engine) sweepShieldTick(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.store.LoadBoss()
	if b.Shield == nil {
		return nil
	}
	if ActiveShield(&b, e.now()) != nil {
		return nil
	}
	// ActiveShield already cleared the expired pointer in place.
	return e.store.SaveBoss(b)
}
