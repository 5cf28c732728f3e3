package raid

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Resolver rolls damage for a single hit. The rng is guarded so concurrent
// attackers can share one resolver; everything else is read-only config.
type Resolver struct {
	cfg DamageConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewResolver builds a resolver around the given rng. Tests pass a seeded
// source; production wiring passes a time-seeded one.
func NewResolver(cfg DamageConfig, rng *rand.Rand) *Resolver {
	return &Resolver{cfg: cfg, rng: rng}
}

func (r *Resolver) roll() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Compute rolls damage for an attack against the current boss state and
// returns the pre-shield damage plus the ordered effect labels that fired.
// All bonuses are multiplicative, so the order only affects the label list.
func (r *Resolver) Compute(b *BossState, attacker Faction, now time.Time) (int, []string) {
	mx := b.MaxHP
	if mx <= 0 {
		mx = b.HP
	}
	if mx <= 0 {
		mx = 1
	}

	base := float64(mx) * r.cfg.BasePct
	base *= r.cfg.JitterLow + r.roll()*(r.cfg.JitterHigh-r.cfg.JitterLow)

	var effects []string

	if r.cfg.CritChance > 0 && r.roll() < r.cfg.CritChance {
		base *= r.cfg.CritMultiplier
		effects = append(effects, "Critical!")
	}

	if attacker.Valid() && attacker == b.Weakness && r.cfg.WeaknessBonus > 0 {
		base *= 1.0 + r.cfg.WeaknessBonus
		effects = append(effects, fmt.Sprintf("Weakness +%d%%", int(r.cfg.WeaknessBonus*100)))
	}

	if b.BuffActive(BuffGuardBreak, now) {
		base *= 1.15
		effects = append(effects, "Guard Break +15%")
	}

	if b.BuffActive(BuffOverbloom, now) {
		base *= 1.10
		effects = append(effects, "Overbloom +10%")
	}

	if attacker == FactionThorned && r.cfg.RendBonus > 0 {
		base *= 1.0 + r.cfg.RendBonus
		effects = append(effects, fmt.Sprintf("Rend +%d%%", int(r.cfg.RendBonus*100)))
	}

	// Mistveil ambush fires only when the most recent logged hit was thorned
	// and still inside the combo window.
	if attacker == FactionMistveil {
		if last := b.LastAction(); last != nil && last.Faction == FactionThorned {
			if now.Sub(last.TS) <= r.cfg.AmbushWindow {
				base *= 1.0 + r.cfg.AmbushBonus
				effects = append(effects, fmt.Sprintf("Ambush +%d%% (after Thorned)", int(r.cfg.AmbushBonus*100)))
			}
		}
	}

	cap := int(float64(mx) * r.cfg.MaxHitPct)
	if cap < 1 {
		cap = 1
	}
	dmg := int(base)
	if dmg < r.cfg.MinHitAbs {
		dmg = r.cfg.MinHitAbs
	}
	// The per-hit cap wins over the floor so tiny bosses can't be one-shot.
	if dmg > cap {
		dmg = cap
	}
	return dmg, effects
}
