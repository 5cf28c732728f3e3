package raid

import (
	"fmt"
	"sync"
	"time"
)

const purchaseWindow = 24 * time.Hour

// Ledger manages the capped, time-regenerating attack resource. Entries are
// keyed per player and never contend with the boss lock; a striped mutex
// keeps each player's read-modify-write spans serial without a global
// bottleneck.
type Ledger struct {
	profiles ProfileStore
	cfg      EnergyConfig
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLedger(profiles ProfileStore, cfg EnergyConfig) *Ledger {
	return &Ledger{
		profiles: profiles,
		cfg:      cfg,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) playerLock(uid string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[uid]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[uid] = lk
	}
	return lk
}

// materializeLocked applies whole elapsed regen ticks to the profile. The
// anchor advances by exactly ticks*interval — never to wall-clock now — so a
// partial tick is never double-counted. At the cap the anchor re-anchors to
// now so regen windows start fresh once energy is spent.
func (l *Ledger) materializeLocked(p *PlayerProfile, now time.Time) {
	if p.Energy >= l.cfg.Max {
		p.Energy = l.cfg.Max
		p.EnergyAnchor = now
		return
	}
	if l.cfg.RegenMinutes <= 0 {
		return
	}
	if p.EnergyAnchor.IsZero() {
		p.EnergyAnchor = now
		return
	}
	elapsed := now.Sub(p.EnergyAnchor)
	if elapsed < 0 {
		p.EnergyAnchor = now
		return
	}
	interval := time.Duration(l.cfg.RegenMinutes) * time.Minute
	ticks := int(elapsed.Minutes()) / l.cfg.RegenMinutes
	if ticks <= 0 {
		return
	}
	p.Energy += ticks
	if p.Energy > l.cfg.Max {
		p.Energy = l.cfg.Max
	}
	p.EnergyAnchor = p.EnergyAnchor.Add(time.Duration(ticks) * interval)
}

// Materialize applies pending regen and returns the current value.
func (l *Ledger) Materialize(uid string) (int, error) {
	lk := l.playerLock(uid)
	lk.Lock()
	defer lk.Unlock()

	var cur int
	err := l.profiles.Mutate(uid, func(p *PlayerProfile) {
		l.materializeLocked(p, l.now())
		cur = p.Energy
	})
	return cur, err
}

// Spend materializes then deducts cost. On insufficient energy the profile
// is left untouched beyond the regen materialization.
func (l *Ledger) Spend(uid string, cost int) (ok bool, left int, err error) {
	lk := l.playerLock(uid)
	lk.Lock()
	defer lk.Unlock()

	err = l.profiles.Mutate(uid, func(p *PlayerProfile) {
		l.materializeLocked(p, l.now())
		if p.Energy < cost {
			left = p.Energy
			return
		}
		p.Energy -= cost
		ok = true
		left = p.Energy
	})
	if err != nil {
		return false, 0, err
	}
	return ok, left, nil
}

// Add grants energy up to the cap and returns the new total. Used by the
// compensating refund and by purchases.
func (l *Ledger) Add(uid string, amount int) (int, error) {
	lk := l.playerLock(uid)
	lk.Lock()
	defer lk.Unlock()

	var total int
	err := l.profiles.Mutate(uid, func(p *PlayerProfile) {
		l.materializeLocked(p, l.now())
		p.Energy += amount
		if p.Energy > l.cfg.Max {
			p.Energy = l.cfg.Max
		}
		if p.Energy < 0 {
			p.Energy = 0
		}
		total = p.Energy
	})
	return total, err
}

// Buy exchanges gold for energy. The cap checks, the gold charge, the
// grant, and the purchase-log append all commit inside one profile
// mutation under the player lock, so a refusal or a store failure leaves
// gold and energy exactly as they were.
func (l *Ledger) Buy(uid string, amount int) (BuyResult, error) {
	lk := l.playerLock(uid)
	lk.Lock()
	defer lk.Unlock()

	var res BuyResult
	err := l.profiles.Mutate(uid, func(p *PlayerProfile) {
		now := l.now()
		l.materializeLocked(p, now)

		if p.Energy >= l.cfg.Max {
			res = BuyResult{Total: p.Energy, Detail: "already at max energy"}
			return
		}
		p.BuyLog = trimBuyLog(p.BuyLog, now)
		if len(p.BuyLog) >= l.cfg.BuyLimitPer24h {
			res = BuyResult{Total: p.Energy, Detail: fmt.Sprintf("daily purchase limit reached (%d)", len(p.BuyLog))}
			return
		}

		if amount > l.cfg.MaxPerPurchase {
			amount = l.cfg.MaxPerPurchase
		}
		if headroom := l.cfg.Max - p.Energy; amount > headroom {
			amount = headroom
		}
		cost := amount * l.cfg.ShopPrice
		if p.Gold < cost {
			res = BuyResult{Total: p.Energy, Cost: cost, Detail: fmt.Sprintf("not enough gold (need %d)", cost)}
			return
		}

		p.Gold -= cost
		p.Energy += amount
		p.BuyLog = append(p.BuyLog, now)
		res = BuyResult{OK: true, Bought: amount, Cost: cost, Total: p.Energy}
	})
	if err != nil {
		return BuyResult{}, err
	}
	return res, nil
}

// ClaimResult reports a daily-claim attempt.
type ClaimResult struct {
	OK        bool
	Granted   int
	Total     int
	Remaining time.Duration // time until the next claim, for refusals
	Detail    string
}

// ClaimDaily grants the configured amount once per rolling 24h window.
// Refusals come back as results, not errors.
func (l *Ledger) ClaimDaily(uid string) (ClaimResult, error) {
	lk := l.playerLock(uid)
	lk.Lock()
	defer lk.Unlock()

	var res ClaimResult
	err := l.profiles.Mutate(uid, func(p *PlayerProfile) {
		now := l.now()
		l.materializeLocked(p, now)

		if p.Energy >= l.cfg.Max {
			res = ClaimResult{Total: p.Energy, Detail: fmt.Sprintf("already at max energy (%d)", l.cfg.Max)}
			return
		}
		if !p.DailyClaim.IsZero() {
			if since := now.Sub(p.DailyClaim); since < purchaseWindow {
				rem := purchaseWindow - since
				res = ClaimResult{
					Total:     p.Energy,
					Remaining: rem,
					Detail:    fmt.Sprintf("already claimed; next in %s", formatWait(rem)),
				}
				return
			}
		}
		grant := l.cfg.DailyClaimAmount
		if headroom := l.cfg.Max - p.Energy; grant > headroom {
			grant = headroom
		}
		p.Energy += grant
		p.DailyClaim = now
		res = ClaimResult{OK: true, Granted: grant, Total: p.Energy}
	})
	return res, err
}

// PurchasesUsed trims the rolling purchase log and returns how many buys
// remain counted inside the window.
func (l *Ledger) PurchasesUsed(uid string) (int, error) {
	lk := l.playerLock(uid)
	lk.Lock()
	defer lk.Unlock()

	var used int
	err := l.profiles.Mutate(uid, func(p *PlayerProfile) {
		p.BuyLog = trimBuyLog(p.BuyLog, l.now())
		used = len(p.BuyLog)
	})
	return used, err
}

// BuyAllowed reports whether another purchase fits inside the daily cap.
func (l *Ledger) BuyAllowed(uid string) (bool, int, error) {
	used, err := l.PurchasesUsed(uid)
	if err != nil {
		return false, 0, err
	}
	return used < l.cfg.BuyLimitPer24h, used, nil
}

// RecordPurchase appends a purchase timestamp to the rolling log.
func (l *Ledger) RecordPurchase(uid string) error {
	lk := l.playerLock(uid)
	lk.Lock()
	defer lk.Unlock()

	return l.profiles.Mutate(uid, func(p *PlayerProfile) {
		now := l.now()
		p.BuyLog = append(trimBuyLog(p.BuyLog, now), now)
	})
}

func trimBuyLog(log []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-purchaseWindow)
	out := log[:0]
	for _, ts := range log {
		if ts.After(cutoff) {
			out = append(out, ts)
		}
	}
	return out
}

func formatWait(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h <= 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
