package raid

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BossStore persists the encounter document. LoadBoss never fails — corrupt
// or missing state comes back as the default template — while SaveBoss
// reports I/O errors so a failed write can abandon the in-memory mutation.
type BossStore interface {
	LoadBoss() BossState
	SaveBoss(BossState) error
}

// CatalogSource exposes the immutable preset table.
type CatalogSource interface {
	Catalog() Catalog
}

// AttackOutcome classifies one attack attempt. Refusals are ordinary
// outcomes, not errors.
type AttackOutcome string

const (
	OutcomeHit      AttackOutcome = "hit"
	OutcomeCooldown AttackOutcome = "cooldown"
	OutcomeBossDown AttackOutcome = "boss_down"
	OutcomeNoEnergy AttackOutcome = "no_energy"
	OutcomeTooLate  AttackOutcome = "too_late"
)

// AttackResult is the structured outcome of one attack attempt. Every
// attempt yields one; there is no silent failure path.
type AttackResult struct {
	Outcome      AttackOutcome  `json:"outcome"`
	Damage       int            `json:"damage"`
	Overkill     int            `json:"overkill,omitempty"`
	EnergyLeft   int            `json:"energy_left"`
	Effects      []string       `json:"effects,omitempty"`
	ShieldBroken bool           `json:"shield_broken,omitempty"`
	PhaseChanged bool           `json:"phase_changed,omitempty"`
	Defeated     bool           `json:"defeated,omitempty"`
	Wait         time.Duration  `json:"wait,omitempty"` // remaining cooldown
	Detail       string         `json:"detail,omitempty"`
	Boss         BossState      `json:"boss"`
	Defeat       *DefeatSummary `json:"defeat,omitempty"`
}

// Engine owns the boss exclusively: one mutex serializes every mutation,
// whether it comes from a player attack, an admin operation, or a scheduler
// tick. No code path reads boss state and writes it back without holding mu
// across the whole span. Announcements always go out after mu is released.
type Engine struct {
	mu sync.Mutex // guards every load-mutate-save span on the boss

	store     BossStore
	catalog   CatalogSource
	profiles  ProfileStore
	ledger    *Ledger
	resolver  *Resolver
	announcer Announcer
	cfg       Config
	log       *logrus.Entry

	cooldownMu sync.Mutex
	lastHit    map[string]time.Time

	shieldRng func() ShieldKind
	now       func() time.Time
}

// NewEngine wires the raid engine. announcer may be nil.
func NewEngine(store BossStore, catalog CatalogSource, profiles ProfileStore, cfg Config, rng *rand.Rand, announcer Announcer, log *logrus.Entry) *Engine {
	if announcer == nil {
		announcer = NopAnnouncer()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Engine{
		store:     store,
		catalog:   catalog,
		profiles:  profiles,
		ledger:    NewLedger(profiles, cfg.Energy),
		resolver:  NewResolver(cfg.Damage, rng),
		announcer: announcer,
		cfg:       cfg,
		log:       log,
		lastHit:   make(map[string]time.Time),
		now:       time.Now,
	}
	e.shieldRng = func() ShieldKind {
		kinds := []ShieldKind{ShieldBramble, ShieldVeil}
		return kinds[rng.Intn(len(kinds))]
	}
	return e
}

// Ledger exposes the energy ledger for the surrounding UI layer.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// checkCooldown enforces the cheap in-memory per-player spam gate. It never
// touches shared boss state.
func (e *Engine) checkCooldown(uid string, now time.Time) (time.Duration, bool) {
	e.cooldownMu.Lock()
	defer e.cooldownMu.Unlock()
	if last, ok := e.lastHit[uid]; ok {
		if wait := e.cfg.UserCooldown - now.Sub(last); wait > 0 {
			return wait, false
		}
	}
	e.lastHit[uid] = now
	return 0, true
}

// Attack runs the full attack pipeline for one player:
// cooldown → alive pre-check → energy spend → lock → re-validate → resolve
// → shield → commit → persist → (after unlock) announce and pay out.
func (e *Engine) Attack(ctx context.Context, uid, name string) (AttackResult, error) {
	now := e.now()

	if wait, ok := e.checkCooldown(uid, now); !ok {
		return AttackResult{
			Outcome: OutcomeCooldown,
			Wait:    wait,
			Detail:  fmt.Sprintf("cooldown %.1fs", wait.Seconds()),
		}, nil
	}

	// Cheap read before spending energy; the authoritative check happens
	// again under the lock.
	if pre := e.store.LoadBoss(); !pre.Alive() {
		return AttackResult{Outcome: OutcomeBossDown, Detail: "the boss is already defeated"}, nil
	}

	faction := e.factionOf(uid)

	ok, left, err := e.ledger.Spend(uid, 1)
	if err != nil {
		return AttackResult{}, fmt.Errorf("spend energy: %w", err)
	}
	if !ok {
		return AttackResult{
			Outcome:    OutcomeNoEnergy,
			EnergyLeft: left,
			Detail:     fmt.Sprintf("out of energy; +1 in %d min (cap %d)", e.cfg.Energy.RegenMinutes, e.cfg.Energy.Max),
		}, nil
	}

	var events []Event

	e.mu.Lock()
	b := e.store.LoadBoss()
	now = e.now()

	if !b.Alive() {
		e.mu.Unlock()
		// The spend-before-lock race window closes with an unconditional
		// compensating refund.
		refunded, rerr := e.ledger.Add(uid, 1)
		if rerr != nil {
			e.log.WithError(rerr).WithField("user", uid).Warn("energy refund failed")
			refunded = left
		}
		return AttackResult{
			Outcome:    OutcomeTooLate,
			EnergyLeft: refunded,
			Detail:     "the boss was already defeated — energy refunded",
		}, nil
	}

	dmg, effects := e.resolver.Compute(&b, faction, now)

	var shield ShieldResult
	shield.ToBoss = dmg
	if ActiveShield(&b, now) != nil {
		shield, effects = ApplyShield(&b, dmg, faction, effects, e.cfg.Shield, now)
	}

	hpBefore := b.HP
	applied := shield.ToBoss
	if applied > hpBefore {
		applied = hpBefore
	}
	if applied < 0 {
		applied = 0
	}
	overkill := shield.ToBoss - applied
	b.HP = hpBefore - applied

	phaseChanged := e.evaluatePhase(&b, now, &events)

	credit := applied
	if e.cfg.CountShieldDamage {
		credit += shield.Absorbed
	}
	b.Tally[uid] += credit
	if faction.Valid() {
		b.FactionDamage[faction] += credit
	}

	b.AppendAction(AttackAction{
		ID:       uuid.NewString(),
		TS:       now,
		UserID:   uid,
		UserName: name,
		Faction:  faction,
		Damage:   applied,
		Effects:  effects,
	})

	if shield.Broken {
		b.SetBuff(BuffGuardBreak, e.cfg.GuardBreakWindow, now)
		events = append(events, Event{
			Type:    EventShieldBroken,
			Time:    now,
			Boss:    b.Name,
			Message: fmt.Sprintf("%s broken! Guard Break active — push damage!", shield.Name),
		})
	}

	if err := e.store.SaveBoss(b); err != nil {
		e.mu.Unlock()
		// Abandon the mutation; the last good persisted state stays
		// authoritative. The spent energy comes back.
		if _, rerr := e.ledger.Add(uid, 1); rerr != nil {
			e.log.WithError(rerr).WithField("user", uid).Warn("energy refund after failed save")
		}
		return AttackResult{}, fmt.Errorf("persist attack: %w", err)
	}
	snapshot := b
	e.mu.Unlock()

	e.dispatch(ctx, events)

	res := AttackResult{
		Outcome:      OutcomeHit,
		Damage:       applied,
		Overkill:     overkill,
		EnergyLeft:   left,
		Effects:      effects,
		ShieldBroken: shield.Broken,
		PhaseChanged: phaseChanged,
		Boss:         snapshot,
	}

	if snapshot.HP <= 0 {
		summary, err := e.handleDefeat(ctx)
		if err != nil {
			e.log.WithError(err).Error("defeat handling failed")
		} else if summary != nil {
			res.Defeated = true
			res.Defeat = summary
		}
	}
	return res, nil
}

// evaluatePhase flips to phase 2 when hp crosses half of max while a
// phase-2 asset exists, optionally auto-spawning a shield. Must be called
// with the boss lock held; events are queued for post-unlock dispatch.
func (e *Engine) evaluatePhase(b *BossState, now time.Time, events *[]Event) bool {
	if b.MaxHP <= 0 || b.Phase != 1 || b.HP > b.MaxHP/2 {
		return false
	}
	if !b.HasPhaseTwoImage() {
		return false
	}
	b.Phase = 2
	b.AppendAction(AttackAction{
		ID:       uuid.NewString(),
		TS:       now,
		UserID:   "system",
		UserName: "Phase Shift",
		Damage:   0,
		Effects:  []string{"Boss enrages! Phase 2"},
	})
	*events = append(*events, Event{
		Type:    EventPhaseChanged,
		Time:    now,
		Boss:    b.Name,
		Message: "Phase 2 awakened! New tactics may be required.",
	})

	if e.cfg.Phase2SpawnsShield && e.cfg.Shield.Enabled && ActiveShield(b, now) == nil {
		if s := SpawnShield(b, e.shieldRng(), e.cfg.Shield, now); s != nil {
			*events = append(*events, Event{
				Type:    EventShieldSpawned,
				Time:    now,
				Boss:    b.Name,
				Message: fmt.Sprintf("%s has formed! Focus fire! (%d HP)", s.Name, s.HP),
				Payload: *s,
			})
		}
	}
	return true
}

func (e *Engine) factionOf(uid string) Faction {
	p, err := e.profiles.View(uid)
	if err != nil {
		e.log.WithError(err).WithField("user", uid).Debug("faction lookup failed")
		return ""
	}
	if p.Faction.Valid() {
		return p.Faction
	}
	return ""
}

// dispatch publishes queued events outside the lock. Announcer failures are
// the announcer's problem; slow consumers must buffer, not block.
func (e *Engine) dispatch(ctx context.Context, events []Event) {
	for _, ev := range events {
		e.announcer.Publish(ctx, ev)
	}
}

// Snapshot returns the current boss state for display, with expired shield
// and buffs pruned from the returned copy only.
func (e *Engine) Snapshot() BossState {
	b := e.store.LoadBoss()
	now := e.now()
	ActiveShield(&b, now)
	b.PruneBuffs(now)
	return b
}
