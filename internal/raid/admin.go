package raid

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// SpawnParams are the admin spawn options; zero values fall back to the
// tier default (weekly or daily hp).
type SpawnParams struct {
	HP       int
	Name     string
	Weakness string
	Tier     string // "daily" (default) or "weekly"
}

// Spawn resets the encounter with fresh hp and optional identity overrides.
func (e *Engine) Spawn(ctx context.Context, params SpawnParams) (BossState, error) {
	hp := params.HP
	if hp <= 0 {
		hp = e.cfg.DefaultDailyHP
		if strings.EqualFold(params.Tier, "weekly") {
			hp = e.cfg.DefaultWeeklyHP
		}
	}
	if hp < 1 {
		hp = 1
	}

	var weakness Faction
	if params.Weakness != "" {
		f, ok := ParseFaction(strings.ToLower(params.Weakness))
		if !ok {
			return BossState{}, fmt.Errorf("unknown faction %q (valid: gilded, thorned, verdant, mistveil)", params.Weakness)
		}
		weakness = f
	}

	e.mu.Lock()
	b := e.store.LoadBoss()
	b.HP = hp
	b.MaxHP = hp
	if params.Name != "" {
		b.Name = params.Name
	}
	if weakness != "" {
		b.Weakness = weakness
	}
	b.ResetEncounter()
	if err := e.store.SaveBoss(b); err != nil {
		e.mu.Unlock()
		return BossState{}, fmt.Errorf("persist spawn: %w", err)
	}
	snapshot := b
	e.mu.Unlock()

	e.announcer.Publish(ctx, Event{
		Type:    EventBossSpawned,
		Time:    e.now(),
		Boss:    snapshot.Name,
		Message: fmt.Sprintf("New Hollow Boss Battle: %s — %d HP!", snapshot.Name, snapshot.HP),
	})
	return snapshot, nil
}

// UsePreset loads a catalog entry and spawns it. hp>0 overrides the
// preset's max hp.
func (e *Engine) UsePreset(ctx context.Context, key string, hp int) (BossState, error) {
	cat := e.catalog.Catalog()
	preset, ok := cat[key]
	if !ok {
		return BossState{}, fmt.Errorf("preset %q not found", key)
	}

	e.mu.Lock()
	b := e.store.LoadBoss()
	ApplyPreset(&b, key, preset, hp)
	if err := e.store.SaveBoss(b); err != nil {
		e.mu.Unlock()
		return BossState{}, fmt.Errorf("persist preset spawn: %w", err)
	}
	snapshot := b
	e.mu.Unlock()

	e.announcer.Publish(ctx, Event{
		Type:    EventBossSpawned,
		Time:    e.now(),
		Boss:    snapshot.Name,
		Message: fmt.Sprintf("New Hollow Boss Battle: %s — %d HP!", snapshot.Name, snapshot.HP),
	})
	return snapshot, nil
}

// SetHP pins hp, raising max_hp when the new value exceeds it.
func (e *Engine) SetHP(ctx context.Context, hp int) (BossState, error) {
	if hp < 0 {
		hp = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.store.LoadBoss()
	b.HP = hp
	if b.MaxHP < hp {
		b.MaxHP = hp
	}
	if err := e.store.SaveBoss(b); err != nil {
		return BossState{}, fmt.Errorf("persist hp: %w", err)
	}
	return b, nil
}

// SetWeakness pins the current weakness to a specific faction.
func (e *Engine) SetWeakness(ctx context.Context, slug string) (BossState, error) {
	f, ok := ParseFaction(strings.ToLower(slug))
	if !ok {
		return BossState{}, fmt.Errorf("unknown faction %q (valid: gilded, thorned, verdant, mistveil)", slug)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.store.LoadBoss()
	b.Weakness = f
	if err := e.store.SaveBoss(b); err != nil {
		return BossState{}, fmt.Errorf("persist weakness: %w", err)
	}
	return b, nil
}

// AddShield installs a shield of the given kind. pct>0 overrides the kind's
// default size.
func (e *Engine) AddShield(ctx context.Context, kind string, pct float64) (BossState, error) {
	k := ShieldKind(strings.ToLower(strings.TrimSpace(kind)))
	if !k.Valid() {
		return BossState{}, fmt.Errorf("unknown shield kind %q (valid: bramble, veil)", kind)
	}

	e.mu.Lock()
	b := e.store.LoadBoss()
	now := e.now()

	var s *ShieldState
	if pct > 0 {
		s = SpawnShieldPct(&b, k, pct, e.cfg.Shield, now)
	} else {
		s = SpawnShield(&b, k, e.cfg.Shield, now)
	}
	if s == nil {
		e.mu.Unlock()
		return BossState{}, fmt.Errorf("shields are disabled or the boss has no max hp")
	}
	if err := e.store.SaveBoss(b); err != nil {
		e.mu.Unlock()
		return BossState{}, fmt.Errorf("persist shield: %w", err)
	}
	snapshot := b
	spawned := *s
	e.mu.Unlock()

	e.announcer.Publish(ctx, Event{
		Type:    EventShieldSpawned,
		Time:    now,
		Boss:    snapshot.Name,
		Message: fmt.Sprintf("%s has formed! Focus fire! (%d HP)", spawned.Name, spawned.HP),
		Payload: spawned,
	})
	return snapshot, nil
}

// ClearShield drops any shield, expired or not.
func (e *Engine) ClearShield(ctx context.Context) (BossState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.store.LoadBoss()
	b.Shield = nil
	if err := e.store.SaveBoss(b); err != nil {
		return BossState{}, fmt.Errorf("persist shield clear: %w", err)
	}
	return b, nil
}

// Wipe clears tallies and the action log without touching hp or identity.
func (e *Engine) Wipe(ctx context.Context) (BossState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.store.LoadBoss()
	b.Tally = make(map[string]int)
	b.FactionDamage = make(map[Faction]int)
	b.LastActions = nil
	if err := e.store.SaveBoss(b); err != nil {
		return BossState{}, fmt.Errorf("persist wipe: %w", err)
	}
	return b, nil
}

// RotateNow advances the weakness immediately, resetting the tick counter.
func (e *Engine) RotateNow(ctx context.Context) (BossState, error) {
	e.mu.Lock()
	b := e.store.LoadBoss()
	if !b.Alive() {
		e.mu.Unlock()
		return BossState{}, fmt.Errorf("no active boss")
	}
	b.Weakness = NextWeakness(b.Weakness)
	b.Rotate.Tick = 0
	b.LastRotate = e.now()
	if err := e.store.SaveBoss(b); err != nil {
		e.mu.Unlock()
		return BossState{}, fmt.Errorf("persist rotation: %w", err)
	}
	snapshot := b
	e.mu.Unlock()

	e.announceRotation(ctx, snapshot.Name, snapshot.Weakness)
	return snapshot, nil
}

// SetRotate updates the rotation config; nil fields are left unchanged.
func (e *Engine) SetRotate(ctx context.Context, enabled *bool, minutes *int) (BossState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.store.LoadBoss()
	if enabled != nil {
		b.Rotate.Enabled = *enabled
	}
	if minutes != nil {
		m := *minutes
		if m < 1 {
			m = 1
		}
		b.Rotate.Minutes = m
		b.Rotate.Tick = 0
	}
	if err := e.store.SaveBoss(b); err != nil {
		return BossState{}, fmt.Errorf("persist rotate config: %w", err)
	}
	return b, nil
}

func (e *Engine) announceRotation(ctx context.Context, boss string, next Faction) {
	e.announcer.Publish(ctx, Event{
		Type:    EventWeaknessRotated,
		Time:    e.now(),
		Boss:    boss,
		Message: fmt.Sprintf("Weakness rotated: %s", next.Display()),
		Payload: next,
	})
}

// Participant is one tally row for the participants listing.
type Participant struct {
	UserID string `json:"user_id"`
	Damage int    `json:"damage"`
}

// Participants lists tally rows at or above minDamage, sorted by damage.
func (e *Engine) Participants(minDamage int) []Participant {
	b := e.store.LoadBoss()
	out := make([]Participant, 0, len(b.Tally))
	for uid, dmg := range b.Tally {
		if dmg >= minDamage {
			out = append(out, Participant{UserID: uid, Damage: dmg})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Damage != out[j].Damage {
			return out[i].Damage > out[j].Damage
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// EnergyStatus is the player-facing energy readout.
type EnergyStatus struct {
	Energy       int           `json:"energy"`
	Max          int           `json:"max"`
	RegenMinutes int           `json:"regen_minutes"`
	Purchases    int           `json:"purchases_24h"`
	NextClaimIn  time.Duration `json:"next_claim_in,omitempty"`
}

// EnergyStatusFor materializes regen and reports the player's resource view.
func (e *Engine) EnergyStatusFor(uid string) (EnergyStatus, error) {
	cur, err := e.ledger.Materialize(uid)
	if err != nil {
		return EnergyStatus{}, fmt.Errorf("materialize energy: %w", err)
	}
	used, err := e.ledger.PurchasesUsed(uid)
	if err != nil {
		return EnergyStatus{}, fmt.Errorf("read purchase log: %w", err)
	}
	status := EnergyStatus{
		Energy:       cur,
		Max:          e.cfg.Energy.Max,
		RegenMinutes: e.cfg.Energy.RegenMinutes,
		Purchases:    used,
	}
	if p, err := e.profiles.View(uid); err == nil && !p.DailyClaim.IsZero() {
		if rem := purchaseWindow - e.now().Sub(p.DailyClaim); rem > 0 {
			status.NextClaimIn = rem
		}
	}
	return status, nil
}

// ClaimDaily grants the once-per-24h energy drop.
func (e *Engine) ClaimDaily(uid string) (ClaimResult, error) {
	return e.ledger.ClaimDaily(uid)
}

// BuyResult reports an energy purchase attempt.
type BuyResult struct {
	OK     bool   `json:"ok"`
	Bought int    `json:"bought"`
	Cost   int    `json:"cost"`
	Total  int    `json:"total"`
	Detail string `json:"detail,omitempty"`
}

// BuyEnergy exchanges gold for energy, enforcing the rolling 24h purchase
// cap, the per-purchase cap, and the energy headroom. The charge and the
// grant commit together inside the ledger.
func (e *Engine) BuyEnergy(uid string, amount int) (BuyResult, error) {
	if amount <= 0 {
		return BuyResult{Detail: "choose a positive amount"}, nil
	}

	res, err := e.ledger.Buy(uid, amount)
	if err != nil {
		return BuyResult{}, fmt.Errorf("buy energy: %w", err)
	}
	if res.OK {
		if err := e.profiles.RecordTransaction(uid, -res.Cost, fmt.Sprintf("buy raid energy x%d", res.Bought)); err != nil {
			e.log.WithError(err).WithField("user", uid).Warn("transaction record failed")
		}
	}
	return res, nil
}
