package raid

import (
	"time"
)

// BuffKind is the closed set of timed boss buffs. Buff state is a map from
// kind to expiry; a buff is active strictly before its expiry.
type BuffKind string

const (
	// BuffGuardBreak boosts all attackers for a short window after a shield
	// breaks.
	BuffGuardBreak BuffKind = "guard_break"
	// BuffOverbloom is the seasonal event buff.
	BuffOverbloom BuffKind = "overbloom"
)

// ShieldKind selects the shield archetype overlaying the boss.
type ShieldKind string

const (
	ShieldBramble ShieldKind = "bramble"
	ShieldVeil    ShieldKind = "veil"
)

func (k ShieldKind) Valid() bool {
	return k == ShieldBramble || k == ShieldVeil
}

// DisplayName returns the flavor name used in announcements.
func (k ShieldKind) DisplayName() string {
	switch k {
	case ShieldBramble:
		return "Bramble Shield"
	case ShieldVeil:
		return "Mist Veil"
	}
	return string(k)
}

// ShieldState is a temporary secondary hit-point pool on the boss.
type ShieldState struct {
	Kind    ShieldKind `json:"kind" jsonschema:"enum=bramble,enum=veil"`
	Name    string     `json:"name"`
	HP      int        `json:"hp"`
	MaxHP   int        `json:"max_hp"`
	Expires time.Time  `json:"expires"`
}

// AttackAction is one bounded-log entry recording a resolved hit.
type AttackAction struct {
	ID       string    `json:"id"`
	TS       time.Time `json:"ts"`
	UserID   string    `json:"user_id"`
	UserName string    `json:"user"`
	Faction  Faction   `json:"faction,omitempty"`
	Damage   int       `json:"dmg"`
	Effects  []string  `json:"effects,omitempty"`
}

// RotateConfig controls the background weakness rotation for one encounter.
type RotateConfig struct {
	Enabled bool `json:"enabled"`
	Minutes int  `json:"minutes"`
	Tick    int  `json:"tick"`
}

// maxLastActions bounds the action log kept on the boss document.
const maxLastActions = 25

// BossState is the shared raid entity. All mutation happens inside the
// engine's lock; the struct itself carries no synchronization.
type BossState struct {
	Key      string  `json:"key,omitempty"`
	Name     string  `json:"name"`
	HP       int     `json:"hp"`
	MaxHP    int     `json:"max_hp"`
	Phase    int     `json:"phase" jsonschema:"minimum=1,maximum=2"`
	Weakness Faction `json:"weakness,omitempty"`

	Shield *ShieldState           `json:"shield,omitempty"`
	Buffs  map[BuffKind]time.Time `json:"buffs,omitempty"`

	Tally         map[string]int  `json:"tally,omitempty"`
	FactionDamage map[Faction]int `json:"faction_damage,omitempty"`
	LastActions   []AttackAction  `json:"last_actions,omitempty"`

	Rotate     RotateConfig `json:"rotate"`
	LastRotate time.Time    `json:"last_rotate,omitzero"`

	ImageURL    string            `json:"image_url,omitempty"`
	PhaseImages map[string]string `json:"phase_images,omitempty"`
	TrophyURL   string            `json:"trophy_url,omitempty"`
}

// DefaultBoss returns the empty encounter template the store falls back to.
func DefaultBoss() BossState {
	return BossState{
		Name:     "Hollow Boss",
		Phase:    1,
		Weakness: weaknessOrder[0],
		Rotate:   RotateConfig{Enabled: true, Minutes: 2},
	}
}

// Normalize self-heals a loaded or mutated state: clamps hp into
// [0, max_hp], drops malformed shields, and allocates the maps mutation
// paths expect. It never rejects; invariants are restored, not reported.
func (b *BossState) Normalize() {
	if b.MaxHP < 0 {
		b.MaxHP = 0
	}
	if b.HP < 0 {
		b.HP = 0
	}
	if b.MaxHP > 0 && b.HP > b.MaxHP {
		b.HP = b.MaxHP
	}
	if b.Phase < 1 {
		b.Phase = 1
	}
	if b.Phase > 2 {
		b.Phase = 2
	}
	if b.Weakness != "" && !b.Weakness.Valid() {
		b.Weakness = weaknessOrder[0]
	}
	if s := b.Shield; s != nil {
		if !s.Kind.Valid() || s.HP <= 0 {
			b.Shield = nil
		} else if s.MaxHP < s.HP {
			s.MaxHP = s.HP
		}
	}
	if b.Buffs == nil {
		b.Buffs = make(map[BuffKind]time.Time)
	}
	if b.Tally == nil {
		b.Tally = make(map[string]int)
	}
	if b.FactionDamage == nil {
		b.FactionDamage = make(map[Faction]int)
	}
	if b.Rotate.Minutes < 1 {
		b.Rotate.Minutes = 1
	}
	if len(b.LastActions) > maxLastActions {
		b.LastActions = b.LastActions[len(b.LastActions)-maxLastActions:]
	}
}

// Alive reports whether the encounter is still running.
func (b *BossState) Alive() bool {
	return b.HP > 0
}

// SetBuff installs or refreshes a timed buff.
func (b *BossState) SetBuff(kind BuffKind, d time.Duration, now time.Time) {
	if b.Buffs == nil {
		b.Buffs = make(map[BuffKind]time.Time)
	}
	b.Buffs[kind] = now.Add(d)
}

// BuffActive reports whether the buff window is still open at now.
func (b *BossState) BuffActive(kind BuffKind, now time.Time) bool {
	until, ok := b.Buffs[kind]
	return ok && now.Before(until)
}

// PruneBuffs drops expired buff entries so snapshots stay tidy.
func (b *BossState) PruneBuffs(now time.Time) {
	for kind, until := range b.Buffs {
		if !now.Before(until) {
			delete(b.Buffs, kind)
		}
	}
}

// AppendAction records a log entry, trimming to the bounded window.
func (b *BossState) AppendAction(a AttackAction) {
	b.LastActions = append(b.LastActions, a)
	if len(b.LastActions) > maxLastActions {
		b.LastActions = b.LastActions[len(b.LastActions)-maxLastActions:]
	}
}

// LastAction returns the most recent log entry, or nil when the log is empty.
func (b *BossState) LastAction() *AttackAction {
	if len(b.LastActions) == 0 {
		return nil
	}
	return &b.LastActions[len(b.LastActions)-1]
}

// LastActionAfter reports whether any logged action is newer than cutoff.
func (b *BossState) LastActionAfter(cutoff time.Time) bool {
	for i := len(b.LastActions) - 1; i >= 0; i-- {
		if b.LastActions[i].TS.After(cutoff) {
			return true
		}
	}
	return false
}

// HasPhaseTwoImage reports whether a phase-2 asset is configured, which
// gates the 50% phase flip.
func (b *BossState) HasPhaseTwoImage() bool {
	if len(b.PhaseImages) == 0 {
		return false
	}
	for _, k := range []string{"2", "phase2", "p2"} {
		if b.PhaseImages[k] != "" {
			return true
		}
	}
	return false
}

// ResetEncounter wipes per-fight progress while keeping identity fields
// (name, images, weakness) so the next spawn can reuse them.
func (b *BossState) ResetEncounter() {
	b.Tally = make(map[string]int)
	b.FactionDamage = make(map[Faction]int)
	b.LastActions = nil
	b.Shield = nil
	b.Buffs = make(map[BuffKind]time.Time)
	b.Phase = 1
	b.Rotate.Tick = 0
}
