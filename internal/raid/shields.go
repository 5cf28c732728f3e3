package raid

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// counterFaction returns the faction whose hits ignore the shield's
// mitigation penalty.
func counterFaction(kind ShieldKind) Faction {
	switch kind {
	case ShieldBramble:
		return FactionVerdant
	case ShieldVeil:
		return FactionMistveil
	}
	return ""
}

// ActiveShield returns the boss shield if it is present, unexpired, and has
// hit points left. Anything else is cleared in place and nil is returned, so
// expiry needs no timer of its own.
func ActiveShield(b *BossState, now time.Time) *ShieldState {
	s := b.Shield
	if s == nil {
		return nil
	}
	if !s.Kind.Valid() || s.HP <= 0 || !now.Before(s.Expires) {
		b.Shield = nil
		return nil
	}
	if s.MaxHP < s.HP {
		s.MaxHP = s.HP
	}
	return s
}

// SpawnShield installs a new shield sized as the kind's percentage of the
// boss max hp. Returns nil when shields are disabled or the boss has no
// usable max hp.
func SpawnShield(b *BossState, kind ShieldKind, cfg ShieldConfig, now time.Time) *ShieldState {
	pct := cfg.BramblePct
	if kind == ShieldVeil {
		pct = cfg.VeilPct
	}
	return SpawnShieldPct(b, kind, pct, cfg, now)
}

// SpawnShieldPct is SpawnShield with an explicit size override, used by the
// admin add-shield operation.
func SpawnShieldPct(b *BossState, kind ShieldKind, pct float64, cfg ShieldConfig, now time.Time) *ShieldState {
	if !cfg.Enabled || !kind.Valid() || b.MaxHP <= 0 {
		return nil
	}
	pct = math.Max(0.01, math.Min(0.5, pct))
	hp := int(float64(b.MaxHP) * pct)
	if hp < 1 {
		hp = 1
	}
	dur := cfg.Duration
	if dur <= 0 {
		dur = time.Minute
	}
	s := &ShieldState{
		Kind:    kind,
		Name:    kind.DisplayName(),
		HP:      hp,
		MaxHP:   hp,
		Expires: now.Add(dur),
	}
	b.Shield = s
	return s
}

// ShieldResult reports how a shield transformed one incoming hit.
type ShieldResult struct {
	ToBoss   int    // damage that reached the boss (passthrough + leftover)
	Name     string // shield display name, for the reply line
	Absorbed int    // total shield hp consumed, including rend chew
	Broken   bool   // shield reached zero and was cleared
}

// ApplyShield routes an incoming hit through the active shield:
//
//  1. flat mitigation unless the attacker counters the shield kind;
//  2. gilded Shatter lets a slice of the mitigated damage bypass the shield
//     entirely when the hit carried a critical tag;
//  3. the remainder absorbs into shield hp, with thorned Rend chewing extra
//     shield hp on top without adding boss damage;
//  4. leftover past the shield's remaining hp goes to the boss.
//
// On break the shield is cleared in place; the caller installs Guard Break.
// The effects slice is extended with the labels that fired and returned.
func ApplyShield(b *BossState, dmg int, attacker Faction, effects []string, cfg ShieldConfig, now time.Time) (ShieldResult, []string) {
	s := ActiveShield(b, now)
	if s == nil {
		if dmg < 0 {
			dmg = 0
		}
		return ShieldResult{ToBoss: dmg}, effects
	}
	if dmg < 0 {
		dmg = 0
	}

	switch s.Kind {
	case ShieldBramble:
		if attacker != counterFaction(s.Kind) {
			dmg = int(float64(dmg) * (1 - cfg.BrambleMitigation))
			effects = append(effects, fmt.Sprintf("Bramble thorns −%d%%", int(cfg.BrambleMitigation*100)))
		} else {
			effects = append(effects, "Verdant cuts the brambles")
		}
	case ShieldVeil:
		if attacker != counterFaction(s.Kind) {
			dmg = int(float64(dmg) * (1 - cfg.VeilMitigation))
			effects = append(effects, fmt.Sprintf("Veil dampens −%d%%", int(cfg.VeilMitigation*100)))
		} else {
			effects = append(effects, "Mistveil pierces the veil")
		}
	}

	// Gilded Shatter: critical hits punch a slice straight through.
	passthrough := 0
	if attacker == FactionGilded && hasCriticalTag(effects) && cfg.ShatterBypassPct > 0 {
		passthrough = int(math.Round(float64(dmg) * cfg.ShatterBypassPct))
		if passthrough > 0 {
			effects = append(effects, fmt.Sprintf("Shatter passthrough +%d%% → %d to boss", int(cfg.ShatterBypassPct*100), passthrough))
		}
	}

	toShield := dmg - passthrough
	if toShield < 0 {
		toShield = 0
	}

	hpBefore := s.HP
	baseAbsorb := toShield
	if baseAbsorb > hpBefore {
		baseAbsorb = hpBefore
	}

	// Thorned Rend: extra shield chew, never extra boss damage.
	extraChew := 0
	if attacker == FactionThorned && baseAbsorb > 0 && cfg.RendBonusPct > 0 {
		extraChew = int(math.Round(float64(baseAbsorb) * cfg.RendBonusPct))
		if extraChew > 0 {
			effects = append(effects, fmt.Sprintf("Rend +%d%% vs shield (extra %d)", int(cfg.RendBonusPct*100), extraChew))
		}
	}

	absorbed := baseAbsorb + extraChew
	if absorbed > hpBefore {
		absorbed = hpBefore
	}
	s.HP = hpBefore - absorbed

	leftover := toShield - baseAbsorb
	res := ShieldResult{
		ToBoss:   passthrough + leftover,
		Name:     s.Name,
		Absorbed: absorbed,
	}

	if s.HP <= 0 {
		b.Shield = nil
		res.Broken = true
		effects = append(effects, "Shield broken!")
	}
	if baseAbsorb > 0 {
		effects = append(effects, fmt.Sprintf("Shield absorbed %d", baseAbsorb))
	}
	return res, effects
}

func hasCriticalTag(effects []string) bool {
	for _, e := range effects {
		if strings.Contains(strings.ToLower(e), "crit") {
			return true
		}
	}
	return false
}
