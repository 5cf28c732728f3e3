package raid

import "time"

// DamageConfig tunes the per-hit damage roll.
type DamageConfig struct {
	BasePct        float64 // base roll as a fraction of max hp
	JitterLow      float64
	JitterHigh     float64
	MaxHitPct      float64 // per-hit cap as a fraction of max hp
	MinHitAbs      int     // absolute floor so hits never feel like "1"
	CritChance     float64
	CritMultiplier float64
	WeaknessBonus  float64
	RendBonus      float64 // thorned passive, also the extra shield chew
	AmbushBonus    float64 // mistveil combo after a recent thorned hit
	AmbushWindow   time.Duration
}

// ShieldConfig tunes shield sizing and mitigation.
type ShieldConfig struct {
	Enabled           bool
	Duration          time.Duration
	BramblePct        float64
	VeilPct           float64
	BrambleMitigation float64 // damage fraction removed while bramble is up
	VeilMitigation    float64
	ShatterBypassPct  float64 // gilded crit passthrough
	RendBonusPct      float64 // thorned extra shield-hp consumption
}

// EnergyConfig tunes the per-player attack resource.
type EnergyConfig struct {
	Max              int
	RegenMinutes     int
	DailyClaimAmount int
	ShopPrice        int // gold per energy
	BuyLimitPer24h   int
	MaxPerPurchase   int
}

// RewardConfig tunes the on-kill payout.
type RewardConfig struct {
	PerPlayer int // pool contribution per participant
	Min       int // per-person floor
	Max       int // per-person cap
	AwardTopN int // trophy recipients
}

// SchedulerConfig tunes the background maintenance loops.
type SchedulerConfig struct {
	RotateInterval time.Duration // base tick for the rotation counter
	IdleHealEvery  time.Duration
	IdleHealPct    float64
	ShieldSweep    time.Duration
}

// Config gathers every engine tunable. Zero values are not usable; call
// DefaultConfig and override from the environment.
type Config struct {
	Damage    DamageConfig
	Shield    ShieldConfig
	Energy    EnergyConfig
	Reward    RewardConfig
	Scheduler SchedulerConfig

	UserCooldown       time.Duration
	GuardBreakWindow   time.Duration
	DefaultDailyHP     int
	DefaultWeeklyHP    int
	Phase2SpawnsShield bool
	CountShieldDamage  bool // credit absorbed shield damage in the tally
}

// DefaultConfig mirrors the production tuning table.
func DefaultConfig() Config {
	return Config{
		Damage: DamageConfig{
			BasePct:        0.008,
			JitterLow:      0.90,
			JitterHigh:     1.10,
			MaxHitPct:      0.035,
			MinHitAbs:      100,
			CritChance:     0.08,
			CritMultiplier: 1.5,
			WeaknessBonus:  0.20,
			RendBonus:      0.15,
			AmbushBonus:    0.25,
			AmbushWindow:   120 * time.Second,
		},
		Shield: ShieldConfig{
			Enabled:           true,
			Duration:          120 * time.Second,
			BramblePct:        0.08,
			VeilPct:           0.06,
			BrambleMitigation: 0.5,
			VeilMitigation:    0.4,
			ShatterBypassPct:  0.20,
			RendBonusPct:      0.15,
		},
		Energy: EnergyConfig{
			Max:              5,
			RegenMinutes:     20,
			DailyClaimAmount: 5,
			ShopPrice:        1000,
			BuyLimitPer24h:   5,
			MaxPerPurchase:   5,
		},
		Reward: RewardConfig{
			PerPlayer: 12000,
			Min:       4000,
			Max:       40000,
			AwardTopN: 3,
		},
		Scheduler: SchedulerConfig{
			RotateInterval: time.Minute,
			IdleHealEvery:  30 * time.Minute,
			IdleHealPct:    0.03,
			ShieldSweep:    15 * time.Second,
		},
		UserCooldown:       6 * time.Second,
		GuardBreakWindow:   30 * time.Second,
		DefaultDailyHP:     500_000,
		DefaultWeeklyHP:    1_000_000,
		Phase2SpawnsShield: true,
		CountShieldDamage:  true,
	}
}
