package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"hollowgrove/bot/internal/raid"
)

// Config is the process configuration, resolved from the environment with
// defaults matching the production tuning table. A .env file in the working
// directory is loaded first when present.
type Config struct {
	Addr       string
	DataDir    string
	PresetSeed string
	AdminToken string

	LogLevel  string
	LogFormat string // text | json

	Raid raid.Config
}

// Load resolves the configuration. Malformed values are errors, not silent
// defaults, so a typo in the environment never ships wrong tuning.
func Load() (Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := Config{
		Addr:       envString("ADDR", ":8080"),
		DataDir:    envString("DATA_DIR", "data"),
		PresetSeed: envString("PRESET_SEED", "data/presets.yaml"),
		AdminToken: os.Getenv("ADMIN_TOKEN"),
		LogLevel:   envString("LOG_LEVEL", "info"),
		LogFormat:  envString("LOG_FORMAT", "text"),
		Raid:       raid.DefaultConfig(),
	}

	var err error
	r := &cfg.Raid
	if err = overrideInt("BOSS_DAILY_HP", &r.DefaultDailyHP); err != nil {
		return cfg, err
	}
	if err = overrideInt("BOSS_WEEKLY_HP", &r.DefaultWeeklyHP); err != nil {
		return cfg, err
	}
	if err = overrideFloat("DAMAGE_BASE_PCT", &r.Damage.BasePct); err != nil {
		return cfg, err
	}
	if err = overrideFloat("DAMAGE_MAX_HIT_PCT", &r.Damage.MaxHitPct); err != nil {
		return cfg, err
	}
	if err = overrideInt("DAMAGE_MIN_HIT", &r.Damage.MinHitAbs); err != nil {
		return cfg, err
	}
	if err = overrideFloat("DAMAGE_CRIT_CHANCE", &r.Damage.CritChance); err != nil {
		return cfg, err
	}
	if err = overrideBool("SHIELDS_ENABLED", &r.Shield.Enabled); err != nil {
		return cfg, err
	}
	if err = overrideDuration("SHIELD_DURATION", &r.Shield.Duration); err != nil {
		return cfg, err
	}
	if err = overrideInt("ENERGY_MAX", &r.Energy.Max); err != nil {
		return cfg, err
	}
	if err = overrideInt("ENERGY_REGEN_MINUTES", &r.Energy.RegenMinutes); err != nil {
		return cfg, err
	}
	if err = overrideInt("ENERGY_SHOP_PRICE", &r.Energy.ShopPrice); err != nil {
		return cfg, err
	}
	if err = overrideInt("ENERGY_BUY_LIMIT", &r.Energy.BuyLimitPer24h); err != nil {
		return cfg, err
	}
	if err = overrideInt("REWARD_PER_PLAYER", &r.Reward.PerPlayer); err != nil {
		return cfg, err
	}
	if err = overrideInt("REWARD_MIN", &r.Reward.Min); err != nil {
		return cfg, err
	}
	if err = overrideInt("REWARD_MAX", &r.Reward.Max); err != nil {
		return cfg, err
	}
	if err = overrideDuration("USER_COOLDOWN", &r.UserCooldown); err != nil {
		return cfg, err
	}
	if err = overrideDuration("IDLE_HEAL_EVERY", &r.Scheduler.IdleHealEvery); err != nil {
		return cfg, err
	}
	if err = overrideDuration("SHIELD_SWEEP_EVERY", &r.Scheduler.ShieldSweep); err != nil {
		return cfg, err
	}
	if err = overrideBool("PHASE2_SPAWNS_SHIELD", &r.Phase2SpawnsShield); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func overrideInt(key string, dst *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
	*dst = v
	return nil
}

func overrideFloat(key string, dst *float64) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
	*dst = v
	return nil
}

func overrideBool(key string, dst *bool) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
	*dst = v
	return nil
}

func overrideDuration(key string, dst *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
	*dst = v
	return nil
}
