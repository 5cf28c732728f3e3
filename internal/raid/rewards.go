package raid

import (
	"context"
	"fmt"
	"sort"
)

// RewardLine is one participant's payout.
type RewardLine struct {
	UserID string `json:"user_id"`
	Damage int    `json:"damage"`
	Reward int    `json:"reward"`
}

// DefeatSummary reports the outcome of one kill: who got paid, which
// faction won, and who dealt the most damage.
type DefeatSummary struct {
	BossName      string       `json:"boss"`
	Pool          int          `json:"pool"`
	Participants  int          `json:"participants"`
	Rewards       []RewardLine `json:"rewards"`
	WinnerFaction Faction      `json:"winner_faction,omitempty"`
	TopUserID     string       `json:"top_user_id,omitempty"`
	TopDamage     int          `json:"top_damage,omitempty"`
	Trophies      []string     `json:"trophies,omitempty"`
}

// handleDefeat pays out a kill exactly once. The first caller to observe a
// dead boss with a non-empty tally claims the kill by resetting the fight
// state *before* computing payouts; a concurrent second caller reloads an
// already-empty tally and becomes a no-op. The empty tally is the
// idempotency guard — there is no separate flag.
func (e *Engine) handleDefeat(ctx context.Context) (*DefeatSummary, error) {
	e.mu.Lock()
	b := e.store.LoadBoss()
	if b.Alive() || len(b.Tally) == 0 {
		e.mu.Unlock()
		return nil, nil
	}

	name := b.Name
	trophyURL := b.TrophyURL
	tally := b.Tally
	factionDamage := b.FactionDamage

	b.HP = 0
	b.Tally = make(map[string]int)
	b.FactionDamage = make(map[Faction]int)
	b.LastActions = nil
	b.Shield = nil

	if err := e.store.SaveBoss(b); err != nil {
		// The reset never committed, so the tally survives and the next
		// observer retries the claim.
		e.mu.Unlock()
		return nil, fmt.Errorf("persist kill reset: %w", err)
	}
	e.mu.Unlock()

	summary := e.computePayouts(name, tally, factionDamage)

	for _, line := range summary.Rewards {
		if err := e.creditGold(line.UserID, line.Reward, fmt.Sprintf("Boss: %s kill", name)); err != nil {
			e.log.WithError(err).WithField("user", line.UserID).Warn("reward payout failed")
		}
	}

	if trophyURL != "" {
		summary.Trophies = e.grantTrophies(summary.Rewards, trophyURL)
	}

	e.announcer.Publish(ctx, Event{
		Type:    EventBossDefeated,
		Time:    e.now(),
		Boss:    name,
		Message: fmt.Sprintf("%s defeated! %d raiders share a pool of %d gold.", name, summary.Participants, summary.Pool),
		Payload: summary,
	})
	return &summary, nil
}

// computePayouts derives the pool, per-player rewards, the winning faction,
// and the top damager from a captured tally.
func (e *Engine) computePayouts(name string, tally map[string]int, factionDamage map[Faction]int) DefeatSummary {
	total := 0
	for _, d := range tally {
		total += d
	}
	if total <= 0 {
		total = 1
	}
	participants := len(tally)
	if participants < 1 {
		participants = 1
	}

	pool := e.cfg.Reward.PerPlayer * participants
	if floor := e.cfg.Reward.Min * participants; pool < floor {
		pool = floor
	}

	rewards := make([]RewardLine, 0, len(tally))
	for uid, dmg := range tally {
		share := float64(dmg) / float64(total)
		reward := int(float64(pool) * share)
		if reward < e.cfg.Reward.Min {
			reward = e.cfg.Reward.Min
		}
		if reward > e.cfg.Reward.Max {
			reward = e.cfg.Reward.Max
		}
		rewards = append(rewards, RewardLine{UserID: uid, Damage: dmg, Reward: reward})
	}
	sort.Slice(rewards, func(i, j int) bool {
		if rewards[i].Damage != rewards[j].Damage {
			return rewards[i].Damage > rewards[j].Damage
		}
		return rewards[i].UserID < rewards[j].UserID
	})

	summary := DefeatSummary{
		BossName:     name,
		Pool:         pool,
		Participants: len(tally),
		Rewards:      rewards,
	}
	if len(rewards) > 0 {
		summary.TopUserID = rewards[0].UserID
		summary.TopDamage = rewards[0].Damage
	}
	summary.WinnerFaction = e.winnerFaction(tally, factionDamage)
	return summary
}

// winnerFaction prefers the running per-faction counter maintained on every
// attack; when it is empty (legacy documents), it falls back to mapping the
// tally through live profile factions.
func (e *Engine) winnerFaction(tally map[string]int, factionDamage map[Faction]int) Faction {
	totals := make(map[Faction]int, len(factionDamage))
	for f, d := range factionDamage {
		if f.Valid() && d > 0 {
			totals[f] = d
		}
	}
	if len(totals) == 0 {
		for uid, dmg := range tally {
			if f := e.factionOf(uid); f.Valid() {
				totals[f] += dmg
			}
		}
	}
	var winner Faction
	best := 0
	for _, f := range Factions() { // fixed order keeps ties deterministic
		if totals[f] > best {
			best = totals[f]
			winner = f
		}
	}
	return winner
}

func (e *Engine) creditGold(uid string, amount int, note string) error {
	if err := e.profiles.Mutate(uid, func(p *PlayerProfile) {
		p.Gold += amount
	}); err != nil {
		return err
	}
	return e.profiles.RecordTransaction(uid, amount, note)
}

// grantTrophies adds the boss trophy to the top-N participants' inventories.
// Grants are idempotent per trophy path.
func (e *Engine) grantTrophies(rewards []RewardLine, trophyURL string) []string {
	n := e.cfg.Reward.AwardTopN
	if n > len(rewards) {
		n = len(rewards)
	}
	granted := make([]string, 0, n)
	for _, line := range rewards[:n] {
		uid := line.UserID
		err := e.profiles.Mutate(uid, func(p *PlayerProfile) {
			for _, item := range p.Inventory {
				if item == trophyURL {
					return
				}
			}
			p.Inventory = append(p.Inventory, trophyURL)
		})
		if err != nil {
			e.log.WithError(err).WithField("user", uid).Warn("trophy grant failed")
			continue
		}
		granted = append(granted, uid)
	}
	return granted
}
