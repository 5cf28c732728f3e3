package raid

import (
	"testing"
	"time"
)

func newTestLedger(profiles *memProfileStore, now time.Time) *Ledger {
	l := NewLedger(profiles, DefaultConfig().Energy)
	l.now = func() time.Time { return now }
	return l
}

func TestRegenAdvancesByWholeTicksOnly(t *testing.T) {
	t.Parallel()

	now := time.Now()
	profiles := newMemProfiles()
	anchor := now.Add(-65 * time.Minute)
	profiles.put("u1", PlayerProfile{Energy: 1, EnergyAnchor: anchor})

	l := newTestLedger(profiles, now)
	cur, err := l.Materialize("u1")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	// 65 minutes at 20 min/tick is exactly 3 ticks.
	if cur != 4 {
		t.Fatalf("expected 1+3 energy after 65 minutes, got %d", cur)
	}

	p, err := profiles.View("u1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	// The anchor advances by the ticks consumed, never to wall-clock now,
	// so the leftover 5 minutes keep counting toward the next tick.
	want := anchor.Add(60 * time.Minute)
	if !p.EnergyAnchor.Equal(want) {
		t.Fatalf("expected anchor %v, got %v", want, p.EnergyAnchor)
	}
}

func TestRegenReanchorsAtCap(t *testing.T) {
	t.Parallel()

	now := time.Now()
	profiles := newMemProfiles()
	profiles.put("u1", PlayerProfile{Energy: 5, EnergyAnchor: now.Add(-3 * time.Hour)})

	l := newTestLedger(profiles, now)
	cur, err := l.Materialize("u1")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if cur != 5 {
		t.Fatalf("expected the cap to hold at 5, got %d", cur)
	}
	p, _ := profiles.View("u1")
	if !p.EnergyAnchor.Equal(now) {
		t.Fatalf("expected the anchor to reset to now at the cap, got %v", p.EnergyAnchor)
	}
}

func TestSpendInsufficientLeavesProfileUntouched(t *testing.T) {
	t.Parallel()

	now := time.Now()
	profiles := newMemProfiles()
	profiles.put("u1", PlayerProfile{Energy: 0, EnergyAnchor: now})

	l := newTestLedger(profiles, now)
	ok, left, err := l.Spend("u1", 1)
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if ok {
		t.Fatalf("expected the spend to refuse at zero energy")
	}
	if left != 0 {
		t.Fatalf("expected 0 left, got %d", left)
	}
	p, _ := profiles.View("u1")
	if p.Energy != 0 {
		t.Fatalf("expected the profile untouched, got %d energy", p.Energy)
	}
}

func TestSpendThenRegen(t *testing.T) {
	t.Parallel()

	start := time.Now()
	now := start
	profiles := newMemProfiles()
	profiles.put("u1", PlayerProfile{Energy: 5, EnergyAnchor: start})

	l := NewLedger(profiles, DefaultConfig().Energy)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		ok, _, err := l.Spend("u1", 1)
		if err != nil || !ok {
			t.Fatalf("spend %d failed: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _, _ := l.Spend("u1", 1); ok {
		t.Fatalf("expected the sixth spend to refuse")
	}

	// The cap re-anchored on every at-cap materialize, so regen counts
	// from the first spend.
	now = start.Add(20 * time.Minute)
	cur, err := l.Materialize("u1")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if cur != 1 {
		t.Fatalf("expected exactly one regen tick after 20 minutes, got %d", cur)
	}
}

func TestClaimDailyWindow(t *testing.T) {
	t.Parallel()

	start := time.Now()
	now := start
	profiles := newMemProfiles()
	profiles.put("u1", PlayerProfile{Energy: 0, EnergyAnchor: start})

	l := NewLedger(profiles, DefaultConfig().Energy)
	l.now = func() time.Time { return now }

	res, err := l.ClaimDaily("u1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !res.OK || res.Granted != 5 || res.Total != 5 {
		t.Fatalf("expected a full 5-energy grant, got %+v", res)
	}

	// Spend one so the at-max refusal doesn't mask the window refusal.
	now = start.Add(time.Hour)
	if ok, _, _ := l.Spend("u1", 1); !ok {
		t.Fatalf("expected the spend to succeed")
	}
	res, err = l.ClaimDaily("u1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.OK {
		t.Fatalf("expected the second claim inside 24h to refuse, got %+v", res)
	}
	if res.Remaining != 23*time.Hour {
		t.Fatalf("expected 23h remaining, got %v", res.Remaining)
	}

	// Past the window the claim opens again. Regen refilled to the cap by
	// now, so spend down first; the grant clamps to the remaining headroom.
	now = start.Add(25 * time.Hour)
	for i := 0; i < 2; i++ {
		if ok, _, _ := l.Spend("u1", 1); !ok {
			t.Fatalf("expected spend %d to succeed", i)
		}
	}
	res, err = l.ClaimDaily("u1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !res.OK || res.Granted != 2 || res.Total != 5 {
		t.Fatalf("expected a headroom-clamped claim after the window, got %+v", res)
	}
}

func TestClaimDailyRefusesAtMax(t *testing.T) {
	t.Parallel()

	now := time.Now()
	profiles := newMemProfiles()
	profiles.put("u1", PlayerProfile{Energy: 5, EnergyAnchor: now})

	l := newTestLedger(profiles, now)
	res, err := l.ClaimDaily("u1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.OK {
		t.Fatalf("expected the claim to refuse at max energy, got %+v", res)
	}
	p, _ := profiles.View("u1")
	if !p.DailyClaim.IsZero() {
		t.Fatalf("expected a refused claim to leave the window closed")
	}
}

func TestPurchaseLogRollingWindow(t *testing.T) {
	t.Parallel()

	now := time.Now()
	profiles := newMemProfiles()
	profiles.put("u1", PlayerProfile{
		Energy:       0,
		EnergyAnchor: now,
		BuyLog: []time.Time{
			now.Add(-30 * time.Hour),
			now.Add(-25 * time.Hour),
			now.Add(-2 * time.Hour),
			now.Add(-time.Hour),
		},
	})

	l := newTestLedger(profiles, now)
	used, err := l.PurchasesUsed("u1")
	if err != nil {
		t.Fatalf("purchases: %v", err)
	}
	if used != 2 {
		t.Fatalf("expected the stale entries trimmed, got %d used", used)
	}

	allowed, _, err := l.BuyAllowed("u1")
	if err != nil {
		t.Fatalf("allowed: %v", err)
	}
	if !allowed {
		t.Fatalf("expected 2/5 purchases to leave room")
	}

	for i := 0; i < 3; i++ {
		if err := l.RecordPurchase("u1"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	allowed, used, err = l.BuyAllowed("u1")
	if err != nil {
		t.Fatalf("allowed: %v", err)
	}
	if allowed || used != 5 {
		t.Fatalf("expected the cap at 5 purchases, got allowed=%v used=%d", allowed, used)
	}
}
