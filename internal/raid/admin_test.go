package raid

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"
)

func TestSpawnDefaultsAndOverrides(t *testing.T) {
	t.Parallel()

	store := newMemBossStore(DefaultBoss())
	rec := &eventRecorder{}
	e := newTestEngine(store, newMemProfiles(), DefaultConfig(), rec)
	ctx := context.Background()

	b, err := e.Spawn(ctx, SpawnParams{})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if b.HP != 500_000 || b.MaxHP != 500_000 {
		t.Fatalf("expected the daily default hp, got %d/%d", b.HP, b.MaxHP)
	}
	if b.Phase != 1 || len(b.Tally) != 0 {
		t.Fatalf("expected a fresh encounter, got %+v", b)
	}

	b, err = e.Spawn(ctx, SpawnParams{Tier: "weekly", Name: "Weekly Horror", Weakness: "mistveil"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if b.HP != 1_000_000 {
		t.Fatalf("expected the weekly default hp, got %d", b.HP)
	}
	if b.Name != "Weekly Horror" || b.Weakness != FactionMistveil {
		t.Fatalf("expected the overrides applied, got %q %q", b.Name, b.Weakness)
	}

	if _, err := e.Spawn(ctx, SpawnParams{Weakness: "dragons"}); err == nil {
		t.Fatalf("expected an unknown faction to be rejected")
	}
	if got := rec.byType(EventBossSpawned); len(got) != 2 {
		t.Fatalf("expected two spawn announcements, got %d", len(got))
	}
}

func TestUsePresetAppliesCatalogEntry(t *testing.T) {
	t.Parallel()

	cat := staticCatalog{
		"rotking": Preset{
			Name:      "The Rot King",
			Weakness:  FactionThorned,
			MaxHP:     250_000,
			TrophyURL: "https://cdn.example/rotking-trophy.png",
			PhaseImages: map[string]string{
				"2": "https://cdn.example/rotking-p2.png",
			},
		},
	}
	store := newMemBossStore(DefaultBoss())
	e := NewEngine(store, cat, newMemProfiles(), DefaultConfig(), rand.New(rand.NewSource(1)), nil, quietLogger())
	ctx := context.Background()

	b, err := e.UsePreset(ctx, "rotking", 0)
	if err != nil {
		t.Fatalf("use preset: %v", err)
	}
	if b.Name != "The Rot King" || b.HP != 250_000 || b.Weakness != FactionThorned {
		t.Fatalf("expected the preset applied, got %+v", b)
	}
	if b.Key != "rotking" || !b.HasPhaseTwoImage() {
		t.Fatalf("expected the preset identity carried over, got %+v", b)
	}

	b, err = e.UsePreset(ctx, "rotking", 42_000)
	if err != nil {
		t.Fatalf("use preset: %v", err)
	}
	if b.HP != 42_000 || b.MaxHP != 42_000 {
		t.Fatalf("expected the hp override, got %d/%d", b.HP, b.MaxHP)
	}

	if _, err := e.UsePreset(ctx, "missing", 0); err == nil {
		t.Fatalf("expected an unknown preset to be rejected")
	}
}

func TestSetHPRaisesMax(t *testing.T) {
	t.Parallel()

	store := newMemBossStore(attackableBoss(500, 1000))
	e := newTestEngine(store, newMemProfiles(), DefaultConfig(), nil)
	ctx := context.Background()

	b, err := e.SetHP(ctx, 5000)
	if err != nil {
		t.Fatalf("set hp: %v", err)
	}
	if b.HP != 5000 || b.MaxHP != 5000 {
		t.Fatalf("expected max raised with hp, got %d/%d", b.HP, b.MaxHP)
	}

	b, err = e.SetHP(ctx, -5)
	if err != nil {
		t.Fatalf("set hp: %v", err)
	}
	if b.HP != 0 {
		t.Fatalf("expected negative hp clamped to zero, got %d", b.HP)
	}
}

func TestAddAndClearShield(t *testing.T) {
	t.Parallel()

	store := newMemBossStore(attackableBoss(1000, 1000))
	rec := &eventRecorder{}
	e := newTestEngine(store, newMemProfiles(), DefaultConfig(), rec)
	ctx := context.Background()

	b, err := e.AddShield(ctx, "bramble", 0)
	if err != nil {
		t.Fatalf("add shield: %v", err)
	}
	if b.Shield == nil || b.Shield.Kind != ShieldBramble || b.Shield.HP != 80 {
		t.Fatalf("expected the default bramble size, got %+v", b.Shield)
	}
	if got := rec.byType(EventShieldSpawned); len(got) != 1 {
		t.Fatalf("expected a shield announcement, got %d", len(got))
	}

	b, err = e.AddShield(ctx, "veil", 0.25)
	if err != nil {
		t.Fatalf("add shield: %v", err)
	}
	if b.Shield == nil || b.Shield.Kind != ShieldVeil || b.Shield.HP != 250 {
		t.Fatalf("expected the sized veil, got %+v", b.Shield)
	}

	if _, err := e.AddShield(ctx, "mirror", 0); err == nil {
		t.Fatalf("expected an unknown shield kind to be rejected")
	}

	b, err = e.ClearShield(ctx)
	if err != nil {
		t.Fatalf("clear shield: %v", err)
	}
	if b.Shield != nil {
		t.Fatalf("expected the shield cleared, got %+v", b.Shield)
	}
}

func TestWipeKeepsIdentity(t *testing.T) {
	t.Parallel()

	boss := attackableBoss(700, 1000)
	boss.Tally = map[string]int{"u1": 300}
	boss.FactionDamage = map[Faction]int{FactionGilded: 300}
	boss.AppendAction(AttackAction{ID: "a1", TS: time.Now(), UserID: "u1", Damage: 300})
	store := newMemBossStore(boss)
	e := newTestEngine(store, newMemProfiles(), DefaultConfig(), nil)

	b, err := e.Wipe(context.Background())
	if err != nil {
		t.Fatalf("wipe: %v", err)
	}
	if len(b.Tally) != 0 || len(b.FactionDamage) != 0 || len(b.LastActions) != 0 {
		t.Fatalf("expected the progress wiped, got %+v", b)
	}
	if b.HP != 700 || b.Name != "Test Boss" {
		t.Fatalf("expected hp and identity untouched, got %+v", b)
	}
}

func TestRotateNowAndConfig(t *testing.T) {
	t.Parallel()

	boss := attackableBoss(1000, 1000)
	boss.Weakness = FactionGilded
	store := newMemBossStore(boss)
	rec := &eventRecorder{}
	e := newTestEngine(store, newMemProfiles(), DefaultConfig(), rec)
	ctx := context.Background()

	b, err := e.RotateNow(ctx)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if b.Weakness != FactionMistveil {
		t.Fatalf("expected gilded to rotate to mistveil, got %q", b.Weakness)
	}
	if got := rec.byType(EventWeaknessRotated); len(got) != 1 {
		t.Fatalf("expected a rotation announcement, got %d", len(got))
	}

	enabled := false
	minutes := 7
	b, err = e.SetRotate(ctx, &enabled, &minutes)
	if err != nil {
		t.Fatalf("set rotate: %v", err)
	}
	if b.Rotate.Enabled || b.Rotate.Minutes != 7 {
		t.Fatalf("expected the rotation config applied, got %+v", b.Rotate)
	}

	// A dead boss refuses a manual rotation.
	if _, err := e.SetHP(ctx, 0); err != nil {
		t.Fatalf("set hp: %v", err)
	}
	if _, err := e.RotateNow(ctx); err == nil {
		t.Fatalf("expected a dead boss to refuse rotation")
	}
}

func TestParticipantsFilterAndOrder(t *testing.T) {
	t.Parallel()

	boss := attackableBoss(1000, 1000)
	boss.Tally = map[string]int{"a": 50, "b": 300, "c": 300, "d": 120}
	store := newMemBossStore(boss)
	e := newTestEngine(store, newMemProfiles(), DefaultConfig(), nil)

	got := e.Participants(100)
	want := []Participant{{UserID: "b", Damage: 300}, {UserID: "c", Damage: 300}, {UserID: "d", Damage: 120}}
	if len(got) != len(want) {
		t.Fatalf("expected %d participants, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("participant %d mismatch: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestBuyEnergyCapsAndCharges(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := newMemBossStore(attackableBoss(1000, 1000))
	profiles := newMemProfiles()
	profiles.put("u1", PlayerProfile{Gold: 10_000, Energy: 3, EnergyAnchor: now})
	e := newTestEngine(store, profiles, DefaultConfig(), nil)

	// Headroom is 2 even though 5 were requested.
	res, err := e.BuyEnergy("u1", 5)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !res.OK || res.Bought != 2 || res.Cost != 2000 || res.Total != 5 {
		t.Fatalf("expected a headroom-clamped purchase, got %+v", res)
	}
	p, _ := profiles.View("u1")
	if p.Gold != 8000 {
		t.Fatalf("expected 2000 gold charged, got %d left", p.Gold)
	}
	if len(p.BuyLog) != 1 {
		t.Fatalf("expected the purchase logged, got %v", p.BuyLog)
	}

	// At max the shop refuses before charging.
	res, err = e.BuyEnergy("u1", 1)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.OK {
		t.Fatalf("expected a refusal at max energy, got %+v", res)
	}
	if p, _ := profiles.View("u1"); p.Gold != 8000 {
		t.Fatalf("expected no charge on refusal, got %d", p.Gold)
	}
}

func TestBuyEnergyInsufficientGold(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := newMemBossStore(attackableBoss(1000, 1000))
	profiles := newMemProfiles()
	profiles.put("u1", PlayerProfile{Gold: 500, Energy: 0, EnergyAnchor: now})
	e := newTestEngine(store, profiles, DefaultConfig(), nil)

	res, err := e.BuyEnergy("u1", 1)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.OK {
		t.Fatalf("expected a refusal on insufficient gold, got %+v", res)
	}
	p, _ := profiles.View("u1")
	if p.Gold != 500 || p.Energy != 0 {
		t.Fatalf("expected the profile untouched, got %+v", p)
	}
}

func TestBuyEnergyDailyCap(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := newMemBossStore(attackableBoss(1000, 1000))
	profiles := newMemProfiles()
	log := make([]time.Time, 5)
	for i := range log {
		log[i] = now.Add(-time.Duration(i+1) * time.Hour)
	}
	profiles.put("u1", PlayerProfile{Gold: 10_000, Energy: 0, EnergyAnchor: now, BuyLog: log})
	e := newTestEngine(store, profiles, DefaultConfig(), nil)

	res, err := e.BuyEnergy("u1", 1)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.OK {
		t.Fatalf("expected the 24h purchase cap to refuse, got %+v", res)
	}
}

// flakyProfiles fails Mutate on demand without applying the mutation,
// like a full disk under the file store.
type flakyProfiles struct {
	*memProfileStore
	failMutate bool
}

func (f *flakyProfiles) Mutate(uid string, fn func(*PlayerProfile)) error {
	if f.failMutate {
		return errors.New("simulated write failure")
	}
	return f.memProfileStore.Mutate(uid, fn)
}

func TestBuyEnergyStoreFailureChargesNothing(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := newMemBossStore(attackableBoss(1000, 1000))
	inner := newMemProfiles()
	inner.put("u1", PlayerProfile{Gold: 10_000, Energy: 0, EnergyAnchor: now})
	profiles := &flakyProfiles{memProfileStore: inner}
	e := newTestEngine(store, profiles, DefaultConfig(), nil)

	profiles.failMutate = true
	if _, err := e.BuyEnergy("u1", 5); err == nil {
		t.Fatalf("expected the store failure surfaced")
	}
	profiles.failMutate = false

	p, err := inner.View("u1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if p.Gold != 10_000 || p.Energy != 0 {
		t.Fatalf("expected gold and energy untouched after the failure, got %+v", p)
	}
	if len(p.BuyLog) != 0 {
		t.Fatalf("expected no purchase logged, got %v", p.BuyLog)
	}

	// A retry against a healthy store completes the purchase normally.
	res, err := e.BuyEnergy("u1", 5)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !res.OK || res.Bought != 5 || res.Cost != 5000 {
		t.Fatalf("expected the retry to buy 5, got %+v", res)
	}
	if p, _ := inner.View("u1"); p.Gold != 5000 || p.Energy != 5 {
		t.Fatalf("expected 5000 gold for 5 energy, got %+v", p)
	}
}

func TestBuyEnergyConcurrentStopsAtCap(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := newMemBossStore(attackableBoss(1000, 1000))
	profiles := newMemProfiles()
	profiles.put("u1", PlayerProfile{Gold: 1_000_000, Energy: 0, EnergyAnchor: now})

	cfg := DefaultConfig()
	cfg.Energy.BuyLimitPer24h = 100
	e := newTestEngine(store, profiles, cfg, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	bought, charged := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.BuyEnergy("u1", 5)
			if err != nil {
				t.Errorf("buy: %v", err)
				return
			}
			mu.Lock()
			bought += res.Bought
			charged += res.Cost
			mu.Unlock()
		}()
	}
	wg.Wait()

	if bought != 5 {
		t.Fatalf("expected exactly the energy headroom sold, got %d", bought)
	}
	if charged != 5*cfg.Energy.ShopPrice {
		t.Fatalf("expected the charge to match the energy delivered, got %d", charged)
	}
	p, _ := profiles.View("u1")
	if p.Energy != 5 || p.Gold != 1_000_000-charged {
		t.Fatalf("expected 5 energy for %d gold, got %+v", charged, p)
	}
}

func TestEnergyStatusReportsClaimWindow(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := newMemBossStore(attackableBoss(1000, 1000))
	profiles := newMemProfiles()
	profiles.put("u1", PlayerProfile{Energy: 2, EnergyAnchor: now, DailyClaim: now.Add(-time.Hour)})
	e := newTestEngine(store, profiles, DefaultConfig(), nil)

	status, err := e.EnergyStatusFor("u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Energy != 2 || status.Max != 5 || status.RegenMinutes != 20 {
		t.Fatalf("expected the resource view, got %+v", status)
	}
	if status.NextClaimIn <= 0 || status.NextClaimIn > 23*time.Hour {
		t.Fatalf("expected roughly 23h to the next claim, got %v", status.NextClaimIn)
	}
}
