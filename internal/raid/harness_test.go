package raid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// memBossStore is an in-memory BossStore that round-trips through JSON on
// every load, mimicking the file store's copy semantics.
type memBossStore struct {
	mu       sync.Mutex
	b        BossState
	failSave bool
	saves    int
}

func newMemBossStore(b BossState) *memBossStore {
	return &memBossStore{b: b}
}

func (s *memBossStore) LoadBoss() BossState {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(s.b)
	if err != nil {
		panic(err)
	}
	var b BossState
	if err := json.Unmarshal(raw, &b); err != nil {
		panic(err)
	}
	b.Normalize()
	return b
}

func (s *memBossStore) SaveBoss(b BossState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("simulated write failure")
	}
	s.b = b
	s.saves++
	return nil
}

func (s *memBossStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type txRecord struct {
	UID   string
	Delta int
	Note  string
}

// memProfileStore is an in-memory ProfileStore. Mutate creates profiles on
// demand; View reports missing players as errors, like the file store.
type memProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*PlayerProfile
	txs      []txRecord
}

func newMemProfiles() *memProfileStore {
	return &memProfileStore{profiles: make(map[string]*PlayerProfile)}
}

func (s *memProfileStore) put(uid string, p PlayerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.profiles[uid] = &cp
}

func (s *memProfileStore) View(uid string) (PlayerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return PlayerProfile{}, fmt.Errorf("no profile for %q", uid)
	}
	return *p, nil
}

func (s *memProfileStore) Mutate(uid string, fn func(*PlayerProfile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		p = &PlayerProfile{}
		s.profiles[uid] = p
	}
	fn(p)
	return nil
}

func (s *memProfileStore) RecordTransaction(uid string, delta int, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, txRecord{UID: uid, Delta: delta, Note: note})
	return nil
}

func (s *memProfileStore) transactions() []txRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]txRecord, len(s.txs))
	copy(out, s.txs)
	return out
}

type staticCatalog Catalog

func (c staticCatalog) Catalog() Catalog { return Catalog(c) }

// eventRecorder captures published events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) byType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestEngine(store BossStore, profiles ProfileStore, cfg Config, announcer Announcer) *Engine {
	return NewEngine(store, staticCatalog{}, profiles, cfg, rand.New(rand.NewSource(1)), announcer, quietLogger())
}

// deterministicDamage removes the random inputs so a hit's damage is a pure
// function of config and boss state.
func deterministicDamage(cfg *Config) {
	cfg.Damage.JitterLow = 1.0
	cfg.Damage.JitterHigh = 1.0
	cfg.Damage.CritChance = 0
}

func hasEffect(effects []string, substr string) bool {
	for _, e := range effects {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func seedEnergy(profiles *memProfileStore, uid string, energy int, faction Faction, now time.Time) {
	profiles.put(uid, PlayerProfile{Faction: faction, Energy: energy, EnergyAnchor: now})
}
