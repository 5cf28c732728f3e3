package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"hollowgrove/bot/internal/raid"
)

// Transaction is one gold movement in a player's audit trail.
type Transaction struct {
	ID    string    `json:"id"`
	TS    time.Time `json:"ts"`
	Delta int       `json:"delta"`
	Note  string    `json:"note,omitempty"`
}

// profileRecord is the persisted per-player shape. Timestamps are unix
// seconds, matching the original ledger files.
type profileRecord struct {
	Faction      raid.Faction  `json:"faction,omitempty"`
	Gold         int           `json:"gold"`
	Energy       int           `json:"energy"`
	EnergyAnchor int64         `json:"energy_anchor,omitempty"`
	DailyClaim   int64         `json:"daily_claim,omitempty"`
	BuyLog       []int64       `json:"buy_log,omitempty"`
	Inventory    []string      `json:"inventory,omitempty"`
	Transactions []Transaction `json:"transactions,omitempty"`
}

const maxTransactions = 200

// Profiles is a JSON-file player store implementing raid.ProfileStore.
// Every mutation rewrites the whole file atomically; the map is small (one
// community's players) and correctness beats write amplification here.
type Profiles struct {
	path string
	log  *logrus.Entry

	mu   sync.Mutex
	data map[string]*profileRecord
}

// OpenProfiles loads profiles.json, treating a missing file as empty and
// quarantining a corrupt one.
func OpenProfiles(dir string, log *logrus.Entry) (*Profiles, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	p := &Profiles{
		path: filepath.Join(dir, "profiles.json"),
		log:  log.WithField("component", "profiles"),
		data: make(map[string]*profileRecord),
	}

	raw, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	if err := json.Unmarshal(raw, &p.data); err != nil {
		dst := fmt.Sprintf("%s.bad-%d", p.path, time.Now().Unix())
		if rerr := os.Rename(p.path, dst); rerr != nil {
			return nil, fmt.Errorf("quarantine corrupt profiles: %v (parse: %w)", rerr, err)
		}
		p.log.WithField("path", dst).Warn("quarantined corrupt profiles")
		p.data = make(map[string]*profileRecord)
	}
	return p, nil
}

// View returns a copy of the player's ledger fields. Unknown players are an
// error so callers can distinguish "never seen" from a zero profile.
func (p *Profiles) View(uid string) (raid.PlayerProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.data[uid]
	if !ok {
		return raid.PlayerProfile{}, fmt.Errorf("no profile for %q", uid)
	}
	return rec.toProfile(), nil
}

// Mutate applies fn to the player's profile (created on first touch) and
// persists the result. The file write happens under the store lock, so the
// read-modify-write span is atomic per process.
func (p *Profiles) Mutate(uid string, fn func(*raid.PlayerProfile)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.data[uid]
	if !ok {
		rec = &profileRecord{}
		p.data[uid] = rec
	}
	prof := rec.toProfile()
	fn(&prof)
	rec.fromProfile(prof)
	return p.flushLocked()
}

// RecordTransaction appends an audit entry, trimming the oldest past the
// per-player cap.
func (p *Profiles) RecordTransaction(uid string, delta int, note string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.data[uid]
	if !ok {
		rec = &profileRecord{}
		p.data[uid] = rec
	}
	rec.Transactions = append(rec.Transactions, Transaction{
		ID:    uuid.NewString(),
		TS:    time.Now().UTC(),
		Delta: delta,
		Note:  note,
	})
	if len(rec.Transactions) > maxTransactions {
		rec.Transactions = rec.Transactions[len(rec.Transactions)-maxTransactions:]
	}
	return p.flushLocked()
}

// Transactions returns a copy of the player's audit trail, newest last.
func (p *Profiles) Transactions(uid string) []Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.data[uid]
	if !ok {
		return nil
	}
	out := make([]Transaction, len(rec.Transactions))
	copy(out, rec.Transactions)
	return out
}

func (p *Profiles) flushLocked() error {
	raw, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}
	if err := writeAtomic(p.path, raw); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	return nil
}

func (r *profileRecord) toProfile() raid.PlayerProfile {
	prof := raid.PlayerProfile{
		Faction:   r.Faction,
		Gold:      r.Gold,
		Energy:    r.Energy,
		Inventory: append([]string(nil), r.Inventory...),
	}
	if r.EnergyAnchor > 0 {
		prof.EnergyAnchor = time.Unix(r.EnergyAnchor, 0)
	}
	if r.DailyClaim > 0 {
		prof.DailyClaim = time.Unix(r.DailyClaim, 0)
	}
	for _, ts := range r.BuyLog {
		prof.BuyLog = append(prof.BuyLog, time.Unix(ts, 0))
	}
	return prof
}

func (r *profileRecord) fromProfile(prof raid.PlayerProfile) {
	r.Faction = prof.Faction
	r.Gold = prof.Gold
	r.Energy = prof.Energy
	r.Inventory = prof.Inventory
	if prof.EnergyAnchor.IsZero() {
		r.EnergyAnchor = 0
	} else {
		r.EnergyAnchor = prof.EnergyAnchor.Unix()
	}
	if prof.DailyClaim.IsZero() {
		r.DailyClaim = 0
	} else {
		r.DailyClaim = prof.DailyClaim.Unix()
	}
	r.BuyLog = r.BuyLog[:0]
	for _, ts := range prof.BuyLog {
		r.BuyLog = append(r.BuyLog, ts.Unix())
	}
}
