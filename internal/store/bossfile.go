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

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"hollowgrove/bot/internal/raid"
)

// BossDocument is the persisted shape of boss.json. The catalog lives in its
// own record (catalog.json) so no boss save can ever destroy it.
type BossDocument struct {
	Version int            `json:"version" jsonschema:"minimum=1"`
	Boss    raid.BossState `json:"boss"`
	SavedAt time.Time      `json:"saved_at"`
}

// DocumentVersion is bumped when the persisted shape changes.
const DocumentVersion = 1

// legacyDocument is the old single-file layout that embedded the preset
// catalog next to the boss. Loading one migrates the catalog out.
type legacyDocument struct {
	Boss    *raid.BossState `json:"boss"`
	Catalog raid.Catalog    `json:"catalog"`
}

// BossFile persists the boss document and the preset catalog as two JSON
// records under one directory. Writes are temp+rename atomic with a
// best-effort .bak of the previous contents; corrupt files are quarantined,
// never deleted.
type BossFile struct {
	path        string
	catalogPath string
	seedPath    string
	log         *logrus.Entry

	mu      sync.Mutex
	catalog raid.Catalog
}

// OpenBossFile prepares the store under dir. seedPath may name a YAML preset
// file used to populate the catalog on first run; it is ignored once
// catalog.json exists.
func OpenBossFile(dir, seedPath string, log *logrus.Entry) (*BossFile, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &BossFile{
		path:        filepath.Join(dir, "boss.json"),
		catalogPath: filepath.Join(dir, "catalog.json"),
		seedPath:    seedPath,
		log:         log.WithField("component", "store"),
	}
	if err := s.initCatalog(); err != nil {
		return nil, err
	}
	return s, nil
}

// initCatalog establishes catalog.json: from the existing record, from a
// legacy embedded catalog inside boss.json, or from the YAML seed.
func (s *BossFile) initCatalog() error {
	if raw, err := os.ReadFile(s.catalogPath); err == nil {
		var cat raid.Catalog
		if jerr := json.Unmarshal(raw, &cat); jerr == nil {
			s.catalog = cat
			return nil
		}
		s.quarantine(s.catalogPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read catalog: %w", err)
	}

	if cat := s.liftLegacyCatalog(); len(cat) > 0 {
		s.catalog = cat
		return s.writeCatalog()
	}

	if s.seedPath != "" {
		cat, err := loadPresetSeed(s.seedPath)
		if err != nil {
			return err
		}
		if len(cat) > 0 {
			s.log.WithField("presets", len(cat)).Info("seeded catalog")
			s.catalog = cat
			return s.writeCatalog()
		}
	}

	s.catalog = raid.Catalog{}
	return s.writeCatalog()
}

// liftLegacyCatalog pulls an embedded catalog out of an old-format
// boss.json. The boss file itself is left alone; the next save rewrites it
// in the current shape.
func (s *BossFile) liftLegacyCatalog() raid.Catalog {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var legacy legacyDocument
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil
	}
	if len(legacy.Catalog) > 0 {
		s.log.WithField("presets", len(legacy.Catalog)).Info("migrated embedded catalog")
	}
	return legacy.Catalog
}

func loadPresetSeed(path string) (raid.Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read preset seed: %w", err)
	}
	var cat raid.Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("parse preset seed: %w", err)
	}
	return cat, nil
}

// LoadBoss reads the persisted boss, falling back to the default template.
// It never fails: a missing file is a fresh install and a corrupt one is
// quarantined for inspection.
func (s *BossFile) LoadBoss() raid.BossState {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.WithError(err).Warn("boss read failed, using default")
		}
		return defaultBoss()
	}

	var doc BossDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.quarantine(s.path)
		return defaultBoss()
	}
	if doc.Boss.Name == "" {
		// Empty or legacy-empty document; start from the template.
		return defaultBoss()
	}

	b := doc.Boss
	b.Normalize()
	return b
}

func defaultBoss() raid.BossState {
	b := raid.DefaultBoss()
	b.Normalize()
	return b
}

// SaveBoss atomically replaces boss.json, keeping the previous contents in
// boss.json.bak.
func (s *BossFile) SaveBoss(b raid.BossState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := BossDocument{Version: DocumentVersion, Boss: b, SavedAt: time.Now().UTC()}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode boss: %w", err)
	}
	if err := writeAtomic(s.path, raw); err != nil {
		return fmt.Errorf("write boss: %w", err)
	}
	return nil
}

// Catalog returns the preset table loaded at startup.
func (s *BossFile) Catalog() raid.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(raid.Catalog, len(s.catalog))
	for k, v := range s.catalog {
		out[k] = v
	}
	return out
}

// ReloadCatalog re-reads catalog.json, for the explicit admin reload
// operation. On parse failure the in-memory table is kept.
func (s *BossFile) ReloadCatalog() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.catalogPath)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var cat raid.Catalog
	if err := json.Unmarshal(raw, &cat); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	s.catalog = cat
	return nil
}

func (s *BossFile) writeCatalog() error {
	raw, err := json.MarshalIndent(s.catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := writeAtomic(s.catalogPath, raw); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

// quarantine renames an unreadable file aside with a timestamp suffix so a
// human can inspect it later.
func (s *BossFile) quarantine(path string) {
	dst := fmt.Sprintf("%s.bad-%d", path, time.Now().Unix())
	if err := os.Rename(path, dst); err != nil {
		s.log.WithError(err).WithField("path", path).Error("quarantine failed")
		return
	}
	s.log.WithField("path", dst).Warn("quarantined corrupt file")
}

// writeAtomic writes data to a sibling temp file, fsyncs it, keeps a .bak of
// the previous contents, and renames into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if prev, err := os.ReadFile(path); err == nil {
		// Best effort; losing the .bak never blocks the save.
		_ = os.WriteFile(path+".bak", prev, 0o644)
	}
	return os.Rename(tmpName, path)
}
