package raid

import "time"

// PlayerProfile is the engine's view of the per-player ledger fields held by
// the external profile store. The engine owns no schema here; the store maps
// these onto whatever it persists.
type PlayerProfile struct {
	Faction      Faction
	Gold         int
	Energy       int
	EnergyAnchor time.Time // regen anchor; advances only by whole ticks
	DailyClaim   time.Time // zero value means never claimed
	BuyLog       []time.Time
	Inventory    []string
}

// ProfileStore is the black-box profile collaborator. Mutate must apply fn
// under the store's own per-player consistency guarantees; the engine never
// assumes anything beyond read-modify-write atomicity per player.
type ProfileStore interface {
	View(uid string) (PlayerProfile, error)
	Mutate(uid string, fn func(*PlayerProfile)) error
	RecordTransaction(uid string, delta int, note string) error
}
