package raid

// Preset is one immutable catalog entry describing a spawnable boss.
type Preset struct {
	Name        string            `json:"name" yaml:"name"`
	Weakness    Faction           `json:"weakness,omitempty" yaml:"weakness,omitempty"`
	MaxHP       int               `json:"max_hp,omitempty" yaml:"max_hp,omitempty"`
	ImageURL    string            `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	PhaseImages map[string]string `json:"phase_images,omitempty" yaml:"phase_images,omitempty"`
	TrophyURL   string            `json:"trophy_url,omitempty" yaml:"trophy_url,omitempty"`
}

// Catalog is the preset table, keyed by preset slug. It is loaded once and
// treated as read-only for the life of the process.
type Catalog map[string]Preset

// ApplyPreset copies identity fields from a preset onto the boss and resets
// it to a fresh phase-1 encounter at full health. hp overrides the preset's
// max when positive.
func ApplyPreset(b *BossState, key string, p Preset, hp int) {
	b.Key = key
	if p.Name != "" {
		b.Name = p.Name
	}
	if p.Weakness.Valid() {
		b.Weakness = p.Weakness
	}
	b.ImageURL = p.ImageURL
	b.PhaseImages = p.PhaseImages
	b.TrophyURL = p.TrophyURL

	if hp <= 0 {
		hp = p.MaxHP
	}
	if hp < 1 {
		hp = 1
	}
	b.MaxHP = hp
	b.HP = hp
	b.ResetEncounter()
}
