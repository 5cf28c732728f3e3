package raid

// Faction identifies one of the four raiding factions. Slugs are stored in
// profiles and in the action log, so they must stay stable.
type Faction string

const (
	FactionGilded   Faction = "gilded"
	FactionThorned  Faction = "thorned"
	FactionVerdant  Faction = "verdant"
	FactionMistveil Faction = "mistveil"
)

// weaknessOrder is the fixed cycle the rotator walks through.
var weaknessOrder = []Faction{FactionVerdant, FactionThorned, FactionGilded, FactionMistveil}

var factionDisplay = map[Faction]string{
	FactionGilded:   "Gilded Bloom",
	FactionThorned:  "Thorned Pact",
	FactionVerdant:  "Verdant Guard",
	FactionMistveil: "Mistveil Kin",
}

// Factions returns every valid faction in rotation order.
func Factions() []Faction {
	out := make([]Faction, len(weaknessOrder))
	copy(out, weaknessOrder)
	return out
}

func (f Faction) Valid() bool {
	switch f {
	case FactionGilded, FactionThorned, FactionVerdant, FactionMistveil:
		return true
	}
	return false
}

// Display returns the human-readable faction name, or the slug when unknown.
func (f Faction) Display() string {
	if name, ok := factionDisplay[f]; ok {
		return name
	}
	return string(f)
}

// ParseFaction normalizes a slug; ok is false for anything outside the four
// known factions.
func ParseFaction(s string) (Faction, bool) {
	f := Faction(s)
	if f.Valid() {
		return f, true
	}
	return "", false
}

// NextWeakness advances along the rotation cycle. An unknown current value
// restarts the cycle at the first entry.
func NextWeakness(cur Faction) Faction {
	for i, f := range weaknessOrder {
		if f == cur {
			return weaknessOrder[(i+1)%len(weaknessOrder)]
		}
	}
	return weaknessOrder[0]
}
