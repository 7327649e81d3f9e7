package items

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ArteType is the rarity class of an item's core.
type ArteType string

const (
	Standard  ArteType = "Standard"
	Rune      ArteType = "Rune"
	Soul      ArteType = "Soul"
	Relic     ArteType = "Relic"
	Mist      ArteType = "Mist"
	Avalonian ArteType = "Avalonian"
	Crystal   ArteType = "Crystal"
)

var arteMultiplier = map[ArteType]float64{
	Standard:  0,
	Rune:      4,
	Soul:      12,
	Relic:     28,
	Mist:      28,
	Avalonian: 60,
	Crystal:   60,
}

// ParseArteType accepts the type name case-insensitively.
func ParseArteType(s string) (ArteType, bool) {
	for t := range arteMultiplier {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, true
		}
	}
	return Standard, false
}

// SubstituteFor returns the crystallized resource token that can replace an
// artefact of the given rarity. Standard, Mist and Crystal have none.
func SubstituteFor(t ArteType) (string, bool) {
	switch t {
	case Rune:
		return "CRYSTALLIZED_SPIRIT", true
	case Soul:
		return "CRYSTALLIZED_MAGIC", true
	case Relic:
		return "CRYSTALLIZED_DREAD", true
	case Avalonian:
		return "CRYSTALLIZED_AVALONIAN", true
	default:
		return "", false
	}
}

// SubstituteID is SubstituteFor with the tier prefix applied.
func SubstituteID(t ArteType, tier int) (string, bool) {
	token, ok := SubstituteFor(t)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("T%d_%s", tier, token), true
}

// ArteLookup maps core tokens to their rarity. The zero value is usable and
// reports Standard for everything.
type ArteLookup struct {
	types map[string]ArteType
}

// NewArteLookup builds a lookup from core -> type.
func NewArteLookup(types map[string]ArteType) *ArteLookup {
	l := &ArteLookup{types: make(map[string]ArteType, len(types))}
	for core, t := range types {
		l.types[strings.ToUpper(core)] = t
	}
	return l
}

// LoadArteLookup reads a JSON object {"CORE": "Rune", ...}.
func LoadArteLookup(path string) (*ArteLookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read arte types: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse arte types %s: %w", path, err)
	}

	types := make(map[string]ArteType, len(raw))
	for core, name := range raw {
		t, ok := ParseArteType(name)
		if !ok {
			return nil, fmt.Errorf("unknown arte type %q for core %s", name, core)
		}
		types[core] = t
	}
	return NewArteLookup(types), nil
}

// TypeOf returns Standard for unknown cores.
func (l *ArteLookup) TypeOf(core string) ArteType {
	if l == nil || l.types == nil {
		return Standard
	}
	if t, ok := l.types[strings.ToUpper(core)]; ok {
		return t
	}
	return Standard
}

// Len is the number of known cores.
func (l *ArteLookup) Len() int {
	if l == nil {
		return 0
	}
	return len(l.types)
}
