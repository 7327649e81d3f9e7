package items

import "strings"

// Handedness of a craftable item.
type Handedness string

const (
	OneHanded Handedness = "1H"
	TwoHanded Handedness = "2H"
	OffHand   Handedness = "OFF"
	Other     Handedness = "OTHER"
)

// Meta holds the slot derived attributes that drive valuation.
type Meta struct {
	Handedness     Handedness `json:"handedness"`
	NumItems       int        `json:"num_items"`
	IsShapeshifter bool       `json:"is_shapeshifter"`
	IsBag          bool       `json:"is_bag"`
	IsCapeGeneral  bool       `json:"is_cape_general"`
	IsCapeCity     bool       `json:"is_cape_city"`
	RequiresTome   bool       `json:"requires_tome"`
}

// ClassifyMeta maps (core, slot) to item metadata.
//
// Baseline by slot: OFF=8, 2H=32, MAIN=24 (1H), everything else 24 (OTHER).
// Overrides are applied in order, later ones win: bags 16, general capes 8,
// city capes 0, shapeshifters and bows 2H with 32.
func ClassifyMeta(core, slot string) Meta {
	core = strings.ToUpper(core)
	slot = strings.ToUpper(slot)

	var meta Meta
	switch slot {
	case SlotOff:
		meta.Handedness, meta.NumItems = OffHand, 8
	case Slot2H:
		meta.Handedness, meta.NumItems = TwoHanded, 32
	case SlotMain:
		meta.Handedness, meta.NumItems = OneHanded, 24
	default:
		meta.Handedness, meta.NumItems = Other, 24
	}

	tokens := strings.Split(core, "_")

	if slot == SlotBag || hasToken(tokens, "BAG") {
		meta.IsBag = true
		meta.NumItems = 16
	}
	if slot == SlotCape || slot == SlotCapeItem || hasToken(tokens, "CAPE") {
		meta.IsCapeGeneral = true
		meta.NumItems = 8
	}
	if isCityCape(core) {
		meta.IsCapeGeneral = false
		meta.IsCapeCity = true
		meta.NumItems = 0
	}

	meta.IsShapeshifter = hasToken(tokens, "SHAPESHIFTER")
	if meta.IsShapeshifter || isBowCore(tokens) {
		meta.Handedness = TwoHanded
		meta.NumItems = 32
	}

	meta.RequiresTome = strings.Contains(core, "INSIGHT")
	return meta
}

// city capes carry the faction-warfare marker: T4_CAPEITEM_FW_MARTLOCK.
// Other CAPEITEM cores (DEMON, KEEPER, ...) belong to no city.
func isCityCape(core string) bool {
	return strings.HasPrefix(core, "FW_") || strings.Contains(core, "CAPEITEM_FW")
}

func isBowCore(tokens []string) bool {
	for _, t := range tokens {
		switch t {
		case "BOW", "WARBOW", "LONGBOW":
			return true
		}
	}
	return false
}

func hasToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}
