// Package items parses item identifiers and derives the metadata and
// economic value used by the crafting calculations.
package items

import (
	"fmt"
	"regexp"
	"strconv"
)

// Slot codes as they appear in identifiers.
const (
	SlotMain     = "MAIN"
	Slot2H       = "2H"
	SlotOff      = "OFF"
	SlotArmor    = "ARMOR"
	SlotHead     = "HEAD"
	SlotShoes    = "SHOES"
	SlotBag      = "BAG"
	SlotCape     = "CAPE"
	SlotCapeItem = "CAPEITEM"
)

// Identifier is the parsed form of T{tier}_{slot}_{core}[@{enchant}].
type Identifier struct {
	Tier    int    `json:"tier"`
	Slot    string `json:"slot"`
	Core    string `json:"core"`
	Enchant int    `json:"enchant"`
}

var identifierPattern = regexp.MustCompile(`^T([4-8])_([A-Z0-9]+)(?:_([A-Z0-9_]+))?(?:@([0-4]))?$`)

// ParseIdentifier returns false when id is not a canonical item identifier.
// Identifiers without a core token (T4_BAG, T5_CAPE) use the slot as core.
func ParseIdentifier(id string) (Identifier, bool) {
	m := identifierPattern.FindStringSubmatch(id)
	if m == nil {
		return Identifier{}, false
	}

	tier, _ := strconv.Atoi(m[1])
	ident := Identifier{
		Tier: tier,
		Slot: m[2],
		Core: m[3],
	}
	if ident.Core == "" {
		ident.Core = ident.Slot
	}
	if m[4] != "" {
		ident.Enchant, _ = strconv.Atoi(m[4])
	}
	return ident, true
}

// String renders the canonical form; enchant 0 has no suffix.
func (id Identifier) String() string {
	base := fmt.Sprintf("T%d_%s", id.Tier, id.Slot)
	if id.Core != "" && id.Core != id.Slot {
		base += "_" + id.Core
	}
	if id.Enchant > 0 {
		base += fmt.Sprintf("@%d", id.Enchant)
	}
	return base
}
