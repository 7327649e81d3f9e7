// Package recipes loads recipe tables from CSV or XLSX files.
//
// The first row is a header. Recognized columns:
//
//	item_id        required
//	tier, enchant, slot, core   derived from item_id when blank
//	materials      ID:QTY;ID:QTY
//	artefact       artefact item id, optional
//	artefact_qty   defaults to 1
//	requires_tome  true/1/yes
package recipes

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"albion-crafter/internal/items"
	"albion-crafter/internal/profit"

	"github.com/xuri/excelize/v2"
)

// LoadFile picks the reader by extension.
func LoadFile(path string) ([]profit.Recipe, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open recipes: %w", err)
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx":
		return LoadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported recipe file %s", path)
	}
}

// ReadCSV parses a recipe table. Lines starting with # are ignored.
func ReadCSV(r io.Reader) ([]profit.Recipe, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read recipe csv: %w", err)
	}
	return fromRecords(records)
}

// LoadXLSX parses the first sheet of a workbook.
func LoadXLSX(path string) ([]profit.Recipe, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open recipe workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read recipe sheet: %w", err)
	}
	return fromRecords(rows)
}

func fromRecords(records [][]string) ([]profit.Recipe, error) {
	if len(records) == 0 {
		return nil, nil
	}

	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := header["item_id"]; !ok {
		return nil, fmt.Errorf("recipe table has no item_id column")
	}

	var out []profit.Recipe
	for i, rec := range records[1:] {
		line := i + 2
		get := func(col string) string {
			idx, ok := header[col]
			if !ok || idx >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[idx])
		}

		itemID := get("item_id")
		if itemID == "" {
			continue
		}

		recipe, err := buildRecipe(itemID, get)
		if err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", line, itemID, err)
		}
		out = append(out, recipe)
	}
	return out, nil
}

func buildRecipe(itemID string, get func(string) string) (profit.Recipe, error) {
	recipe := profit.Recipe{
		ItemID: itemID,
		Slot:   strings.ToUpper(get("slot")),
		Core:   strings.ToUpper(get("core")),
	}

	var err error
	if recipe.Tier, err = optionalInt(get("tier")); err != nil {
		return recipe, fmt.Errorf("tier: %w", err)
	}
	if recipe.Enchant, err = optionalInt(get("enchant")); err != nil {
		return recipe, fmt.Errorf("enchant: %w", err)
	}

	if ident, ok := items.ParseIdentifier(itemID); ok {
		if recipe.Tier == 0 {
			recipe.Tier = ident.Tier
		}
		if recipe.Slot == "" {
			recipe.Slot = ident.Slot
		}
		if recipe.Core == "" {
			recipe.Core = ident.Core
		}
		if recipe.Enchant == 0 {
			recipe.Enchant = ident.Enchant
		}
	}

	if recipe.Materials, err = parseMaterials(get("materials")); err != nil {
		return recipe, err
	}

	if artefact := get("artefact"); artefact != "" {
		qty := 1
		if raw := get("artefact_qty"); raw != "" {
			if qty, err = strconv.Atoi(raw); err != nil || qty <= 0 {
				return recipe, fmt.Errorf("artefact_qty %q is not a positive integer", raw)
			}
		}
		recipe.Materials = append(recipe.Materials, profit.MaterialRequirement{
			ItemID:   artefact,
			Quantity: qty,
			Kind:     profit.KindArtefact,
		})
	}

	recipe.RequiresTome = parseBool(get("requires_tome"))
	return recipe, nil
}

// parseMaterials reads "T4_PLANKS:16;T4_CLOTH:8".
func parseMaterials(raw string) ([]profit.MaterialRequirement, error) {
	if raw == "" {
		return nil, nil
	}

	var out []profit.MaterialRequirement
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, qtyStr, found := strings.Cut(part, ":")
		if !found {
			return nil, fmt.Errorf("material %q must be ID:QTY", part)
		}
		qty, err := strconv.Atoi(strings.TrimSpace(qtyStr))
		if err != nil || qty <= 0 {
			return nil, fmt.Errorf("material %q has invalid quantity", part)
		}
		out = append(out, profit.MaterialRequirement{
			ItemID:   strings.TrimSpace(id),
			Quantity: qty,
			Kind:     profit.KindResource,
		})
	}
	return out, nil
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseBool(raw string) bool {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
