package export

import (
	"path/filepath"
	"testing"

	"albion-crafter/internal/items"
	"albion-crafter/internal/profit"

	"github.com/xuri/excelize/v2"
)

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profits.xlsx")
	rows := []profit.Row{
		{
			ItemID:         "T4_2H_BOW_KEEPER",
			Tier:           4,
			ArteType:       items.Rune,
			ProductPrice:   10000,
			ProductCity:    "Martlock",
			MaterialCost:   3500.456,
			Profit:         1234.5678,
			ArtefactItemID: "T4_CRYSTALLIZED_SPIRIT",
			Substituted:    true,
		},
		{ItemID: "T4_MAIN_SWORD", Tier: 4, ArteType: items.Standard},
	}

	if err := WriteXLSX(path, rows); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	got, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(got))
	}
	if got[0][0] != "Item" || got[0][9] != "Profit" {
		t.Errorf("unexpected header %v", got[0])
	}

	first := got[1]
	if first[0] != "T4_2H_BOW_KEEPER" || first[3] != "Rune" || first[5] != "Martlock" {
		t.Errorf("unexpected row %v", first)
	}
	if first[6] != "3500.46" {
		t.Errorf("material cost should round to 3500.46, got %s", first[6])
	}
	if first[9] != "1234.57" {
		t.Errorf("profit should round to 1234.57, got %s", first[9])
	}
	if first[11] != "T4_CRYSTALLIZED_SPIRIT" || first[12] != "yes" {
		t.Errorf("unexpected artefact columns %v", first[11:])
	}
}
