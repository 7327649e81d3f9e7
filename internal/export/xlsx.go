// Package export writes scan results to spreadsheets.
package export

import (
	"fmt"

	"albion-crafter/internal/profit"

	"github.com/xuri/excelize/v2"
)

// SheetName is the sheet scan rows are written to.
const SheetName = "Profits"

var columns = []string{
	"Item", "Tier", "Enchant", "Arte Type", "Sell Price", "City",
	"Material Cost", "Effective Cost", "Usage Fee", "Profit", "Margin %",
	"Artefact", "Substituted",
}

// WriteXLSX writes rows in scan order. Money columns are rounded to 2 places.
func WriteXLSX(path string, rows []profit.Row) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return err
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(SheetName, 1, 1, bold)
	}
	_ = f.SetColWidth(SheetName, "A", "A", 32)
	_ = f.SetColWidth(SheetName, "F", "F", 16)
	_ = f.SetColWidth(SheetName, "L", "L", 32)

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			r.ItemID,
			r.Tier,
			r.Enchant,
			string(r.ArteType),
			profit.RoundMoney(r.ProductPrice),
			r.ProductCity,
			profit.RoundMoney(r.MaterialCost),
			profit.RoundMoney(r.EffectiveMaterialCost),
			profit.RoundMoney(r.UsageFee),
			profit.RoundMoney(r.Profit),
			profit.RoundMoney(r.ProfitMargin),
			r.ArtefactItemID,
			yesNo(r.Substituted),
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
