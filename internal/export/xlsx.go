package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"sjsage522/pricemonitor/services/store"
)

// SheetName is the worksheet holding the snapshot rows
const SheetName = "Prices"

var header = []interface{}{"Key", "Name", "Price", "Source", "Link", "Last updated"}

// WriteXLSX renders the snapshot as a spreadsheet, one row per product in key order
func WriteXLSX(w io.Writer, snap store.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", "F1", bold); err != nil {
		return err
	}

	for i, key := range snap.Keys() {
		entry := snap[key]
		updated := ""
		if !entry.LastUpdated.IsZero() {
			updated = entry.LastUpdated.UTC().Format("2006-01-02 15:04:05")
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{key, entry.Name, entry.Price.InexactFloat64(), entry.Source, entry.Link, updated}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(SheetName, "B", "B", 60); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "E", "E", 50); err != nil {
		return err
	}

	return f.Write(w)
}
