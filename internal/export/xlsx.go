package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/citypath/internal/model"
)

// SheetName is the worksheet that holds the feature table.
const SheetName = "hex_features"

// WriteXLSX writes rows to a single-sheet workbook with a header row in
// canonical column order. Missing metrics are left as empty cells.
func WriteXLSX(path string, rows []model.HexFeatureRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range model.FeatureColumns {
		header.AddCell().SetString(col)
	}

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.HexID)
		row.AddCell().SetFloat(r.Lat)
		row.AddCell().SetFloat(r.Lon)
		for _, v := range []*float64{r.VegetationIndex, r.Temperature, r.PopulationDensity} {
			c := row.AddCell()
			if v != nil {
				c.SetFloat(*v)
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	return nil
}
