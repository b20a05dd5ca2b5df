package funnel

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/radiusdt/inapp-report/internal/models"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet the export writes to.
const SheetName = "Traffic Data"

const missingValue = "N/A"

// Row is one spreadsheet row; an empty Row is a blank separator.
type Row []interface{}

// ExportRows flattens one day's groups into the on-screen table layout,
// block by block: identity rows, blank, hours header, CR%, Pin Gen,
// Pin Ver, blank. Hours are labelled 0-23.
func ExportRows(groups []*Group) []Row {
	rows := make([]Row, 0, len(groups)*13)
	for _, g := range groups {
		slots := g.Slots()

		rows = append(rows,
			Row{"Service ID", g.appServiceID},
			Row{"Date", g.day},
			Row{"Service Name", orMissing(g.serviceName)},
			Row{"Territory", orMissing(g.territory)},
			Row{"Operator", orMissing(g.operatorName)},
			Row{"Partner Name", orMissing(g.partnerName)},
			Row{"Service Owner", orMissing(g.serviceOwner)},
			Row{},
		)

		header := Row{"Hours", "Total"}
		crRow := Row{"CR%", FormatCR(g.totalCR)}
		genRow := Row{"Pin Gen", g.totalPinGen}
		verRow := Row{"Pin Ver", g.totalPinVer}
		for _, s := range slots {
			header = append(header, strconv.Itoa(s.Hour))
			crRow = append(crRow, s.CRLabel())
			genRow = append(genRow, s.PinGen)
			verRow = append(verRow, s.PinVer)
		}

		rows = append(rows, header, crRow, genRow, verRow, Row{})
	}
	return rows
}

// ExportFilename names the download {entity}_{day}.xlsx, where entity is
// the tab's root field taken from the first group.
func ExportFilename(tab models.Tab, groups []*Group, day string) string {
	entity := "UnknownOwner"
	if tab == models.TabPartner {
		entity = "UnknownPartner"
	}
	if len(groups) > 0 {
		if v := groups[0].Value(tab.Root()); v != "" {
			entity = v
		}
	}
	if day == "" {
		day = "UnknownDate"
	}
	return sanitizeFilename(entity) + "_" + sanitizeFilename(day) + ".xlsx"
}

// WriteWorkbook writes rows into a single-sheet xlsx document.
func WriteWorkbook(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return errors.Wrap(err, "rename sheet")
	}

	for i := range rows {
		if len(rows[i]) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrap(err, "cell name")
		}
		values := []interface{}(rows[i])
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return errors.Wrapf(err, "write row %d", i+1)
		}
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

func orMissing(v string) string {
	if v == "" {
		return missingValue
	}
	return v
}

var filenameReplacer = strings.NewReplacer("/", "-", "\\", "-", ":", "-", "\"", "", "\n", " ", "\r", " ")

func sanitizeFilename(s string) string {
	return strings.TrimSpace(filenameReplacer.Replace(s))
}
