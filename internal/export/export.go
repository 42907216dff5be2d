package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/xuri/excelize/v2"

	"github.com/FranksOps/shopscout/internal/storage"
)

// SheetName is the worksheet the storefront rows are written to.
const SheetName = "Shopee Business"

// ContentTypeXLSX is the MIME type of WriteXLSX output.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Header is the column order shared by every tabular format.
var Header = []string{"Nama Bisnis", "Username", "Lokasi/Alamat", "URL Toko", "Rating", "Total Produk"}

// Row is the flat, export-facing view of a storefront.
type Row struct {
	Name      string  `json:"name"`
	Username  string  `json:"username"`
	Location  string  `json:"location"`
	URL       string  `json:"url"`
	Rating    float64 `json:"rating"`
	ItemCount *int64  `json:"item_count"`
}

// Rows projects storefronts onto export rows, keeping their order.
func Rows(records []storage.Storefront) []Row {
	rows := make([]Row, len(records))
	for i, s := range records {
		rows[i] = Row{
			Name:      s.Name,
			Username:  s.Username,
			Location:  s.Location,
			URL:       s.URL,
			Rating:    s.Rating,
			ItemCount: s.ItemCount,
		}
	}
	return rows
}

func (r Row) strings() []string {
	count := ""
	if r.ItemCount != nil {
		count = strconv.FormatInt(*r.ItemCount, 10)
	}
	return []string{r.Name, r.Username, r.Location, r.URL, strconv.FormatFloat(r.Rating, 'f', 2, 64), count}
}

// FileName returns the download name for a keyword, shopee_<keyword>.xlsx.
// Path separators and control characters are replaced with underscores.
func FileName(keyword string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '"':
			return '_'
		case r < 0x20 || r == 0x7f:
			return '_'
		}
		return r
	}, strings.TrimSpace(keyword))
	return "shopee_" + clean + ".xlsx"
}

// WriteXLSX writes a workbook with a header row and one row per record.
func WriteXLSX(w io.Writer, records []storage.Storefront) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("export: close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("export: header: %w", err)
	}

	for i, r := range Rows(records) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		values := []any{r.Name, r.Username, r.Location, r.URL, r.Rating}
		if r.ItemCount != nil {
			values = append(values, *r.ItemCount)
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("export: row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

// WriteCSV writes the header and rows as CSV.
func WriteCSV(w io.Writer, records []storage.Storefront) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	for _, r := range Rows(records) {
		if err := cw.Write(r.strings()); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// WriteJSON writes the rows as an indented JSON array. An empty set is [].
func WriteJSON(w io.Writer, records []storage.Storefront) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Rows(records)); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// WriteTable writes an aligned plain-text table for terminals.
func WriteTable(w io.Writer, records []storage.Storefront) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(Header, "\t"))
	for _, r := range Rows(records) {
		fmt.Fprintln(tw, strings.Join(r.strings(), "\t"))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
