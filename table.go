package scraper

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dimchansky/utfbom"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

const utf8BOM = "\xEF\xBB\xBF"

// CSVOptions controls the CSV byte format. The zero value writes plain UTF-8.
type CSVOptions struct {
	BOM      bool   // UTF-8 only, lets spreadsheet apps detect the encoding
	Encoding string // "utf-8" or "euc-kr"
}

func DefaultCSVOptions() CSVOptions {
	return CSVOptions{BOM: true}
}

func csvEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "euc-kr", "euckr", "cp949":
		return korean.EUCKR, nil
	}
	return nil, fmt.Errorf("unsupported csv encoding %q", name)
}

// WriteCSV writes the header row and every row of table.
func WriteCSV(w io.Writer, table *Table, options CSVOptions) error {
	enc, err := csvEncoding(options.Encoding)
	if err != nil {
		return err
	}
	out := w
	var encoder *transform.Writer
	if enc != nil {
		encoder = transform.NewWriter(w, encoding.ReplaceUnsupported(enc.NewEncoder()))
		out = encoder
	} else if options.BOM {
		if _, err := io.WriteString(w, utf8BOM); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(table.Records()); err != nil {
		return err
	}
	if encoder != nil {
		return encoder.Close()
	}
	return nil
}

// ReadCSV reads a CSV written by WriteCSV. The first row is the header.
func ReadCSV(r io.Reader, encodingName string) (columns []string, records [][]string, err error) {
	enc, err := csvEncoding(encodingName)
	if err != nil {
		return nil, nil, err
	}
	var in io.Reader = utfbom.SkipOnly(r)
	if enc != nil {
		in = transform.NewReader(in, enc.NewDecoder())
	}
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

// RecordIDs returns the contentid values of previously exported rows.
func RecordIDs(columns []string, records [][]string) map[string]bool {
	ids := map[string]bool{}
	col := -1
	for i, c := range columns {
		if c == "contentid" {
			col = i
			break
		}
	}
	if col < 0 {
		return ids
	}
	for _, record := range records {
		if col < len(record) && record[col] != "" {
			ids[record[col]] = true
		}
	}
	return ids
}

// WriteXLSX saves table as a single-sheet workbook.
func WriteXLSX(path string, table *Table) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	header := make([]interface{}, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, record := range table.Records() {
		row := make([]interface{}, len(record))
		for j, v := range record {
			row[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.SaveAs(path)
}

// SaveTable writes table to path, as a workbook for .xlsx and CSV otherwise.
func SaveTable(path string, table *Table, options CSVOptions) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return WriteXLSX(path, table)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, table, options); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
