package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// ParseSpreadsheet reads the first sheet of an XLSX workbook, or a CSV file,
// and returns one PENDING record per data row in file order.
//
// The header row locates the required columns by exact label. Fully blank
// rows are skipped. Row numbers in errors are 1-indexed and include the header.
func ParseSpreadsheet(data []byte, cols ColumnSettings) ([]ArticleRecord, error) {
	rows, err := readRows(data)
	if err != nil {
		return nil, err
	}
	return recordsFromRows(rows, cols)
}

func readRows(data []byte) ([][]string, error) {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return readWorkbookRows(data)
	case bytes.HasPrefix(data, oleMagic):
		return nil, &FileReadError{Err: errors.New("legacy binary workbooks are not supported, save as .xlsx")}
	default:
		return readCSVRows(data)
	}
}

func readWorkbookRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FileReadError{Err: fmt.Errorf("opening workbook: %w", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Err: ErrEmptyResult}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &FileReadError{Err: fmt.Errorf("reading sheet %q: %w", sheets[0], err)}
	}
	return rows, nil
}

func readCSVRows(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, &FileReadError{Err: errors.New("file is neither a workbook nor UTF-8 text")}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &FileReadError{Err: fmt.Errorf("parsing CSV: %w", err)}
	}
	return rows, nil
}

func recordsFromRows(rows [][]string, cols ColumnSettings) ([]ArticleRecord, error) {
	if len(rows) == 0 {
		return nil, &ParseError{Err: ErrEmptyResult}
	}

	nameIdx, urlIdx := -1, -1
	for i, cell := range rows[0] {
		switch strings.TrimSpace(cell) {
		case cols.Name:
			if nameIdx < 0 {
				nameIdx = i
			}
		case cols.URL:
			if urlIdx < 0 {
				urlIdx = i
			}
		}
	}

	records := make([]ArticleRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}

		// blank rows do not count toward row numbers
		index := len(records)
		rowNum := index + 2

		// cells are trimmed before validation
		name := cellAt(row, nameIdx)
		url := cellAt(row, urlIdx)
		if name == "" || url == "" {
			return nil, &ParseError{Row: rowNum, Err: ErrRowIncomplete}
		}
		if !strings.HasPrefix(url, "http") {
			return nil, &ParseError{Row: rowNum, Err: ErrInvalidURL}
		}

		records = append(records, ArticleRecord{
			ID:     index,
			Name:   name,
			URL:    url,
			Status: StatusPending,
		})
	}

	if len(records) == 0 {
		return nil, &ParseError{Err: ErrEmptyResult}
	}
	return records, nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
