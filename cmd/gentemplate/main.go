// Command gentemplate writes an example spreadsheet with the column headers
// article-extractor expects.
// Usage: gentemplate [output.xlsx]
package main

import (
	"log"
	"os"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName     = "مقالات"
	nameHeader    = "نام مقاله"
	urlHeader     = "آدرس اینترنتی مقاله"
	defaultOutput = "articles-template.xlsx"
)

func main() {
	output := defaultOutput
	if len(os.Args) > 1 {
		output = os.Args[1]
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		log.Fatal(err)
	}

	rows := [][]any{
		{nameHeader, urlHeader},
		{"نمونه مقاله اول", "https://example.com/articles/first"},
		{"نمونه مقاله دوم", "https://example.org/blog/second"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			log.Fatal(err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			log.Fatal(err)
		}
	}
	if err := f.SetColWidth(sheetName, "A", "A", 30); err != nil {
		log.Fatal(err)
	}
	if err := f.SetColWidth(sheetName, "B", "B", 60); err != nil {
		log.Fatal(err)
	}

	if _, err := f.NewSheet("Instructions"); err != nil {
		log.Fatal(err)
	}
	instructions := []string{
		"Only the first sheet is read. The first row must contain the headers exactly as written.",
		"",
		nameHeader + " - Required. Article name, copied into the export.",
		urlHeader + " - Required. Must start with http.",
		"Blank rows are ignored.",
	}
	for i, line := range instructions {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			log.Fatal(err)
		}
		if err := f.SetCellValue("Instructions", cell, line); err != nil {
			log.Fatal(err)
		}
	}

	if err := f.SaveAs(output); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s", output)
}
