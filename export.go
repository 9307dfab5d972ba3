package main

import (
	"bytes"
	"fmt"
	"text/template"
)

// ExportWriter renders successful records into one plain-text document
type ExportWriter struct {
	tmpl     *template.Template
	settings ExportSettings
}

// exportBlock is the data passed to the block template
type exportBlock struct {
	NameLabel string
	URLLabel  string
	Name      string
	URL       string
	Content   string
}

// NewExportWriter parses the block template
func NewExportWriter(blockTemplate string, settings ExportSettings) (*ExportWriter, error) {
	tmpl, err := template.New("export").Parse(blockTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing export template: %w", err)
	}
	return &ExportWriter{tmpl: tmpl, settings: settings}, nil
}

// Export concatenates one block per SUCCESS record with content, in order.
// It returns ErrNothingToExport when no record qualifies.
func (w *ExportWriter) Export(records []ArticleRecord) ([]byte, error) {
	var buf bytes.Buffer
	written := 0
	for _, r := range records {
		if r.Status != StatusSuccess || r.Content == "" {
			continue
		}

		err := w.tmpl.Execute(&buf, exportBlock{
			NameLabel: w.settings.NameLabel,
			URLLabel:  w.settings.URLLabel,
			Name:      r.Name,
			URL:       r.URL,
			Content:   r.Content,
		})
		if err != nil {
			return nil, fmt.Errorf("executing export template: %w", err)
		}
		written++
	}

	if written == 0 {
		return nil, ErrNothingToExport
	}
	return buf.Bytes(), nil
}

// Filename is the suggested name of the exported file
func (w *ExportWriter) Filename() string {
	if w.settings.Filename == "" {
		return "articles.txt"
	}
	return w.settings.Filename
}
