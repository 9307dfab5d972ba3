package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testExportSettings = ExportSettings{
	Filename:  "مقالات_استخراج_شده.txt",
	NameLabel: "نام مقاله",
	URLLabel:  "آدرس اینترنتی",
}

func newTestExporter(t *testing.T) *ExportWriter {
	t.Helper()
	w, err := NewExportWriter(defaultTemplate, testExportSettings)
	require.NoError(t, err)
	return w
}

func expectedBlock(name, url, content string) string {
	sep := strings.Repeat("=", 40)
	return sep + "\nنام مقاله: " + name + "\nآدرس اینترنتی: " + url + "\n" + sep + "\n\n" + content + "\n\n\n"
}

func TestExportSkipsFailedRecords(t *testing.T) {
	records := []ArticleRecord{
		{ID: 0, Name: "One", URL: "https://a.example", Status: StatusSuccess, Content: "first body"},
		{ID: 1, Name: "Two", URL: "https://b.example", Status: StatusFailed, Error: "failed"},
		{ID: 2, Name: "Three", URL: "https://c.example", Status: StatusSuccess, Content: "third body"},
	}

	data, err := newTestExporter(t).Export(records)
	require.NoError(t, err)

	want := expectedBlock("One", "https://a.example", "first body") +
		expectedBlock("Three", "https://c.example", "third body")
	assert.Equal(t, want, string(data))
	assert.Equal(t, 4, strings.Count(string(data), strings.Repeat("=", 40)))
}

func TestExportNothingToExport(t *testing.T) {
	tests := []struct {
		name    string
		records []ArticleRecord
	}{
		{"no records", nil},
		{"all failed", []ArticleRecord{{Status: StatusFailed, Error: "x"}}},
		{"pending and processing", []ArticleRecord{{Status: StatusPending}, {Status: StatusProcessing}}},
		{"success without content", []ArticleRecord{{Status: StatusSuccess}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := newTestExporter(t).Export(tt.records)

			assert.ErrorIs(t, err, ErrNothingToExport)
			assert.Nil(t, data)
		})
	}
}

func TestExportCustomTemplate(t *testing.T) {
	w, err := NewExportWriter("{{.Name}}|{{.URL}}|{{.Content}};", testExportSettings)
	require.NoError(t, err)

	data, err := w.Export([]ArticleRecord{
		{Name: "A", URL: "https://a", Status: StatusSuccess, Content: "x"},
		{Name: "B", URL: "https://b", Status: StatusSuccess, Content: "y"},
	})
	require.NoError(t, err)
	assert.Equal(t, "A|https://a|x;B|https://b|y;", string(data))
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "مقالات_استخراج_شده.txt", newTestExporter(t).Filename())

	w, err := NewExportWriter(defaultTemplate, ExportSettings{})
	require.NoError(t, err)
	assert.Equal(t, "articles.txt", w.Filename())
}
