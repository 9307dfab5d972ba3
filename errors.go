package main

import (
	"errors"
	"fmt"
)

// Parse failures. A ParseError wraps exactly one of these.
var (
	ErrRowIncomplete = errors.New("row incomplete")
	ErrInvalidURL    = errors.New("invalid URL")
	ErrEmptyResult   = errors.New("empty result")
)

// Fetch failures. A FetchError wraps exactly one of these.
var (
	ErrMissingCredential   = errors.New("missing credential")
	ErrNoMeaningfulContent = errors.New("no meaningful content")
	ErrServiceUnreachable  = errors.New("service unreachable")
)

var (
	ErrBatchInProgress   = errors.New("batch in progress")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNothingToExport   = errors.New("nothing to export")
)

// FileReadError reports that the uploaded bytes could not be read as a spreadsheet.
type FileReadError struct {
	Name string
	Err  error
}

func (e *FileReadError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("reading file: %v", e.Err)
	}
	return fmt.Sprintf("reading file %s: %v", e.Name, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// ParseError reports a spreadsheet validation failure. Row is 1-indexed and
// counts the header, so the first data row is row 2. Row is 0 when the error
// applies to the whole sheet.
type ParseError struct {
	Row int
	Err error
}

func (e *ParseError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("parse spreadsheet: %v", e.Err)
	}
	return fmt.Sprintf("parse spreadsheet: row %d: %v", e.Row, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FetchError reports why a single article could not be extracted. Cause keeps
// the underlying service error for logs and is not part of Error().
type FetchError struct {
	URL   string
	Err   error
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// User-facing messages, in the locale of the uploaded spreadsheets.
const (
	msgFileRead          = "خطا در خواندن فایل."
	msgRowIncomplete     = "ردیف %d در فایل اکسل ناقص است. ستون‌های '%s' و '%s' الزامی هستند."
	msgInvalidURL        = "آدرس اینترنتی در ردیف %d نامعتبر است."
	msgEmptyResult       = "فایل اکسل خالی است یا ستون‌های مورد نیاز را ندارد."
	msgMissingCredential = "کلید API برای Gemini تنظیم نشده است."
	msgNoContent         = "محتوای معناداری از صفحه استخراج نشد."
	msgUnreachable       = "ارتباط با سرویس هوش مصنوعی ناموفق بود."
	msgUnknown           = "خطای ناشناخته در پردازش فایل اکسل."
)

// UserMessage maps an error to the text shown to the user. Underlying causes
// never leak; they belong in the log.
func UserMessage(err error, cols ColumnSettings) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		switch {
		case errors.Is(parseErr.Err, ErrRowIncomplete):
			return fmt.Sprintf(msgRowIncomplete, parseErr.Row, cols.Name, cols.URL)
		case errors.Is(parseErr.Err, ErrInvalidURL):
			return fmt.Sprintf(msgInvalidURL, parseErr.Row)
		case errors.Is(parseErr.Err, ErrEmptyResult):
			return msgEmptyResult
		}
	}

	var readErr *FileReadError
	if errors.As(err, &readErr) {
		return msgFileRead
	}

	switch {
	case errors.Is(err, ErrMissingCredential):
		return msgMissingCredential
	case errors.Is(err, ErrNoMeaningfulContent):
		return msgNoContent
	case errors.Is(err, ErrServiceUnreachable):
		return msgUnreachable
	}
	return msgUnknown
}
