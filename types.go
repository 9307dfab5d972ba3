package main

import "time"

// ArticleStatus is the per-record extraction status
type ArticleStatus string

const (
	StatusPending    ArticleStatus = "PENDING"
	StatusProcessing ArticleStatus = "PROCESSING"
	StatusSuccess    ArticleStatus = "SUCCESS"
	StatusFailed     ArticleStatus = "FAILED"
)

// canAdvanceTo reports whether a record may move from s to next.
// PENDING -> PROCESSING -> {SUCCESS | FAILED}; terminal statuses never move.
func (s ArticleStatus) canAdvanceTo(next ArticleStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusSuccess || next == StatusFailed
	case StatusSuccess, StatusFailed:
		return false
	default:
		return false
	}
}

// Phase is the overall batch phase
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseParsing  Phase = "PARSING"
	PhaseFetching Phase = "FETCHING"
	PhaseDone     Phase = "DONE"
	PhaseError    Phase = "ERROR"
)

func (p Phase) canAdvanceTo(next Phase) bool {
	switch p {
	case PhaseIdle:
		return next == PhaseParsing
	case PhaseParsing:
		return next == PhaseFetching || next == PhaseError
	case PhaseFetching:
		return next == PhaseDone
	case PhaseDone, PhaseError:
		return next == PhaseIdle
	default:
		return false
	}
}

// Busy reports whether a batch is being parsed or fetched.
func (p Phase) Busy() bool {
	return p == PhaseParsing || p == PhaseFetching
}

// ArticleRecord is one spreadsheet row and its extraction outcome.
// Content is set only on SUCCESS and Error only on FAILED.
type ArticleRecord struct {
	ID      int           `json:"id"`
	Name    string        `json:"name"`
	URL     string        `json:"url"`
	Status  ArticleStatus `json:"status"`
	Content string        `json:"content,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// BatchSummary counts records by status
type BatchSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
}

// Snapshot is an immutable copy of the batch state handed to readers
type Snapshot struct {
	ID         string          `json:"id,omitempty"`
	Source     string          `json:"source,omitempty"`
	Phase      Phase           `json:"phase"`
	Error      string          `json:"error,omitempty"`
	Records    []ArticleRecord `json:"records"`
	Summary    BatchSummary    `json:"summary"`
	StartedAt  time.Time       `json:"started_at,omitzero"`
	FinishedAt time.Time       `json:"finished_at,omitzero"`
}

// Finished reports whether every record reached a terminal status.
func (s Snapshot) Finished() bool {
	return s.Summary.Pending == 0 && s.Summary.Processing == 0
}

func summarize(records []ArticleRecord) BatchSummary {
	sum := BatchSummary{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case StatusPending:
			sum.Pending++
		case StatusProcessing:
			sum.Processing++
		case StatusSuccess:
			sum.Succeeded++
		case StatusFailed:
			sum.Failed++
		}
	}
	return sum
}
