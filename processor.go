// processor.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BatchProcessor owns the batch state and drives records through the source
// one at a time. Only one batch runs at once.
type BatchProcessor struct {
	source  ArticleSource
	columns ColumnSettings
	logger  Logger
	metrics *Metrics
	now     func() time.Time

	mu       sync.RWMutex
	state    batchState
	onChange func(Snapshot)

	wg sync.WaitGroup
}

type batchState struct {
	id         string
	source     string
	phase      Phase
	err        string
	records    []ArticleRecord
	startedAt  time.Time
	finishedAt time.Time
}

// NewBatchProcessor creates an idle processor
func NewBatchProcessor(source ArticleSource, columns ColumnSettings, logger Logger, metrics *Metrics) *BatchProcessor {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &BatchProcessor{
		source:  source,
		columns: columns,
		logger:  logger.With(String("component", "processor")),
		metrics: metrics,
		now:     time.Now,
		state:   batchState{phase: PhaseIdle},
	}
}

// OnChange registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that made the change and must not block for long.
func (p *BatchProcessor) OnChange(fn func(Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Submit parses the spreadsheet returned by open and, when it is valid,
// starts fetching its records in the background. A finished or failed batch
// is discarded first. Parse and read failures move the batch to ERROR and are
// returned; ErrBatchInProgress is returned while another batch is running.
func (p *BatchProcessor) Submit(ctx context.Context, name string, open func() (io.ReadCloser, error)) error {
	p.mu.Lock()
	if p.state.phase.Busy() {
		p.mu.Unlock()
		return ErrBatchInProgress
	}
	if p.state.phase != PhaseIdle {
		if err := p.transitionLocked(PhaseIdle); err != nil {
			p.mu.Unlock()
			return err
		}
		p.state = batchState{phase: PhaseIdle}
	}
	if err := p.transitionLocked(PhaseParsing); err != nil {
		p.mu.Unlock()
		return err
	}
	p.state.id = uuid.NewString()
	p.state.source = name
	p.state.startedAt = p.now()
	batchID := p.state.id
	snap, fn := p.snapshotLocked(), p.onChange
	p.mu.Unlock()
	notify(fn, snap)

	logger := p.logger.With(String("batch_id", batchID), String("source", name))
	logger.Info("Parsing spreadsheet")

	records, err := p.parse(name, open)
	if err != nil {
		logger.Warn("Spreadsheet rejected", Err(err))
		p.fail(err)
		return err
	}

	p.mu.Lock()
	p.state.records = append([]ArticleRecord(nil), records...)
	if err := p.transitionLocked(PhaseFetching); err != nil {
		p.mu.Unlock()
		return err
	}
	snap, fn = p.snapshotLocked(), p.onChange
	p.mu.Unlock()
	notify(fn, snap)

	logger.Info("Processing articles", Int("count", len(records)))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, logger, records)
	}()
	return nil
}

func (p *BatchProcessor) parse(name string, open func() (io.ReadCloser, error)) ([]ArticleRecord, error) {
	rc, err := open()
	if err != nil {
		return nil, &FileReadError{Name: name, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &FileReadError{Name: name, Err: err}
	}

	records, err := ParseSpreadsheet(data, p.columns)
	var readErr *FileReadError
	if errors.As(err, &readErr) && readErr.Name == "" {
		readErr.Name = name
	}
	return records, err
}

func (p *BatchProcessor) fail(err error) {
	p.metrics.observeBatch("rejected")

	p.mu.Lock()
	p.state.err = UserMessage(err, p.columns)
	p.state.records = nil
	if terr := p.transitionLocked(PhaseError); terr != nil {
		p.mu.Unlock()
		return
	}
	p.state.finishedAt = p.now()
	snap, fn := p.snapshotLocked(), p.onChange
	p.mu.Unlock()
	notify(fn, snap)
}

// run fetches records strictly in order. Record failures never stop the batch.
func (p *BatchProcessor) run(ctx context.Context, logger Logger, records []ArticleRecord) {
	for i, record := range records {
		p.advance(record.ID, StatusProcessing, "", "")
		logger.Info("Processing article",
			Int("position", i+1),
			Int("total", len(records)),
			String("url", record.URL),
		)

		content, err := p.source.Fetch(ctx, record.URL)
		if err != nil {
			logger.Warn("Article failed", String("url", record.URL), Err(err))
			p.advance(record.ID, StatusFailed, "", UserMessage(err, p.columns))
			continue
		}
		p.advance(record.ID, StatusSuccess, content, "")
	}

	p.mu.Lock()
	if err := p.transitionLocked(PhaseDone); err != nil {
		p.mu.Unlock()
		return
	}
	p.state.finishedAt = p.now()
	snap, fn := p.snapshotLocked(), p.onChange
	p.mu.Unlock()

	p.metrics.observeBatch("completed")
	logger.Info("Batch finished",
		Int("succeeded", snap.Summary.Succeeded),
		Int("failed", snap.Summary.Failed),
		Duration("elapsed", snap.FinishedAt.Sub(snap.StartedAt)),
	)
	notify(fn, snap)
}

// advance applies a status change to one record. Illegal transitions are
// logged and dropped.
func (p *BatchProcessor) advance(id int, next ArticleStatus, content, errMsg string) {
	p.mu.Lock()
	if id < 0 || id >= len(p.state.records) {
		p.mu.Unlock()
		p.logger.Error("Unknown record", Int("id", id))
		return
	}

	record := &p.state.records[id]
	if !record.Status.canAdvanceTo(next) {
		from := record.Status
		p.mu.Unlock()
		p.logger.Error("Rejected record transition",
			Int("id", id),
			String("from", string(from)),
			String("to", string(next)),
		)
		return
	}

	record.Status = next
	record.Content = content
	record.Error = errMsg
	snap, fn := p.snapshotLocked(), p.onChange
	p.mu.Unlock()

	if next == StatusSuccess || next == StatusFailed {
		p.metrics.observeRecord(next)
	}
	notify(fn, snap)
}

// Reset discards a finished or failed batch. It is a no-op when idle and
// returns ErrBatchInProgress while a batch is being parsed or fetched.
func (p *BatchProcessor) Reset() error {
	p.mu.Lock()
	switch {
	case p.state.phase == PhaseIdle:
		p.mu.Unlock()
		return nil
	case p.state.phase.Busy():
		p.mu.Unlock()
		return ErrBatchInProgress
	}

	if err := p.transitionLocked(PhaseIdle); err != nil {
		p.mu.Unlock()
		return err
	}
	p.state = batchState{phase: PhaseIdle}
	snap, fn := p.snapshotLocked(), p.onChange
	p.mu.Unlock()

	p.logger.Info("Batch reset")
	notify(fn, snap)
	return nil
}

// Wait blocks until the running batch, if any, reaches DONE
func (p *BatchProcessor) Wait() {
	p.wg.Wait()
}

// Snapshot returns a copy of the current state
func (p *BatchProcessor) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *BatchProcessor) snapshotLocked() Snapshot {
	records := make([]ArticleRecord, len(p.state.records))
	copy(records, p.state.records)

	return Snapshot{
		ID:         p.state.id,
		Source:     p.state.source,
		Phase:      p.state.phase,
		Error:      p.state.err,
		Records:    records,
		Summary:    summarize(records),
		StartedAt:  p.state.startedAt,
		FinishedAt: p.state.finishedAt,
	}
}

func (p *BatchProcessor) transitionLocked(next Phase) error {
	if !p.state.phase.canAdvanceTo(next) {
		p.logger.Error("Rejected phase transition",
			String("from", string(p.state.phase)),
			String("to", string(next)),
		)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.state.phase, next)
	}
	p.state.phase = next
	return nil
}

func notify(fn func(Snapshot), snap Snapshot) {
	if fn != nil {
		fn(snap)
	}
}
