package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource answers by URL. Unknown URLs fail as unreachable.
type fakeSource struct {
	mu      sync.Mutex
	content map[string]string
	calls   []string
	release chan struct{}
}

func (f *fakeSource) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", &FetchError{URL: url, Err: ErrServiceUnreachable, Cause: ctx.Err()}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", &FetchError{URL: url, Err: ErrServiceUnreachable, Cause: err}
	}
	if text, ok := f.content[url]; ok {
		return text, nil
	}
	return "", &FetchError{URL: url, Err: ErrServiceUnreachable}
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func openBytes(data []byte) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

// statusLog records every status each record passed through
type statusLog struct {
	mu     sync.Mutex
	seen   map[int][]ArticleStatus
	phases []Phase
}

func newStatusLog() *statusLog {
	return &statusLog{seen: map[int][]ArticleStatus{}}
}

func (l *statusLog) observe(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.phases) == 0 || l.phases[len(l.phases)-1] != s.Phase {
		l.phases = append(l.phases, s.Phase)
	}
	for _, r := range s.Records {
		hist := l.seen[r.ID]
		if len(hist) == 0 || hist[len(hist)-1] != r.Status {
			l.seen[r.ID] = append(hist, r.Status)
		}
	}
}

func newTestProcessor(src ArticleSource) *BatchProcessor {
	retrying := NewRetryingFetcher(src, RetrySettings{Attempts: 2}, nil, nil)
	return NewBatchProcessor(retrying, testColumns, NewNopLogger(), NewMetrics())
}

func TestProcessorEndToEnd(t *testing.T) {
	src := &fakeSource{content: map[string]string{
		"https://a.example": strings.Repeat("alpha ", 20),
		"https://b.example": strings.Repeat("beta ", 20),
	}}
	p := newTestProcessor(src)
	log := newStatusLog()
	p.OnChange(log.observe)

	data := createTestExcel(t, withHeader(
		[]string{"Alpha", "https://a.example"},
		[]string{"Beta", "https://b.example"},
	))
	require.NoError(t, p.Submit(context.Background(), "articles.xlsx", openBytes(data)))
	p.Wait()

	snap := p.Snapshot()
	assert.Equal(t, PhaseDone, snap.Phase)
	assert.Empty(t, snap.Error)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "articles.xlsx", snap.Source)
	assert.Equal(t, BatchSummary{Total: 2, Succeeded: 2}, snap.Summary)
	assert.True(t, snap.Finished())
	assert.False(t, snap.FinishedAt.Before(snap.StartedAt))

	want := []ArticleStatus{StatusPending, StatusProcessing, StatusSuccess}
	assert.Equal(t, want, log.seen[0])
	assert.Equal(t, want, log.seen[1])
	assert.Equal(t, []Phase{PhaseParsing, PhaseFetching, PhaseDone}, log.phases)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, src.calls)

	out, err := newTestExporter(t).Export(snap.Records)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(out), "نام مقاله: "))
	assert.Less(t, strings.Index(string(out), "Alpha"), strings.Index(string(out), "Beta"))
}

func TestProcessorParseErrorStopsBeforeFetching(t *testing.T) {
	src := &fakeSource{}
	p := newTestProcessor(src)

	data := createTestExcel(t, withHeader(
		[]string{"A", "https://a.example"},
		[]string{"B", "https://b.example"},
		[]string{"C", ""},
	))
	err := p.Submit(context.Background(), "bad.xlsx", openBytes(data))
	p.Wait()

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 4, parseErr.Row)

	snap := p.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Contains(t, snap.Error, "4")
	assert.Contains(t, snap.Error, testURLHeader)
	assert.Empty(t, snap.Records)
	assert.Zero(t, src.callCount())
}

func TestProcessorFileReadError(t *testing.T) {
	p := newTestProcessor(&fakeSource{})

	err := p.Submit(context.Background(), "x.xlsx", func() (io.ReadCloser, error) {
		return nil, errors.New("disk on fire")
	})

	var readErr *FileReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "x.xlsx", readErr.Name)

	snap := p.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, msgFileRead, snap.Error)
	assert.NotContains(t, snap.Error, "disk on fire")
}

func TestProcessorRecordFailureDoesNotStopBatch(t *testing.T) {
	src := &fakeSource{content: map[string]string{
		"https://ok.example": strings.Repeat("ok ", 30),
	}}
	p := newTestProcessor(src)

	data := createTestExcel(t, withHeader(
		[]string{"Broken", "https://down.example"},
		[]string{"Fine", "https://ok.example"},
	))
	require.NoError(t, p.Submit(context.Background(), "mixed.xlsx", openBytes(data)))
	p.Wait()

	snap := p.Snapshot()
	require.Len(t, snap.Records, 2)
	assert.Equal(t, PhaseDone, snap.Phase)

	assert.Equal(t, StatusFailed, snap.Records[0].Status)
	assert.Equal(t, msgUnreachable, snap.Records[0].Error)
	assert.Empty(t, snap.Records[0].Content)

	assert.Equal(t, StatusSuccess, snap.Records[1].Status)
	assert.Empty(t, snap.Records[1].Error)

	// the failed record is retried once, then the batch moves on
	assert.Equal(t, []string{"https://down.example", "https://down.example", "https://ok.example"}, src.calls)
}

func TestProcessorRejectsConcurrentBatch(t *testing.T) {
	src := &fakeSource{
		content: map[string]string{"https://a.example": strings.Repeat("a", 80)},
		release: make(chan struct{}),
	}
	p := newTestProcessor(src)
	data := createTestExcel(t, withHeader([]string{"A", "https://a.example"}))

	require.NoError(t, p.Submit(context.Background(), "one.xlsx", openBytes(data)))
	assert.Equal(t, PhaseFetching, p.Snapshot().Phase)

	err := p.Submit(context.Background(), "two.xlsx", openBytes(data))
	assert.ErrorIs(t, err, ErrBatchInProgress)
	assert.ErrorIs(t, p.Reset(), ErrBatchInProgress)

	close(src.release)
	p.Wait()

	snap := p.Snapshot()
	assert.Equal(t, PhaseDone, snap.Phase)
	assert.Equal(t, "one.xlsx", snap.Source)
}

func TestProcessorReset(t *testing.T) {
	p := newTestProcessor(&fakeSource{})
	assert.NoError(t, p.Reset(), "reset while idle is a no-op")

	bad := createTestExcel(t, withHeader())
	require.Error(t, p.Submit(context.Background(), "empty.xlsx", openBytes(bad)))
	assert.Equal(t, PhaseError, p.Snapshot().Phase)
	assert.Equal(t, msgEmptyResult, p.Snapshot().Error)

	require.NoError(t, p.Reset())
	snap := p.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Error)
	assert.Empty(t, snap.ID)
}

func TestProcessorNewBatchAfterDone(t *testing.T) {
	src := &fakeSource{content: map[string]string{
		"https://a.example": strings.Repeat("a", 80),
		"https://b.example": strings.Repeat("b", 80),
	}}
	p := newTestProcessor(src)

	require.NoError(t, p.Submit(context.Background(), "first.xlsx",
		openBytes(createTestExcel(t, withHeader([]string{"A", "https://a.example"})))))
	p.Wait()
	firstID := p.Snapshot().ID

	require.NoError(t, p.Submit(context.Background(), "second.xlsx",
		openBytes(createTestExcel(t, withHeader([]string{"B", "https://b.example"})))))
	p.Wait()

	snap := p.Snapshot()
	assert.Equal(t, PhaseDone, snap.Phase)
	assert.NotEqual(t, firstID, snap.ID)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "B", snap.Records[0].Name)
}

func TestProcessorCancelledContextStillFinishes(t *testing.T) {
	src := &fakeSource{content: map[string]string{"https://a.example": strings.Repeat("a", 80)}}
	p := newTestProcessor(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := createTestExcel(t, withHeader(
		[]string{"A", "https://a.example"},
		[]string{"B", "https://b.example"},
	))
	require.NoError(t, p.Submit(ctx, "cancelled.xlsx", openBytes(data)))
	p.Wait()

	snap := p.Snapshot()
	assert.Equal(t, PhaseDone, snap.Phase)
	assert.Equal(t, 2, snap.Summary.Failed)
}

func TestProcessorRejectsIllegalRecordTransition(t *testing.T) {
	src := &fakeSource{content: map[string]string{"https://a.example": strings.Repeat("a", 80)}}
	p := newTestProcessor(src)

	require.NoError(t, p.Submit(context.Background(), "a.xlsx",
		openBytes(createTestExcel(t, withHeader([]string{"A", "https://a.example"})))))
	p.Wait()

	p.advance(0, StatusFailed, "", "late failure")
	p.advance(0, StatusProcessing, "", "")
	p.advance(7, StatusProcessing, "", "")

	r := p.Snapshot().Records[0]
	assert.Equal(t, StatusSuccess, r.Status)
	assert.Empty(t, r.Error)
	assert.NotEmpty(t, r.Content)
}

func TestSnapshotIsACopy(t *testing.T) {
	src := &fakeSource{content: map[string]string{"https://a.example": strings.Repeat("a", 80)}}
	p := newTestProcessor(src)
	require.NoError(t, p.Submit(context.Background(), "a.xlsx",
		openBytes(createTestExcel(t, withHeader([]string{"A", "https://a.example"})))))
	p.Wait()

	snap := p.Snapshot()
	snap.Records[0].Name = "mutated"

	assert.Equal(t, "A", p.Snapshot().Records[0].Name)
}

func TestProcessorMetrics(t *testing.T) {
	src := &fakeSource{content: map[string]string{"https://a.example": strings.Repeat("a", 80)}}
	metrics := NewMetrics()
	p := NewBatchProcessor(NewRetryingFetcher(src, RetrySettings{Attempts: 1}, nil, metrics), testColumns, nil, metrics)

	data := createTestExcel(t, withHeader(
		[]string{"A", "https://a.example"},
		[]string{"B", "https://b.example"},
	))
	require.NoError(t, p.Submit(context.Background(), "m.xlsx", openBytes(data)))
	p.Wait()

	assert.InDelta(t, 1, counterValue(t, metrics.RecordsTotal.WithLabelValues("SUCCESS")), 0)
	assert.InDelta(t, 1, counterValue(t, metrics.RecordsTotal.WithLabelValues("FAILED")), 0)
	assert.InDelta(t, 1, counterValue(t, metrics.BatchesTotal.WithLabelValues("completed")), 0)
}
