package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type ExportState int

const (
	StateInit ExportState = iota
	StateFetchCount
	StateList
	StateDetail
	StateFinalize
)

func (state ExportState) String() string {
	return [...]string{"INIT", "FETCH_COUNT", "LIST", "DETAIL", "FINALIZE"}[state]
}

const (
	DefaultRecordTimeout    = 10 * time.Minute
	DefaultMaxResetFailures = 3

	// share of the progress bar spent on list pages when details are fetched
	listProgressShare = 0.2
)

type ExportOptions struct {
	PerPage          int
	RecordTimeout    time.Duration // soft deadline per record, and per list page
	TabTimeout       time.Duration
	MaxResetFailures int       // consecutive failed resets before the job aborts
	Tabs             []TabKind // nil means TabsFor the record type
	SkipDetails      bool      // export list fields only
	Resume           map[string]bool
}

func (options ExportOptions) recordTimeout() time.Duration {
	if options.RecordTimeout <= 0 {
		return DefaultRecordTimeout
	}
	return options.RecordTimeout
}

func (options ExportOptions) maxResetFailures() int {
	if options.MaxResetFailures <= 0 {
		return DefaultMaxResetFailures
	}
	return options.MaxResetFailures
}

// Exporter collects every record of a search into a table.
type Exporter struct {
	Launch   Launcher
	Browser  BrowserOptions
	Routes   Routes
	BaseURL  string
	Log      zerolog.Logger
	Progress ProgressSink
	Failures FailureLog
	Options  ExportOptions
}

// ExportJob is the outcome of one export. It is returned even when the
// export aborts, holding whatever was collected.
type ExportJob struct {
	Filter       SearchFilter
	State        ExportState
	Cursor       PageCursor // sized once from the first search
	Records      []ListRecord
	Table        *Table
	Succeeded    int
	Skipped      int
	SkippedPages int
	Resumed      int
	Failures     []FailureEntry
	Cancelled    bool
	Status       string
}

type exportRun struct {
	*Exporter
	log        zerolog.Logger
	launch     Launcher
	progress   ProgressSink
	job        *ExportJob
	session    *Session
	cursor     PageCursor
	normalizer *Normalizer
	extractor  Extractor
	rows       []*Row
	resets     int  // consecutive failed resets
	stale      bool // the session left the list view in an unknown state
}

// Export runs a bulk export of filter. Record failures are logged and
// skipped and the session is reset. Cancellation of ctx is honoured between
// records, never in the middle of one. Only a failed initial acquisition or
// too many consecutive failed resets return an error.
func (e *Exporter) Export(ctx context.Context, filter SearchFilter) (*ExportJob, error) {
	run := &exportRun{
		Exporter:   e,
		log:        e.Log.With().Str("kind", filter.Kind.String()).Logger(),
		launch:     e.Launch,
		progress:   e.Progress,
		job:        &ExportJob{Filter: filter, State: StateInit},
		normalizer: NewNormalizer(),
		extractor:  Extractor{TabTimeout: e.Options.TabTimeout, BaseURL: e.BaseURL},
	}
	if run.progress == nil {
		run.progress = nopProgress{}
	}
	if run.launch == nil {
		run.launch = ChromeLauncher(e.Log)
	}
	defer run.release()

	job := run.job
	run.progress.Progress(0, "starting session")
	s, err := Acquire(ctx, run.launch, e.Browser, run.log)
	if err != nil {
		job.Status = fmt.Sprintf("could not start a browser session: %v", err)
		run.progress.Status(job.Status)
		return job, err
	}
	run.session = s

	job.State = StateFetchCount
	run.progress.Progress(0, "getting total number of items")
	if err := run.start(ctx); err != nil {
		run.finalize()
		return job, err
	}
	job.Cursor = run.cursor
	run.log.Info().Int("total_count", job.Cursor.TotalCount).Int("total_pages", job.Cursor.TotalPages).Msg("export sized")
	if job.Cursor.TotalCount == 0 {
		run.finalize()
		return job, nil
	}

	if err := run.collectLists(ctx); err != nil {
		run.finalize()
		return job, err
	}
	if e.Options.SkipDetails {
		run.rows = run.normalizer.FlattenList(job.Records)
		job.Succeeded = len(job.Records)
		run.finalize()
		return job, nil
	}
	err = run.collectDetails(ctx)
	run.finalize()
	return job, err
}

func (run *exportRun) release() {
	if run.session != nil {
		run.session.Release()
		run.session = nil
	}
}

func (run *exportRun) softDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), run.Options.recordTimeout())
}

func (run *exportRun) perPage() int {
	if run.Options.PerPage > 0 {
		return run.Options.PerPage
	}
	return ItemsPerPage
}

// prepare applies the filter, searches and moves to page when page > 1.
// Once the job is sized a fresh search keeps the original totals.
func (run *exportRun) prepare(ctx context.Context, page int) error {
	if run.session == nil {
		return SessionError{Op: "prepare", Err: ErrSessionClosed}
	}
	if err := Apply(ctx, run.session, run.Routes, run.job.Filter); err != nil {
		return err
	}
	cursor, err := Search(ctx, run.session, run.job.Filter, run.perPage())
	if err != nil {
		return err
	}
	if run.job.State > StateFetchCount {
		cursor.TotalPages = run.job.Cursor.TotalPages
		cursor.TotalCount = run.job.Cursor.TotalCount
	}
	run.cursor = cursor
	if page > 1 {
		if run.cursor, err = GotoPage(ctx, run.session, cursor, page); err != nil {
			return err
		}
	}
	run.stale = false
	return nil
}

// start runs the first search, resetting the session when it fails.
func (run *exportRun) start(ctx context.Context) error {
	sctx, cancel := run.softDeadline(ctx)
	err := run.prepare(sctx, 0)
	cancel()
	for err != nil {
		run.log.Warn().Err(err).Msg("initial search failed")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		run.resets++
		if run.resets >= run.Options.maxResetFailures() {
			return ResetError{Attempts: run.resets, Err: err}
		}
		sctx, cancel := run.softDeadline(ctx)
		err = run.reset(sctx, 0)
		cancel()
	}
	run.resets = 0
	return nil
}

// reset replaces the session and navigates the new one back to page.
func (run *exportRun) reset(ctx context.Context, page int) error {
	run.release()
	s, err := Acquire(ctx, run.launch, run.Browser, run.log)
	if err != nil {
		return err
	}
	run.session = s
	return run.prepare(ctx, page)
}

// resetAfter resets after a failure. A failed reset is logged as unrecoverable;
// only repeated failures abort the job.
func (run *exportRun) resetAfter(ctx context.Context, record ListRecord) error {
	rctx, cancel := run.softDeadline(ctx)
	defer cancel()
	err := run.reset(rctx, record.Page)
	if err == nil {
		run.resets = 0
		run.log.Info().Int("page", record.Page).Msg("session reset")
		return nil
	}
	run.resets++
	run.fail(FailureEntry{
		Stage:         "reset",
		Page:          record.Page,
		RecordID:      record.RecordID,
		Title:         record.Title,
		Cause:         err.Error(),
		Unrecoverable: true,
	})
	if run.resets >= run.Options.maxResetFailures() {
		return ResetError{Attempts: run.resets, Err: err}
	}
	return nil
}

func (run *exportRun) fail(entry FailureEntry) {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	run.job.Failures = append(run.job.Failures, entry)
	run.log.Warn().
		Str("stage", entry.Stage).
		Int("page", entry.Page).
		Str("record_id", entry.RecordID).
		Bool("unrecoverable", entry.Unrecoverable).
		Msg(entry.Cause)
	if run.Failures == nil {
		return
	}
	if err := run.Failures.Append(entry); err != nil {
		run.log.Error().Err(err).Msg("could not write failure log")
	}
}

// listPage returns the records of page, tagged with the page number.
func (run *exportRun) listPage(ctx context.Context, page int) ([]ListRecord, error) {
	if run.session == nil {
		return nil, SessionError{Op: "list", Err: ErrSessionClosed}
	}
	pctx, cancel := run.softDeadline(ctx)
	defer cancel()
	cursor, err := GotoPage(pctx, run.session, run.cursor, page)
	if err != nil {
		return nil, err
	}
	run.cursor = cursor
	buffer, _ := run.session.ListSnapshot()
	records, _ := ParseList(buffer)
	for i := range records {
		records[i].Page = page
	}
	return records, nil
}

func (run *exportRun) collectLists(ctx context.Context) error {
	job := run.job
	job.State = StateList
	share := listProgressShare
	if run.Options.SkipDetails {
		share = 1
	}
	seen := map[string]bool{}
	pages := job.Cursor.TotalPages
	for page := 1; page <= pages; page++ {
		if ctx.Err() != nil {
			job.Cancelled = true
			return nil
		}
		records, err := run.listPage(ctx, page)
		if err != nil {
			job.SkippedPages++
			run.fail(FailureEntry{Stage: "list", Page: page, Cause: err.Error()})
			if err := run.resetAfter(ctx, ListRecord{Page: page}); err != nil {
				return err
			}
			continue
		}
		for _, record := range records {
			if record.RecordID == "" || seen[record.RecordID] {
				continue
			}
			seen[record.RecordID] = true
			if run.Options.Resume[record.RecordID] {
				job.Resumed++
				continue
			}
			job.Records = append(job.Records, record)
		}
		run.progress.Progress(share*float64(page)/float64(pages), fmt.Sprintf("fetched item list of page %d/%d", page, pages))
	}
	return nil
}

// exportRecord collects one record's detail rows within its soft deadline.
func (run *exportRun) exportRecord(ctx context.Context, record ListRecord) ([]*Row, error) {
	if run.session == nil {
		return nil, SessionError{Op: "detail", Err: ErrSessionClosed}
	}
	rctx, cancel := run.softDeadline(ctx)
	defer cancel()

	cursor, err := GotoPage(rctx, run.session, run.cursor, record.Page)
	if err != nil {
		return nil, err
	}
	run.cursor = cursor

	tabs := run.Options.Tabs
	if len(tabs) == 0 {
		tabs = TabsFor(record.RecordType)
	}
	detail, err := run.extractor.Extract(rctx, run.session, record.RecordID, tabs)
	if err != nil {
		return nil, err
	}
	rows := run.normalizer.FlattenDetail(record.Raw, detail.Payloads(), record.RecordType)

	if err := BackToList(rctx, run.session); err != nil {
		// the record is complete, the session is not
		run.log.Warn().Err(err).Str("record_id", record.RecordID).Msg("could not return to the list")
		run.stale = true
	}
	return rows, nil
}

func (run *exportRun) collectDetails(ctx context.Context) error {
	job := run.job
	job.State = StateDetail
	total := len(job.Records)
	for i, record := range job.Records {
		if ctx.Err() != nil {
			job.Cancelled = true
			return nil
		}
		if run.stale {
			if err := run.resetAfter(ctx, record); err != nil {
				return err
			}
		}
		rows, err := run.exportRecord(ctx, record)
		if err == nil {
			run.rows = append(run.rows, rows...)
			job.Succeeded++
		} else {
			job.Skipped++
			run.fail(FailureEntry{
				Stage:    "detail",
				Page:     record.Page,
				RecordID: record.RecordID,
				Title:    record.Title,
				Cause:    err.Error(),
			})
			if err := run.resetAfter(ctx, record); err != nil {
				return err
			}
		}
		run.progress.Progress(
			listProgressShare+(1-listProgressShare)*float64(i+1)/float64(total),
			fmt.Sprintf("collected details %d/%d", i+1, total),
		)
	}
	return nil
}

func (run *exportRun) finalize() {
	job := run.job
	job.State = StateFinalize
	job.Table = run.normalizer.Table(run.rows)
	switch {
	case job.Succeeded == 0 && job.Skipped == 0 && job.Cursor.TotalCount == 0:
		job.Status = "no items to export"
	default:
		job.Status = fmt.Sprintf("exported %d records (%d rows), skipped %d", job.Succeeded, len(run.rows), job.Skipped)
		if job.SkippedPages > 0 {
			job.Status += fmt.Sprintf(", skipped %d list pages", job.SkippedPages)
		}
		if job.Resumed > 0 {
			job.Status += fmt.Sprintf(", %d already exported", job.Resumed)
		}
	}
	if job.Cancelled {
		job.Status = "cancelled: " + job.Status
	}
	run.log.Info().Str("state", job.State.String()).Msg(job.Status)
	run.progress.Progress(1, "done")
	run.progress.Status(job.Status)
}

// ExportAll runs independent exports, each on its own session, at most
// parallel at a time. Jobs are returned in filter order; the error is the
// first one any job returned.
func (e *Exporter) ExportAll(ctx context.Context, filters []SearchFilter, parallel int) ([]*ExportJob, error) {
	jobs := make([]*ExportJob, len(filters))
	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, filter := range filters {
		g.Go(func() error {
			job, err := e.Export(ctx, filter)
			jobs[i] = job
			return err
		})
	}
	return jobs, g.Wait()
}
