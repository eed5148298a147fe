package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"cnb_scraper/config"
	"cnb_scraper/models"
	"cnb_scraper/storage"
)

// Uploader stores the encoded results of a run.
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
}

// Notifier announces a finished run.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// RunStore keeps the run ledger.
type RunStore interface {
	CreateRun(run *models.ScrapeRun) error
	UpdateRun(run *models.ScrapeRun) error
	Log(runID uuid.UUID, level models.LogLevel, message string) error
}

// RecordSink receives every record of a successful run.
type RecordSink interface {
	UpsertRecords(ctx context.Context, runID uuid.UUID, records []models.AuctionRecord) (int, error)
}

// URLStore persists listing URLs found by the index walk.
type URLStore interface {
	AppendNew(urls []string, at time.Time) (int, error)
}

type Orchestrator struct {
	cfg       *config.Config
	launch    Launcher
	store     RunStore
	extractor *Extractor
	walker    *IndexWalker

	uploader Uploader
	notifier Notifier
	sink     RecordSink
	urls     URLStore

	now func() time.Time
}

func NewOrchestrator(cfg *config.Config, launch Launcher, store RunStore) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		launch:    launch,
		store:     store,
		extractor: NewExtractor(cfg.Site),
		walker:    NewIndexWalker(cfg.Site),
		now:       time.Now,
	}
}

// SetServices injects the optional collaborators. Nil values are skipped
// during a run.
func (o *Orchestrator) SetServices(uploader Uploader, notifier Notifier, sink RecordSink, urls URLStore) {
	o.uploader = uploader
	o.notifier = notifier
	o.sink = sink
	o.urls = urls
}

// RunFile scrapes every URL listed in path.
func (o *Orchestrator) RunFile(ctx context.Context, path string) ([]models.AuctionRecord, error) {
	urls, err := storage.ReadURLs(path)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded %d URLs from %s", len(urls), path)
	return o.Run(ctx, urls)
}

// Run scrapes urls in order, one record per URL, then uploads the batch and
// sends the completion notice.
func (o *Orchestrator) Run(ctx context.Context, urls []string) ([]models.AuctionRecord, error) {
	run := o.startRun(models.RunKindDetail, len(urls))
	defer o.finishRun(run)

	session, err := o.launch(ctx)
	if err != nil {
		return nil, o.fail(run, fmt.Errorf("launch browser: %w", err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Printf("Error closing browser: %v", err)
		}
	}()

	records := make([]models.AuctionRecord, 0, len(urls))
	for i, u := range urls {
		if i > 0 {
			if err := sleepCtx(ctx, o.cfg.Site.RateLimit()); err != nil {
				return records, o.fail(run, err)
			}
		}
		o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Scraping %d/%d: %s", i+1, len(urls), u))

		rec := o.extractor.Extract(ctx, session, u, o.cfg.Site.PageTimeout())
		run.SectionsFailed += rec.FailedSections()
		records = append(records, rec)
	}

	if err := o.publish(ctx, run, records); err != nil {
		return records, o.fail(run, err)
	}

	run.Status = models.RunStatusCompleted
	o.log(run.ID, models.LogLevelInfo,
		fmt.Sprintf("Completed: %d records, %d failed sections", len(records), run.SectionsFailed))
	return records, nil
}

func (o *Orchestrator) publish(ctx context.Context, run *models.ScrapeRun, records []models.AuctionRecord) error {
	data, err := models.EncodeRecords(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	key := storage.ResultsKey(o.cfg.Storage.KeyPrefix, o.now())

	if dir := o.cfg.Storage.OutputDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		out := filepath.Join(dir, path.Base(key))
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Wrote %s", out))
	}

	if o.uploader != nil {
		if err := o.uploader.Upload(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		run.ObjectKey = key
		location := key
		if pu, ok := o.uploader.(interface{ PublicURL(string) string }); ok {
			location = pu.PublicURL(key)
		}
		o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Uploaded %s", location))
	} else {
		o.log(run.ID, models.LogLevelWarn, "No bucket configured, skipping upload")
	}
	run.RecordsWritten = len(records)

	if o.sink != nil {
		n, err := o.sink.UpsertRecords(ctx, run.ID, records)
		if err != nil {
			o.log(run.ID, models.LogLevelWarn, fmt.Sprintf("Failed to store records: %v", err))
		} else {
			o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Stored %d changed records", n))
		}
	}

	if o.notifier != nil {
		msg := fmt.Sprintf("%d auctions scraped and saved successfully", len(records))
		if err := o.notifier.Notify(ctx, msg); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
	}
	return nil
}

// RunIndex walks the listing index and appends any new URLs to the URL list.
func (o *Orchestrator) RunIndex(ctx context.Context, maxPages int) (int, error) {
	run := o.startRun(models.RunKindIndex, 0)
	defer o.finishRun(run)

	if o.urls == nil {
		return 0, o.fail(run, fmt.Errorf("no url store configured"))
	}

	session, err := o.launch(ctx)
	if err != nil {
		return 0, o.fail(run, fmt.Errorf("launch browser: %w", err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Printf("Error closing browser: %v", err)
		}
	}()

	found := o.walker.ExtractListingURLs(ctx, session, maxPages)
	run.URLsTotal = len(found)

	added, err := o.urls.AppendNew(found, o.now())
	if err != nil {
		return 0, o.fail(run, fmt.Errorf("save urls: %w", err))
	}
	run.RecordsWritten = added
	run.Status = models.RunStatusCompleted
	o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Index walk: %d found, %d new", len(found), added))
	return added, nil
}

func (o *Orchestrator) startRun(kind models.RunKind, total int) *models.ScrapeRun {
	run := &models.ScrapeRun{
		ID:        uuid.New(),
		Kind:      kind,
		StartedAt: o.now(),
		Status:    models.RunStatusRunning,
		URLsTotal: total,
	}
	if o.store != nil {
		if err := o.store.CreateRun(run); err != nil {
			log.Printf("Warning: failed to record run: %v", err)
		}
	}
	o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Starting %s run %s", kind, run.ID))
	return run
}

func (o *Orchestrator) finishRun(run *models.ScrapeRun) {
	now := o.now()
	run.FinishedAt = &now
	if o.store == nil {
		return
	}
	if err := o.store.UpdateRun(run); err != nil {
		log.Printf("Warning: failed to update run %s: %v", run.ID, err)
	}
}

func (o *Orchestrator) fail(run *models.ScrapeRun, err error) error {
	run.Status = models.RunStatusFailed
	run.Error = err.Error()
	o.log(run.ID, models.LogLevelError, err.Error())
	return err
}

func (o *Orchestrator) log(runID uuid.UUID, level models.LogLevel, message string) {
	log.Printf("[%s] %s", level, message)
	if o.store != nil {
		o.store.Log(runID, level, message)
	}
}
