package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cnb_scraper/config"
	"cnb_scraper/models"
)

// Runner is the pipeline the daemon drives.
type Runner interface {
	RunFile(ctx context.Context, path string) ([]models.AuctionRecord, error)
	RunIndex(ctx context.Context, maxPages int) (int, error)
}

type Scheduler struct {
	cfg    *config.Config
	runner Runner
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once

	// runMu keeps scrape and index jobs from sharing the browser.
	runMu sync.Mutex
}

func New(cfg *config.Config, runner Runner) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	scheduled := false

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Scheduling scrape with cron: %s", s.cfg.Scheduler.Cron)
		if _, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() { s.scrape(ctx) }); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		scheduled = true
	}
	if s.cfg.Scheduler.IndexCron != "" {
		log.Printf("Scheduling index walk with cron: %s", s.cfg.Scheduler.IndexCron)
		if _, err := s.cron.AddFunc(s.cfg.Scheduler.IndexCron, func() { s.index(ctx) }); err != nil {
			return fmt.Errorf("invalid index cron expression: %w", err)
		}
		scheduled = true
	}
	if scheduled {
		s.cron.Start()
	}

	if s.cfg.Scheduler.Cron == "" && s.cfg.Scheduler.Interval > 0 {
		log.Printf("Scheduling scrape every %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.scrape(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
		scheduled = true
	}

	if !scheduled {
		return fmt.Errorf("no schedule configured: set SCRAPE_CRON, INDEX_CRON or SCRAPE_INTERVAL")
	}
	return nil
}

func (s *Scheduler) Stop() {
	s.once.Do(func() {
		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
}

// TriggerNow runs a scrape immediately, waiting for any job in progress.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	_, err := s.runner.RunFile(ctx, s.cfg.Files.URLFile)
	return err
}

func (s *Scheduler) scrape(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.TriggerNow(ctx); err != nil {
		log.Printf("Scheduled scrape error: %v", err)
	}
}

func (s *Scheduler) index(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if _, err := s.runner.RunIndex(ctx, s.cfg.Site.MaxPages); err != nil {
		log.Printf("Scheduled index walk error: %v", err)
	}
}
