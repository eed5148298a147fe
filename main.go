package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"cnb_scraper/config"
	"cnb_scraper/httputil"
	"cnb_scraper/logging"
	"cnb_scraper/notify"
	"cnb_scraper/scheduler"
	"cnb_scraper/scraper"
	"cnb_scraper/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	app := &cli.App{
		Name:  "cnb_scraper",
		Usage: "Scrape finished Cars & Bids auctions.",
		Commands: []*cli.Command{
			{
				Name:  "scrape",
				Usage: "Scrape every auction URL in a file, upload the results and notify.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "urls",
						Aliases: []string{"u"},
						Value:   cfg.Files.URLFile,
						Usage:   "Newline-delimited file of auction URLs.",
					},
				},
				Action: func(c *cli.Context) error {
					return runScrape(c, cfg)
				},
			},
			{
				Name:  "index",
				Usage: "Walk the past-auctions index and append new URLs to the URL list.",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "max-pages",
						Aliases: []string{"p"},
						Value:   cfg.Site.MaxPages,
						Usage:   "Stop after this many index pages (0 walks them all).",
					},
				},
				Action: func(c *cli.Context) error {
					return runIndex(c, cfg)
				},
			},
			{
				Name:  "daemon",
				Usage: "Run scrapes and index walks on the configured schedule.",
				Action: func(c *cli.Context) error {
					return runDaemon(c, cfg)
				},
			},
			{
				Name:  "runs",
				Usage: "List recent runs from the local ledger.",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Value:   10,
						Usage:   "Number of runs to show.",
					},
					&cli.BoolFlag{
						Name:  "logs",
						Usage: "Print the log lines of each run.",
					},
				},
				Action: func(c *cli.Context) error {
					return listRuns(c, cfg)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// pipeline holds the orchestrator and everything it owns.
type pipeline struct {
	orchestrator *scraper.Orchestrator
	closers      []func()
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	p := &pipeline{}

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	p.closers = append(p.closers, func() { sqliteStore.Close() })
	log.Printf("SQLite database: %s", cfg.DBPath)

	var uploader scraper.Uploader
	if cfg.Storage.Bucket != "" {
		s3Uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
		})
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("s3: %w", err)
		}
		uploader = s3Uploader
		log.Printf("Uploading results to bucket %s", cfg.Storage.Bucket)
	} else {
		log.Println("Warning: AUCTIONS_BUCKET not set, results will not be uploaded")
	}

	var sink scraper.RecordSink
	if cfg.DBURL != "" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.DBURL)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		p.closers = append(p.closers, pgStore.Close)
		sink = pgStore
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DBURL))
	}

	clients := httputil.NewClients(cfg.Proxy)
	notifier := notify.NewNtfy(cfg.Notify, clients.Resty(cfg.Browser.UserAgent))

	urls := storage.NewURLList(cfg.Files.URLListPath, cfg.Files.URLCSVPath)

	o := scraper.NewOrchestrator(cfg, scraper.NewLauncher(cfg), sqliteStore)
	o.SetServices(uploader, notifier, sink, urls)
	p.orchestrator = o
	return p, nil
}

func runScrape(c *cli.Context, cfg *config.Config) error {
	p, err := newPipeline(c.Context, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	records, err := p.orchestrator.RunFile(c.Context, c.String("urls"))
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}
	log.Printf("Scrape complete: %d records", len(records))
	return nil
}

func runIndex(c *cli.Context, cfg *config.Config) error {
	p, err := newPipeline(c.Context, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	added, err := p.orchestrator.RunIndex(c.Context, c.Int("max-pages"))
	if err != nil {
		return fmt.Errorf("index walk failed: %w", err)
	}
	log.Printf("Index walk complete: %d new URLs", added)
	return nil
}

func runDaemon(c *cli.Context, cfg *config.Config) error {
	p, err := newPipeline(c.Context, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	sched := scheduler.New(cfg, p.orchestrator)
	if err := sched.Start(c.Context); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")
	<-c.Context.Done()

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
	return nil
}

func listRuns(c *cli.Context, cfg *config.Config) error {
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer store.Close()

	runs, err := store.RecentRuns(c.Int("limit"))
	if err != nil {
		return err
	}
	for _, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Sub(r.StartedAt).Round(1e9).String()
		}
		fmt.Fprintf(c.App.Writer, "%s  %-6s  %-9s  %s  urls=%d records=%d failed_sections=%d  %s\n",
			r.StartedAt.Format("2006-01-02 15:04"), r.Kind, r.Status, finished,
			r.URLsTotal, r.RecordsWritten, r.SectionsFailed, r.ObjectKey)
		if r.Error != "" {
			fmt.Fprintf(c.App.Writer, "    error: %s\n", r.Error)
		}
		if !c.Bool("logs") {
			continue
		}
		logs, err := store.RunLogs(r.ID)
		if err != nil {
			return err
		}
		for _, l := range logs {
			fmt.Fprintf(c.App.Writer, "    %s [%s] %s\n", l.Timestamp.Format("15:04:05"), l.Level, l.Message)
		}
	}
	return nil
}

// maskConnectionString hides the password in a connection string for logging.
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	return u.Redacted()
}
