package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Browser   BrowserConfig
	Proxy     ProxyConfig
	Storage   StorageConfig
	Notify    NotifyConfig
	Scheduler SchedulerConfig
	Files     FilesConfig
	DBPath    string
	DBURL     string
	LogPath   string
	Site      *SiteConfig
}

type BrowserConfig struct {
	Headless  bool
	UserAgent string
	// NavigationTimeout bounds a single page.Goto.
	NavigationTimeout time.Duration
}

type ProxyConfig struct {
	URL string
}

type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	KeyPrefix       string
	OutputDir       string
}

type NotifyConfig struct {
	BaseURL string
	Topic   string
}

type SchedulerConfig struct {
	Cron      string
	IndexCron string
	Interval  time.Duration
}

type FilesConfig struct {
	URLFile     string
	URLListPath string
	URLCSVPath  string
}

// SiteConfig describes the auction site being scraped. Durations are in
// milliseconds to keep the YAML readable.
type SiteConfig struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	IndexURL           string `yaml:"index_url"`
	OverlaySelector    string `yaml:"overlay_selector"`
	RateLimitMS        int    `yaml:"rate_limit_ms"`
	PageTimeoutMS      int    `yaml:"page_timeout_ms"`
	OverlayTimeoutMS   int    `yaml:"overlay_timeout_ms"`
	BidButtonTimeoutMS int    `yaml:"bid_button_timeout_ms"`
	BidSettleMS        int    `yaml:"bid_settle_ms"`
	PageSettleMS       int    `yaml:"page_settle_ms"`
	EmptyPageRetries   int    `yaml:"empty_page_retries"`
	MaxPages           int    `yaml:"max_pages"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Browser: BrowserConfig{
			Headless:          getEnv("BROWSER_HEADLESS", "true") != "false",
			UserAgent:         getEnv("BROWSER_USER_AGENT", defaultUserAgent),
			NavigationTimeout: getEnvDuration("NAVIGATION_TIMEOUT", 60*time.Second),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		Storage: StorageConfig{
			Bucket:          os.Getenv("AUCTIONS_BUCKET"),
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			KeyPrefix:       os.Getenv("S3_KEY_PREFIX"),
			OutputDir:       os.Getenv("OUTPUT_DIR"),
		},
		Notify: NotifyConfig{
			BaseURL: getEnv("NTFY_BASE_URL", "https://ntfy.sh"),
			Topic:   getEnv("NTFY_TOPIC", "github_actions"),
		},
		Scheduler: SchedulerConfig{
			Cron:      os.Getenv("SCRAPE_CRON"),
			IndexCron: os.Getenv("INDEX_CRON"),
			Interval:  getEnvDuration("SCRAPE_INTERVAL", 0),
		},
		Files: FilesConfig{
			URLFile:     getEnv("URL_FILE", "urls.txt"),
			URLListPath: getEnv("URL_LIST_PATH", "auction_urls.txt"),
			URLCSVPath:  getEnv("URL_CSV_PATH", "auction_urls.csv"),
		},
		DBPath:  getEnv("DB_PATH", "scraper.db"),
		DBURL:   os.Getenv("DATABASE_URL"),
		LogPath: getEnv("LOG_PATH", "scraper.log"),
	}

	site, err := LoadSite(getEnv("SITE_CONFIG", "config/sites/carsandbids.yaml"))
	if err != nil {
		return nil, err
	}
	if ms := getEnvInt("SCRAPE_DELAY_MS", -1); ms >= 0 {
		site.RateLimitMS = ms
	}
	cfg.Site = site

	return cfg, nil
}

// LoadSite reads a site YAML file. A missing file yields the defaults.
func LoadSite(path string) (*SiteConfig, error) {
	site := &SiteConfig{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, site); err != nil {
			return nil, err
		}
	}
	site.applyDefaults()
	return site, nil
}

func (s *SiteConfig) applyDefaults() {
	if s.ID == "" {
		s.ID = "carsandbids"
	}
	if s.Name == "" {
		s.Name = "Cars & Bids"
	}
	if s.IndexURL == "" {
		s.IndexURL = "https://carsandbids.com/past-auctions/"
	}
	if s.OverlaySelector == "" {
		s.OverlaySelector = ".promo-bar.new-seller .rb.close.dismiss"
	}
	if s.RateLimitMS == 0 {
		s.RateLimitMS = 5000
	}
	if s.PageTimeoutMS == 0 {
		s.PageTimeoutMS = 30000
	}
	if s.OverlayTimeoutMS == 0 {
		s.OverlayTimeoutMS = 10000
	}
	if s.BidButtonTimeoutMS == 0 {
		s.BidButtonTimeoutMS = 10000
	}
	if s.BidSettleMS == 0 {
		s.BidSettleMS = 2000
	}
	if s.PageSettleMS == 0 {
		s.PageSettleMS = 5000
	}
	if s.EmptyPageRetries == 0 {
		s.EmptyPageRetries = 1
	}
}

func (s *SiteConfig) RateLimit() time.Duration        { return ms(s.RateLimitMS) }
func (s *SiteConfig) PageTimeout() time.Duration      { return ms(s.PageTimeoutMS) }
func (s *SiteConfig) OverlayTimeout() time.Duration   { return ms(s.OverlayTimeoutMS) }
func (s *SiteConfig) BidButtonTimeout() time.Duration { return ms(s.BidButtonTimeoutMS) }
func (s *SiteConfig) BidSettle() time.Duration        { return ms(s.BidSettleMS) }
func (s *SiteConfig) PageSettle() time.Duration       { return ms(s.PageSettleMS) }

func ms(n int) time.Duration {
	if n < 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
