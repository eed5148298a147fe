package httputil

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"cnb_scraper/config"
)

type Clients struct {
	API *http.Client // notifications and other outbound calls
}

// NewClients builds the shared HTTP clients. An empty or unparsable proxy
// URL means a direct connection.
func NewClients(proxyCfg config.ProxyConfig) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil && proxyURL.Host != "" {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &Clients{
		API: &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
}

// Resty wraps the API client with the defaults every outbound call shares.
func (c *Clients) Resty(userAgent string) *resty.Client {
	return resty.NewWithClient(c.API).
		SetHeader("User-Agent", userAgent).
		SetRetryCount(0)
}
