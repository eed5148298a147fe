package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"cnb_scraper/config"
)

// Ntfy posts plain-text messages to an ntfy topic.
type Ntfy struct {
	client *resty.Client
	url    string
}

func NewNtfy(cfg config.NotifyConfig, client *resty.Client) *Ntfy {
	if client == nil {
		client = resty.New()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://ntfy.sh"
	}
	return &Ntfy{
		client: client,
		url:    base + "/" + cfg.Topic,
	}
}

func (n *Ntfy) Notify(ctx context.Context, message string) error {
	res, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain; charset=utf-8").
		SetBody(message).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("post %s: %w", n.url, err)
	}
	if res.IsError() {
		return fmt.Errorf("post %s: status %d", n.url, res.StatusCode())
	}
	return nil
}
