package gemini

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/ocrbatch/constants"
)

// Config for the Gemini client.
type Config struct {
	APIKey   string        // selected key (see common.SelectAPIKey)
	BaseURL  string        // default https://generativelanguage.googleapis.com/v1beta
	Model    string        // e.g., "gemini-2.5-pro"
	Prompt   string        // fixed instruction sent with every page
	MIMEType string        // payload type, default image/jpeg
	Timeout  time.Duration // per-request timeout
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = constants.DefaultModel
	}
	if cfg.Prompt == "" {
		cfg.Prompt = constants.DefaultPrompt
	}
	if cfg.MIMEType == "" {
		cfg.MIMEType = "image/jpeg"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }
