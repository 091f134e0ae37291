package prompts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RemoteConfig configures a Langfuse-compatible prompt registry.
type RemoteConfig struct {
	BaseURL   string
	Name      string
	Label     string
	PublicKey string
	SecretKey string
	CacheTTL  time.Duration
	Timeout   time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Validate validates the configuration.
func (c RemoteConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: remote base URL required", ErrPromptUnavailable)
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("%w: parsing base URL: %v", ErrPromptUnavailable, err)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: prompt name required", ErrPromptUnavailable)
	}
	return nil
}

// RemoteSource fetches the prompt over HTTP and caches it for CacheTTL.
// A failed refresh serves the previous prompt if one was ever fetched.
type RemoteSource struct {
	cfg    RemoteConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	cached    string
	fetchedAt time.Time
}

var _ Source = (*RemoteSource)(nil)

// NewRemoteSource creates a remote source.
func NewRemoteSource(cfg RemoteConfig, logger *zap.Logger) (*RemoteSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &RemoteSource{cfg: cfg, client: client, logger: logger, now: time.Now}, nil
}

// Name implements Source.
func (r *RemoteSource) Name() string {
	return "remote"
}

// SystemPrompt implements Source.
func (r *RemoteSource) SystemPrompt(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" && r.cfg.CacheTTL > 0 && r.now().Sub(r.fetchedAt) < r.cfg.CacheTTL {
		return r.cached, nil
	}

	text, err := r.fetch(ctx)
	if err != nil {
		if r.cached != "" {
			r.logger.Warn("prompt refresh failed, serving cached prompt",
				zap.String("prompt", r.cfg.Name),
				zap.Error(err))
			return r.cached, nil
		}
		return "", err
	}

	r.cached = text
	r.fetchedAt = r.now()
	return text, nil
}

func (r *RemoteSource) endpoint() string {
	u := strings.TrimRight(r.cfg.BaseURL, "/") + "/api/public/v2/prompts/" + url.PathEscape(r.cfg.Name)
	if r.cfg.Label != "" {
		u += "?label=" + url.QueryEscape(r.cfg.Label)
	}
	return u
}

// remotePrompt is the registry response. Prompt is a string for text
// prompts and a message list for chat prompts.
type remotePrompt struct {
	Name    string          `json:"name"`
	Version int             `json:"version"`
	Type    string          `json:"type"`
	Prompt  json.RawMessage `json:"prompt"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r *RemoteSource) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: building request: %v", ErrPromptUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.cfg.PublicKey != "" || r.cfg.SecretKey != "" {
		req.SetBasicAuth(r.cfg.PublicKey, r.cfg.SecretKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPromptUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrPromptUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: registry returned status %d", ErrPromptUnavailable, resp.StatusCode)
	}

	var p remotePrompt
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrPromptUnavailable, err)
	}

	text, err := promptText(p)
	if err != nil {
		return "", err
	}
	r.logger.Debug("fetched remote prompt", zap.String("prompt", p.Name), zap.Int("version", p.Version))
	return text, nil
}

func promptText(p remotePrompt) (string, error) {
	if len(p.Prompt) == 0 {
		return "", ErrEmptyPrompt
	}

	if p.Type == "chat" {
		var msgs []chatMessage
		if err := json.Unmarshal(p.Prompt, &msgs); err != nil {
			return "", fmt.Errorf("%w: decoding chat prompt: %v", ErrPromptUnavailable, err)
		}
		var parts []string
		for _, m := range msgs {
			if m.Role == "system" && strings.TrimSpace(m.Content) != "" {
				parts = append(parts, m.Content)
			}
		}
		if len(parts) == 0 {
			return "", ErrEmptyPrompt
		}
		return strings.Join(parts, "\n\n"), nil
	}

	var text string
	if err := json.Unmarshal(p.Prompt, &text); err != nil {
		return "", fmt.Errorf("%w: decoding text prompt: %v", ErrPromptUnavailable, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyPrompt
	}
	return text, nil
}
