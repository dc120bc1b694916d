package schemafetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"portald/internal/domain"
)

// wellKnownPath is where portals publish their machine-readable description.
const wellKnownPath = "/openapi.json"

const maxDocumentBytes = 4 << 20

// Document is the strict intermediate representation of a portal's API
// description. Path items keep raw values so metadata keys (parameters,
// summary) can be skipped without failing the whole document.
type Document struct {
	Paths map[string]PathItem `json:"paths"`
}

// PathItem maps candidate HTTP verbs to undecoded operation objects.
type PathItem map[string]json.RawMessage

// Fetcher retrieves API descriptions from portal endpoints. Every failure is
// soft: portals without a reachable description still get a synthesized tool.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

func NewFetcher(timeout time.Duration, logger *zap.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = domain.DefaultSchemaFetchTimeoutSeconds * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger.Named("schemafetch"),
	}
}

// Fetch retrieves <base>/openapi.json. Any network, HTTP or decode failure
// returns an error wrapping domain.ErrNoDescription.
func (f *Fetcher) Fetch(ctx context.Context, baseURL string) (*Document, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: portal has no base url", domain.ErrNoDescription)
	}
	url := strings.TrimRight(baseURL, "/") + wellKnownPath

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoDescription, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("description fetch failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", domain.ErrNoDescription, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Debug("description fetch returned non-200",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d", domain.ErrNoDescription, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoDescription, err)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		f.logger.Debug("description decode failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", domain.ErrNoDescription, err)
	}
	return &doc, nil
}
