package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/harvest"
)

// Renderer produces a fully rendered DOM for pages the plain client cannot
// parse. Implementations live in the headless subpackage.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// EngineConfig controls host restrictions and headless promotion.
type EngineConfig struct {
	// AllowedHosts restricts fetches to the named hosts. Empty means no
	// restriction.
	AllowedHosts []string
	// BodyThreshold is the size below which a script-heavy page is promoted
	// to the renderer.
	BodyThreshold int
}

// Engine wraps the single-attempt Client with retry, content validation, and
// optional headless promotion. It implements harvest.Fetcher and
// harvest.BinaryFetcher.
type Engine struct {
	client    *Client
	renderer  Renderer
	heuristic *Heuristic
	policy    harvest.RetryPolicy
	limiter   harvest.Limiter
	pauser    harvest.Pauser
	allowed   map[string]struct{}
	logger    *zap.Logger
}

// NewEngine builds an Engine. renderer may be nil to disable headless
// promotion, and limiter may be nil to fetch without a rate ceiling.
func NewEngine(
	cfg EngineConfig,
	client *Client,
	renderer Renderer,
	policy harvest.RetryPolicy,
	limiter harvest.Limiter,
	pauser harvest.Pauser,
	logger *zap.Logger,
) *Engine {
	allowed := make(map[string]struct{}, len(cfg.AllowedHosts))
	for _, host := range cfg.AllowedHosts {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			allowed[host] = struct{}{}
		}
	}
	return &Engine{
		client:    client,
		renderer:  renderer,
		heuristic: NewHeuristic(cfg.BodyThreshold),
		policy:    policy,
		limiter:   limiter,
		pauser:    pauser,
		allowed:   allowed,
		logger:    logger,
	}
}

// Fetch retrieves one page body with retry applied. A body that looks like an
// unrendered script shell is re-fetched through the renderer when one is
// configured; render failures fall back to the plain body.
func (e *Engine) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := e.checkHost(rawURL); err != nil {
		return nil, err
	}
	var body []byte
	err := e.withRetry(ctx, rawURL, func() error {
		resp, err := e.client.get(ctx, rawURL)
		if err != nil {
			return classify(resp, err)
		}
		if resp.status != http.StatusOK {
			return fmt.Errorf("unexpected status %d for %s", resp.status, rawURL)
		}
		body = resp.body
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.renderer != nil && e.heuristic.ShouldPromote(body) {
		rendered, rerr := e.renderer.Render(ctx, rawURL)
		if rerr != nil {
			e.logger.Warn("headless render failed, keeping plain body",
				zap.String("url", rawURL), zap.Error(rerr))
			return body, nil
		}
		e.logger.Debug("promoted fetch to headless", zap.String("url", rawURL))
		return rendered, nil
	}
	return body, nil
}

// FetchBinary downloads rawURL to dest. The body must begin with magic and
// the response Content-Type must contain contentType (empty values skip the
// respective check). The file appears at dest only after both checks pass;
// validation failures are retried like any transient fault.
func (e *Engine) FetchBinary(ctx context.Context, rawURL, dest string, magic []byte, contentType string) error {
	if err := e.checkHost(rawURL); err != nil {
		return err
	}
	return e.withRetry(ctx, rawURL, func() error {
		resp, err := e.client.get(ctx, rawURL)
		if err != nil {
			return classify(resp, err)
		}
		if resp.status != http.StatusOK {
			return fmt.Errorf("unexpected status %d for %s", resp.status, rawURL)
		}
		if len(magic) > 0 && !bytes.HasPrefix(resp.body, magic) {
			return &harvest.ValidationError{URL: rawURL, Reason: "leading magic bytes missing"}
		}
		if contentType != "" && !strings.Contains(strings.ToLower(resp.contentType), strings.ToLower(contentType)) {
			return &harvest.ValidationError{URL: rawURL, Reason: fmt.Sprintf("content type %q", resp.contentType)}
		}
		return installBytes(resp.body, dest)
	})
}

func (e *Engine) withRetry(ctx context.Context, rawURL string, attempt func() error) error {
	for n := 0; ; n++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("fetch %s: %w", rawURL, err)
			}
		}
		err := attempt()
		if err == nil {
			return nil
		}
		if !e.policy.ShouldRetry(err, n) {
			return err
		}
		delay := e.policy.Backoff(n)
		e.logger.Warn("fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", n+1),
			zap.Duration("backoff", delay),
			zap.Error(err))
		e.pauser.Pause(ctx, delay)
		if ctx.Err() != nil {
			return fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
		}
	}
}

func (e *Engine) checkHost(rawURL string) error {
	if len(e.allowed) == 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url %s: %w", rawURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if _, ok := e.allowed[host]; !ok {
		return fmt.Errorf("host %q is not allowed", host)
	}
	return nil
}

// classify marks server faults and transport failures as transient so the
// retry policy re-attempts them. Client errors pass through unchanged.
func classify(resp response, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if resp.status >= http.StatusInternalServerError || resp.status == http.StatusTooManyRequests {
		return &harvest.TransientError{Err: err}
	}
	if resp.status >= http.StatusBadRequest {
		return err
	}
	return &harvest.TransientError{Err: err}
}

// installBytes writes data next to dest and renames it into place, so dest
// never holds a partial download.
func installBytes(data []byte, dest string) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("create temp download: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp download: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("install download %s: %w", dest, err)
	}
	return nil
}

var (
	_ harvest.Fetcher       = (*Engine)(nil)
	_ harvest.BinaryFetcher = (*Engine)(nil)
)
