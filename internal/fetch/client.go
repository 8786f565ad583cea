// Package fetch implements the retrying HTTP engine that pulls docket pages
// and opinion documents from the court site. Plain fetches go through colly;
// pages that come back as script shells can be promoted to a headless
// renderer.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// ClientConfig controls collector behavior.
type ClientConfig struct {
	UserAgent string
	Timeout   time.Duration
}

type response struct {
	body        []byte
	status      int
	contentType string
}

// Client executes single HTTP GETs using a colly collector. Retry and
// validation live in Engine.
type Client struct {
	cfg           ClientConfig
	baseCollector *colly.Collector
}

// NewClient builds a Client.
func NewClient(cfg ClientConfig) *Client {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	// Retries revisit the same URL; the visited-URL check would reject them.
	c.AllowURLRevisit = true
	c.MaxBodySize = 64 * 1024 * 1024
	c.WithTransport(newHTTPTransport())
	return &Client{cfg: cfg, baseCollector: c}
}

func (c *Client) get(ctx context.Context, url string) (response, error) {
	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		resp     response
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		resp = response{
			body:        append([]byte(nil), r.Body...),
			status:      r.StatusCode,
			contentType: r.Headers.Get("Content-Type"),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			resp.status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		// The visit goroutine may still be writing resp; hand back nothing.
		return response{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return resp, fmt.Errorf("visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return resp, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		return resp, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
