// Package provider calls external risk-data services over HTTP. Every
// failure mode (unreachable, timeout, non-2xx, malformed body) surfaces as an
// error the pipeline treats as "no opinion"; providers can never fail a
// detection request.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"scamshield/pkg/apperr"
	otelobs "scamshield/pkg/observability/otel"
	"scamshield/pkg/risk"
)

const (
	defaultTimeout = 3 * time.Second
	maxRetries     = 2
	maxBodyBytes   = 1 << 20
)

// Client talks to a single external risk provider.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	log     *logrus.Entry
}

// NewClient builds a provider client. timeout <= 0 uses the default 3s.
func NewClient(name, baseURL string, timeout time.Duration, log *logrus.Entry) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		name:    name,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			// Trace context propagates to the provider on tagged builds.
			Transport: otelobs.WrapHTTPTransport(http.DefaultTransport),
		},
		log: log.WithField("provider", name),
	}
}

// Name identifies the provider in logs and telemetry.
func (c *Client) Name() string { return c.name }

type assessRequest struct {
	Route   string `json:"route"`
	Content string `json:"content"`
}

// Assess posts the content for external scoring and returns the provider's
// partial opinion. Retries transient failures with exponential backoff inside
// the caller's context; exhausted failures come back as KindUpstream so the
// pipeline degrades to the local assessment.
func (c *Client) Assess(ctx context.Context, route, content string) (*risk.Opinion, error) {
	payload, err := json.Marshal(assessRequest{Route: route, Content: content})
	if err != nil {
		return nil, fmt.Errorf("provider %s: marshal request: %w", c.name, err)
	}

	var op risk.Opinion
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/assess", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &op); err != nil {
			return backoff.Permanent(fmt.Errorf("decode opinion: %w", err))
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		c.log.WithField("route", route).WithError(err).Debug("provider call failed")
		return nil, apperr.Upstream(fmt.Errorf("provider %s: %w", c.name, err))
	}
	return &op, nil
}
