package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/daybreak-data/holiday-registry/internal/resilience"
)

// httpClient is the shared HTTP plumbing for the adapters: per-provider rate
// limiting, bounded retries on transient status codes, and JSON decoding.
type httpClient struct {
	provider string
	client   *http.Client
	limiter  *rate.Limiter
	retry    resilience.Policy
	headers  map[string]string
}

// ClientOptions tunes the shared adapter HTTP behavior.
type ClientOptions struct {
	Timeout        time.Duration
	RequestsPerSec float64
	Retry          resilience.Policy
	Headers        map[string]string
}

func newHTTPClient(providerID string, opts ClientOptions) *httpClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = 2
	}
	retry := opts.Retry
	if retry.Attempts == 0 {
		retry = resilience.DefaultPolicy()
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.LogRetries(providerID, "fetch")
	}
	return &httpClient{
		provider: providerID,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		retry:    retry,
		headers:  opts.Headers,
	}
}

// getJSON fetches url and decodes the body into out, classifying failures
// into the provider failure taxonomy.
func (c *httpClient) getJSON(ctx context.Context, url string, out any) error {
	body, err := resilience.RetryVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.doGet(ctx, url)
	})
	if err != nil {
		return c.classify(err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &SourceError{
			Provider: c.provider,
			Kind:     FailureMalformedResponse,
			Err:      eris.Wrapf(err, "decode %s", url),
		}
	}
	return nil
}

func (c *httpClient) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "build request %s", url)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, resilience.MarkTransient(err, 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, resilience.MarkTransient(eris.Wrap(err, "read body"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.MarkTransient(err, resp.StatusCode)
		}
		return nil, &statusError{status: resp.StatusCode, err: err}
	}
	return body, nil
}

// classify maps a transport-level failure onto the provider taxonomy once
// retries are exhausted.
func (c *httpClient) classify(err error) error {
	kind := FailureUnavailable
	var tr *resilience.Transient
	if errors.As(err, &tr) && tr.Status == http.StatusTooManyRequests {
		kind = FailureRateLimited
	}
	zap.L().Warn("provider fetch failed",
		zap.String("provider", c.provider),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return &SourceError{Provider: c.provider, Kind: kind, Err: err}
}

// statusError carries a non-retryable HTTP status.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() error { return e.err }
