// Package remote implements the remote HTTP Action Runner strategy (§4.4):
// it POSTs a component's params to a configured endpoint, resolving the
// auth secret through the Execution Context.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/execctx"
	"github.com/flowforge/orchestrator/internal/model"
)

// Strategy runs components whose Runner.Kind is model.RunnerRemote.
type Strategy struct {
	// Client defaults to http.DefaultClient when nil.
	Client *http.Client

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// New constructs a remote Strategy.
func New(httpClient *http.Client) *Strategy {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Strategy{Client: httpClient, limiters: make(map[string]*rate.Limiter)}
}

// limiterFor returns cfg's token bucket, creating it on first use and
// reusing it across calls so the rate applies across the endpoint's full
// lifetime rather than resetting per invocation. Endpoints with no
// configured rate limit share a nil (no-op) entry.
func (s *Strategy) limiterFor(cfg *model.RemoteRunner) *rate.Limiter {
	if cfg.RateLimitPerSecond <= 0 {
		return nil
	}

	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	if l, ok := s.limiters[cfg.Endpoint]; ok {
		return l
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	s.limiters[cfg.Endpoint] = l
	return l
}

// Run implements runner.Strategy. It sets no timeout of its own: a request
// is bounded only by ctx's deadline, if any. The caller's retry policy (applied by runner.Runner) governs attempts across 5xx and
// transport failures.
func (s *Strategy) Run(ctx context.Context, def model.ComponentDefinition, ec *execctx.Context, params map[string]any) (map[string]any, error) {
	cfg := def.Runner.Remote
	if cfg == nil {
		return nil, apierr.New(apierr.KindConfiguration, "component %q has no remote runner config", def.ID).
			WithField("configKey", "runner.remote")
	}

	if limiter := s.limiterFor(cfg); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, apierr.Wrap(apierr.KindDependency, err, "rate limit wait for %s", cfg.Endpoint)
		}
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindValidation, err, "marshal params for %s", ec.ComponentRef())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDependency, err, "build request for %s", ec.ComponentRef())
	}
	req.Header.Set("Content-Type", "application/json")

	if cfg.AuthSecretRef != "" {
		secrets, serr := ec.RequireSecrets()
		if serr != nil {
			return nil, serr
		}
		secret, serr := secrets.Get(ctx, cfg.AuthSecretRef)
		if serr != nil {
			return nil, apierr.Wrap(apierr.KindConfiguration, serr, "resolve auth secret %q", cfg.AuthSecretRef)
		}
		req.Header.Set("Authorization", "Bearer "+secret.Value)
	}

	start := time.Now()
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDependency, err, "call %s", cfg.Endpoint)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDependency, err, "read response from %s", cfg.Endpoint)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out map[string]any
		if len(respBody) > 0 {
			if err := json.Unmarshal(respBody, &out); err != nil {
				return nil, apierr.Wrap(apierr.KindDependency, err, "decode response from %s", cfg.Endpoint)
			}
		}
		ec.Logger().Debug(ctx, "remote action completed", "endpoint", cfg.Endpoint, "elapsed", time.Since(start))
		return out, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, apierr.New(apierr.KindValidation, "remote endpoint %s rejected request: %d", cfg.Endpoint, resp.StatusCode).
			WithField("statusCode", resp.StatusCode).
			WithField("body", string(respBody))
	default:
		return nil, apierr.New(apierr.KindDependency, "remote endpoint %s returned %d", cfg.Endpoint, resp.StatusCode).
			WithField("statusCode", resp.StatusCode)
	}
}
