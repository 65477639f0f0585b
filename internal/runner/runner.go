// Package runner implements the Action Runner (§4.4): it selects an
// execution strategy by runner kind and applies a component's retry policy
// uniformly across all three.
package runner

import (
	"context"
	"math"
	"time"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/execctx"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/paramschema"
)

// Strategy executes one action under a single runner.Kind. The container and
// remote strategies live in their own subpackages; Inline is implemented
// here since it requires no external dependency.
type Strategy interface {
	Run(ctx context.Context, def model.ComponentDefinition, ec *execctx.Context, params map[string]any) (map[string]any, error)
}

// Runner dispatches each action to the Strategy registered for its
// component's runner kind and retries according to the component's
// RetryPolicy.
type Runner struct {
	strategies map[model.RunnerKind]Strategy
}

// New constructs a Runner. Strategies not supplied here simply aren't
// dispatchable; Execute returns ConfigurationError for an unregistered kind.
func New(strategies map[model.RunnerKind]Strategy) *Runner {
	return &Runner{strategies: strategies}
}

// Execute runs def against params, retrying per def.RetryPolicy until
// success, a non-retryable error, or attempts are exhausted.
func (r *Runner) Execute(
	ctx context.Context,
	def model.ComponentDefinition,
	ec *execctx.Context,
	params map[string]any,
) (map[string]any, error) {
	strat, ok := r.strategies[def.Runner.Kind]
	if !ok {
		return nil, apierr.New(apierr.KindConfiguration, "no Action Runner strategy registered for kind %q", def.Runner.Kind).
			WithField("configKey", "runner.kind")
	}

	// Validate the fully bindings-resolved params once more before
	// dispatch: the Compiler already checked the statically known subset,
	// but edge-bound inputs only get their real values here.
	if err := paramschema.Validate(def.ParameterSchema, params); err != nil {
		return nil, apierr.Wrap(apierr.KindValidation, err, "InvalidParams").WithField("kind", "InvalidParams").WithField("componentId", def.ID)
	}

	policy := def.RetryPolicy
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := strat.Run(ctx, def, ec, params)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if attempt == maxAttempts || !isRetryable(err, policy) {
			return nil, err
		}

		delay := backoffDelay(policy, attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// isRetryable reports whether err's Kind is retryable and not named in the
// component's NonRetryableErrorKinds.
func isRetryable(err error, policy model.RetryPolicy) bool {
	apiErr, ok := apierr.As(err)
	if !ok {
		return false
	}
	for _, k := range policy.NonRetryableErrorKinds {
		if string(apiErr.Kind) == k {
			return false
		}
	}
	return apiErr.Retryable()
}

// backoffDelay implements §4.4's retry delay formula:
// min(initial * coeff^(n-1), max).
func backoffDelay(policy model.RetryPolicy, attempt int) time.Duration {
	initial := policy.InitialIntervalSeconds
	if initial <= 0 {
		initial = 1
	}
	coeff := policy.BackoffCoefficient
	if coeff <= 0 {
		coeff = 1
	}
	max := policy.MaximumIntervalSeconds
	if max <= 0 {
		max = initial
	}

	delay := initial * math.Pow(coeff, float64(attempt-1))
	if delay > max {
		delay = max
	}
	return time.Duration(delay * float64(time.Second))
}

// inlineStrategy runs a component's Execute function directly in the
// caller's goroutine. It applies no timeout: ExecuteFn receives no context
// and runs until it returns.
type inlineStrategy struct{}

// Inline returns the Strategy for model.RunnerInline components.
func Inline() Strategy { return inlineStrategy{} }

func (inlineStrategy) Run(ctx context.Context, def model.ComponentDefinition, ec *execctx.Context, params map[string]any) (map[string]any, error) {
	if def.ExecuteFn == nil {
		return nil, apierr.New(apierr.KindConfiguration, "component %q has no inline execute function", def.ID).
			WithField("configKey", "executeFn")
	}
	return def.ExecuteFn(ec, params)
}
