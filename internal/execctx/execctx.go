// Package execctx implements the per-action Execution Context (§4.3): the
// capability bundle the Action Runner builds for every action and passes to
// a component's Execute function.
package execctx

import (
	"context"
	"io"
	"net/http"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/telemetry"
)

// ProgressLevel mirrors the trace level an emitted NODE_PROGRESS event
// carries.
type ProgressLevel string

const (
	ProgressInfo  ProgressLevel = "info"
	ProgressWarn  ProgressLevel = "warn"
	ProgressError ProgressLevel = "error"
	ProgressDebug ProgressLevel = "debug"
)

// Progress is the payload accepted by EmitProgress's long form.
type Progress struct {
	Message string
	Level   ProgressLevel
	Data    map[string]any
}

// Secret is the value returned by Secrets.Get.
type Secret struct {
	Value   string
	Version string
}

// Artifact describes a file a component wants linked to the run.
type Artifact struct {
	Name         string
	MimeType     string
	Content      io.Reader
	Destinations []string
	Metadata     map[string]any
}

type (
	// Storage scopes file upload/download by organization. Absent for
	// components that never exercise it — in that case Context.Storage()
	// returns nil and the component must fail with ConfigurationError
	// before using it.
	Storage interface {
		Upload(ctx context.Context, organizationID, name string, content io.Reader) (fileID string, err error)
		Download(ctx context.Context, organizationID, fileID string) (io.ReadCloser, error)
	}

	// Secrets resolves a secret id to its current value. Implementations
	// must fail closed: a missing key is an error, never a zero value.
	Secrets interface {
		Get(ctx context.Context, id string) (Secret, error)
	}

	// Artifacts persists artifact records linked to a run.
	Artifacts interface {
		Upload(ctx context.Context, runID string, a Artifact) (artifactID string, err error)
	}

	// TraceAppender lets a component append an explicit trace event beyond
	// the NODE_PROGRESS events EmitProgress already produces.
	TraceAppender interface {
		Append(ctx context.Context, event model.TraceEvent) error
	}

	// HTTPClient is the outbound client exposed to components that call
	// external APIs; it applies timeout/retry semantics configured by the
	// Runner.
	HTTPClient interface {
		Do(req *http.Request) (*http.Response, error)
	}
)

// Context is the concrete Execution Context built by the Action Runner for
// one action invocation. Every capability field is nullable: a component
// that needs one absent must return ConfigurationError{configKey} rather
// than panic or silently no-op (§4.3).
type Context struct {
	runID        string
	componentRef string
	logger       telemetry.Logger

	emitFn func(ctx context.Context, p Progress)

	storage   Storage
	secrets   Secrets
	artifacts Artifacts
	trace     TraceAppender
	http      HTTPClient
}

// Option configures an optional capability on a Context.
type Option func(*Context)

// WithStorage attaches the Storage capability.
func WithStorage(s Storage) Option { return func(c *Context) { c.storage = s } }

// WithSecrets attaches the Secrets capability.
func WithSecrets(s Secrets) Option { return func(c *Context) { c.secrets = s } }

// WithArtifacts attaches the Artifacts capability.
func WithArtifacts(a Artifacts) Option { return func(c *Context) { c.artifacts = a } }

// WithTrace attaches the explicit TraceAppender capability.
func WithTrace(t TraceAppender) Option { return func(c *Context) { c.trace = t } }

// WithHTTPClient attaches the outbound HTTP capability.
func WithHTTPClient(h HTTPClient) Option { return func(c *Context) { c.http = h } }

// New constructs a Context for one action invocation. emitFn is invoked
// (non-blocking from the component's perspective) whenever the component
// calls EmitProgress; the Workflow Executor supplies an implementation that
// turns it into a NODE_PROGRESS trace event.
func New(
	runID, componentRef string,
	logger telemetry.Logger,
	emitFn func(ctx context.Context, p Progress),
	opts ...Option,
) *Context {
	c := &Context{
		runID:        runID,
		componentRef: componentRef,
		logger:       logger,
		emitFn:       emitFn,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunID implements model.ExecContext.
func (c *Context) RunID() string { return c.runID }

// ComponentRef implements model.ExecContext.
func (c *Context) ComponentRef() string { return c.componentRef }

// Logger returns the logger passed to New, unchanged; it does not add
// runId or componentRef tags to what the component logs.
func (c *Context) Logger() telemetry.Logger {
	return c.logger
}

// EmitProgress emits a NODE_PROGRESS trace event. message is wrapped as
// Progress{Message: message, Level: ProgressInfo}.
func (c *Context) EmitProgress(ctx context.Context, message string) {
	c.EmitProgressDetailed(ctx, Progress{Message: message, Level: ProgressInfo})
}

// EmitProgressDetailed is the long form of EmitProgress, carrying a level
// and structured data.
func (c *Context) EmitProgressDetailed(ctx context.Context, p Progress) {
	if p.Level == "" {
		p.Level = ProgressInfo
	}
	if c.emitFn != nil {
		c.emitFn(ctx, p)
	}
}

// Storage returns the Storage capability, or nil if this action's component
// was not granted one.
func (c *Context) Storage() Storage { return c.storage }

// Secrets returns the Secrets capability, or nil.
func (c *Context) Secrets() Secrets { return c.secrets }

// Artifacts returns the Artifacts capability, or nil.
func (c *Context) Artifacts() Artifacts { return c.artifacts }

// Trace returns the explicit TraceAppender capability, or nil.
func (c *Context) Trace() TraceAppender { return c.trace }

// HTTP returns the outbound HTTPClient capability, or nil.
func (c *Context) HTTP() HTTPClient { return c.http }

// RequireStorage returns the Storage capability or a ConfigurationError if
// absent, for components that cannot proceed without it.
func (c *Context) RequireStorage() (Storage, error) {
	if c.storage == nil {
		return nil, missingCapability("storage")
	}
	return c.storage, nil
}

// RequireSecrets returns the Secrets capability or a ConfigurationError if
// absent.
func (c *Context) RequireSecrets() (Secrets, error) {
	if c.secrets == nil {
		return nil, missingCapability("secrets")
	}
	return c.secrets, nil
}

// RequireArtifacts returns the Artifacts capability or a ConfigurationError
// if absent.
func (c *Context) RequireArtifacts() (Artifacts, error) {
	if c.artifacts == nil {
		return nil, missingCapability("artifacts")
	}
	return c.artifacts, nil
}

// RequireHTTP returns the HTTPClient capability or a ConfigurationError if
// absent.
func (c *Context) RequireHTTP() (HTTPClient, error) {
	if c.http == nil {
		return nil, missingCapability("http")
	}
	return c.http, nil
}

func missingCapability(key string) error {
	return apierr.New(apierr.KindConfiguration, "required capability %q is not configured for this component", key).
		WithField("configKey", key)
}
