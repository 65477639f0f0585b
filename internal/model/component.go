// Package model defines the wire and in-memory data model shared across the
// orchestrator: component definitions, workflow graphs, compiled action
// plans, runs, trace events, approval requests, registered tools, session
// tokens, and tool call requests.
package model

import "encoding/json"

type (
	// RunnerKind discriminates how an Action Runner executes a component.
	RunnerKind string

	// BindingType classifies what an input port is satisfied by: a producing
	// action's output, a credential reference, or a compile-time config value.
	BindingType string

	// ConnectionType classifies the shape of a port's value.
	ConnectionType string

	// PrimitiveType enumerates scalar connection types.
	PrimitiveType string

	// ComponentCategory classifies a component for compiler and executor
	// purposes (trigger detection, suspension semantics). Not enumerated by
	// the distilled spec beyond naming "trigger"; declared here since both
	// the Compiler and the Executor discriminate on it.
	ComponentCategory string
)

const (
	RunnerInline    RunnerKind = "inline"
	RunnerContainer RunnerKind = "container"
	RunnerRemote    RunnerKind = "remote"

	BindingAction     BindingType = "action"
	BindingCredential BindingType = "credential"
	BindingConfig     BindingType = "config"

	ConnectionPrimitive ConnectionType = "primitive"
	ConnectionList      ConnectionType = "list"
	ConnectionMap       ConnectionType = "map"
	ConnectionContract  ConnectionType = "contract"
	ConnectionAny       ConnectionType = "any"

	PrimitiveText    PrimitiveType = "text"
	PrimitiveNumber  PrimitiveType = "number"
	PrimitiveBoolean PrimitiveType = "boolean"
	PrimitiveSecret  PrimitiveType = "secret"
	PrimitiveJSON    PrimitiveType = "json"
	PrimitiveFile    PrimitiveType = "file"

	CategoryTrigger  ComponentCategory = "trigger"
	CategoryAction   ComponentCategory = "action"
	CategoryApproval ComponentCategory = "approval"
	CategoryAgent    ComponentCategory = "agent"
)

type (
	// Port describes one named input or output of a component.
	Port struct {
		Name           string         `json:"name"`
		BindingType    BindingType    `json:"bindingType"`
		ConnectionType ConnectionType `json:"connectionType"`
		Primitive      PrimitiveType  `json:"primitive,omitempty"`
		ContractName   string         `json:"contractName,omitempty"`
		Credential     bool           `json:"credential,omitempty"`
		Required       bool           `json:"required,omitempty"`
		Default        json.RawMessage `json:"default,omitempty"`
	}

	// ContainerRunner configures a container-backed component execution.
	ContainerRunner struct {
		Image      string            `json:"image"`
		Entrypoint []string          `json:"entrypoint,omitempty"`
		Command    []string          `json:"command,omitempty"`
		Env        map[string]string `json:"env,omitempty"`
		Network    string            `json:"network,omitempty"`
		TimeoutSec int               `json:"timeoutSec"`
		// PartialSuccessOnNonEmptyStdout resolves the open question in
		// spec.md §9 about which runners share the recon-tool partial-success
		// semantic (§4.4). It is false unless the component definition
		// sets it; no category turns it on by default.
		PartialSuccessOnNonEmptyStdout bool `json:"partialSuccessOnNonEmptyStdout"`
	}

	// RemoteRunner configures an HTTP-backed component execution.
	RemoteRunner struct {
		Endpoint      string `json:"endpoint"`
		AuthSecretRef string `json:"authSecretRef,omitempty"`
		// RateLimitPerSecond caps sustained requests to Endpoint; zero means
		// unlimited. RateLimitBurst sizes the token bucket and defaults to 1
		// when RateLimitPerSecond is set but RateLimitBurst is not.
		RateLimitPerSecond float64 `json:"rateLimitPerSecond,omitempty"`
		RateLimitBurst     int     `json:"rateLimitBurst,omitempty"`
	}

	// Runner is a tagged variant selecting inline, container, or remote
	// execution for a component.
	Runner struct {
		Kind      RunnerKind       `json:"kind"`
		Container *ContainerRunner `json:"container,omitempty"`
		Remote    *RemoteRunner    `json:"remote,omitempty"`
	}

	// RetryPolicy configures retry semantics for a component's Action Runner
	// invocation (§4.4).
	RetryPolicy struct {
		MaxAttempts            int      `json:"maxAttempts"`
		InitialIntervalSeconds float64  `json:"initialIntervalSeconds"`
		BackoffCoefficient     float64  `json:"backoffCoefficient"`
		MaximumIntervalSeconds float64  `json:"maximumIntervalSeconds"`
		NonRetryableErrorKinds []string `json:"nonRetryableErrorKinds,omitempty"`
	}

	// AgentTool declares that a component is additionally exposed to LLM
	// agents as a callable tool (§4.7).
	AgentTool struct {
		ToolName     string   `json:"toolName"`
		Description  string   `json:"description"`
		ExposeParams []string `json:"exposeParams,omitempty"`
	}

	// Execute is the first-class function value invoked by an inline Action
	// Runner. It is never serialized; it is supplied at registration time by
	// the component author.
	Execute func(ctx ExecContext, params map[string]any) (map[string]any, error)

	// ComponentDefinition is an immutable, process-wide registered component.
	// Definitions are looked up by ID and never mutated after registration
	// (§4.1).
	ComponentDefinition struct {
		ID              string            `json:"id"`
		Label           string            `json:"label"`
		Category        ComponentCategory `json:"category"`
		Runner          Runner            `json:"runner"`
		InputSchema     json.RawMessage   `json:"inputSchema"`
		ParameterSchema json.RawMessage   `json:"parameterSchema"`
		OutputSchema    json.RawMessage   `json:"outputSchema"`
		Inputs          []Port            `json:"inputs"`
		Outputs         []Port            `json:"outputs"`
		RetryPolicy     RetryPolicy       `json:"retryPolicy"`
		AgentTool       *AgentTool        `json:"agentTool,omitempty"`
		// ExecuteFn backs RunnerInline components. Nil for container/remote.
		ExecuteFn Execute `json:"-"`
	}
)

// ExecContext is declared here to break the import cycle between model and
// execctx: component Execute functions are typed against this minimal
// capability surface; internal/execctx.Context implements it.
type ExecContext interface {
	RunID() string
	ComponentRef() string
}
