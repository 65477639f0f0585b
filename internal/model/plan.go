package model

// ActionPlan is the deterministic output of the Workflow Compiler (§4.2).
// Two calls to Compile on the same graph and registry produce byte-identical
// ActionPlan JSON (testable property #2).
type ActionPlan struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Entrypoint  Entrypoint `json:"entrypoint"`
	Actions     []Action   `json:"actions"`
	Config      PlanConfig `json:"config"`
}

// Entrypoint names the trigger action's ref; it has empty DependsOn.
type Entrypoint struct {
	Ref string `json:"ref"`
}

// Action is a single compiled execution unit.
type Action struct {
	Ref         string         `json:"ref"`
	ComponentID string         `json:"componentId"`
	Params      map[string]any `json:"params"`
	DependsOn   []string       `json:"dependsOn"`
	Bindings    []Binding      `json:"bindings"`
}

// Binding wires a producing action's output port to this action's input.
type Binding struct {
	TargetInput  string `json:"targetInput"`
	SourceRef    string `json:"sourceRef"`
	SourceOutput string `json:"sourceOutput"`
}

// PlanConfig carries plan-wide execution settings.
type PlanConfig struct {
	Environment    map[string]string `json:"environment,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
}
