package graph

import "github.com/flowforge/orchestrator/internal/apierr"

// ErrUnknownComponent reports a node whose componentId does not resolve in
// the registry (§4.2 step 1).
func ErrUnknownComponent(nodeID, componentID string) error {
	return apierr.New(apierr.KindValidation, "UnknownComponent").
		WithField("kind", "UnknownComponent").
		WithField("nodeId", nodeID).
		WithField("componentId", componentID)
}

// ErrMissingTrigger reports a graph with no trigger-category node (§4.2
// step 2).
func ErrMissingTrigger() error {
	return apierr.New(apierr.KindValidation, "MissingTrigger").
		WithField("kind", "MissingTrigger")
}

// ErrAmbiguousTrigger reports a graph with more than one eligible trigger
// node (§4.2 step 2).
func ErrAmbiguousTrigger(nodeIDs []string) error {
	return apierr.New(apierr.KindValidation, "AmbiguousTrigger").
		WithField("kind", "AmbiguousTrigger").
		WithField("nodeIds", nodeIDs)
}

// ErrCycleDetected reports leftover edges after Kahn's algorithm terminates
// (§4.2 step 3).
func ErrCycleDetected(nodeIDs []string) error {
	return apierr.New(apierr.KindValidation, "CycleDetected").
		WithField("kind", "CycleDetected").
		WithField("nodeIds", nodeIDs)
}

// ErrMissingBinding reports a required input port with no edge, config
// value, or schema default (§4.2 step 4).
func ErrMissingBinding(nodeID, inputID string) error {
	return apierr.New(apierr.KindValidation, "MissingBinding").
		WithField("kind", "MissingBinding").
		WithField("nodeId", nodeID).
		WithField("inputId", inputID)
}

// ErrInvalidParams reports a node whose statically resolved params (config
// values and schema defaults; edge-bound inputs are validated again by the
// Action Runner once their upstream values are known) fail the component's
// ParameterSchema.
func ErrInvalidParams(nodeID string, cause error) error {
	return apierr.Wrap(apierr.KindValidation, cause, "InvalidParams").
		WithField("kind", "InvalidParams").
		WithField("nodeId", nodeID)
}
