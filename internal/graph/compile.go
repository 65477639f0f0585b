// Package graph implements the Workflow Compiler (§4.2): it validates a
// user-authored Graph against a Component Registry and emits a
// deterministic, dependency-ordered ActionPlan.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/flowforge/orchestrator/internal/component"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/paramschema"
)

// Compiler translates graphs into action plans against a fixed Component
// Registry. A Compiler is safe for concurrent use; Compile performs no
// mutation of shared state.
type Compiler struct {
	registry *component.Registry
}

// New constructs a Compiler bound to registry. Two Compilers bound to the
// same registry produce byte-identical ActionPlan JSON for the same graph
// (§8 property #2).
func New(registry *component.Registry) *Compiler {
	return &Compiler{registry: registry}
}

// Compile runs the five-step algorithm from §4.2 and returns the resulting
// ActionPlan, or the first validation error encountered.
func (c *Compiler) Compile(g model.Graph) (model.ActionPlan, error) {
	nodeByID := make(map[string]model.Node, len(g.Nodes))
	defByNode := make(map[string]model.ComponentDefinition, len(g.Nodes))

	// Step 1: validate componentId resolution.
	for _, n := range g.Nodes {
		def, ok := c.registry.Get(n.ComponentID)
		if !ok {
			return model.ActionPlan{}, ErrUnknownComponent(n.ID, n.ComponentID)
		}
		nodeByID[n.ID] = n
		defByNode[n.ID] = def
	}

	// Step 2: trigger detection. Exactly one node of category "trigger"
	// with no incoming edges.
	incoming := make(map[string][]model.Edge, len(g.Nodes))
	for _, e := range g.Edges {
		incoming[e.Target] = append(incoming[e.Target], e)
	}
	var triggers []string
	for _, n := range g.Nodes {
		if defByNode[n.ID].Category == model.CategoryTrigger && len(incoming[n.ID]) == 0 {
			triggers = append(triggers, n.ID)
		}
	}
	sort.Strings(triggers)
	switch len(triggers) {
	case 0:
		return model.ActionPlan{}, ErrMissingTrigger()
	case 1:
		// ok
	default:
		return model.ActionPlan{}, ErrAmbiguousTrigger(triggers)
	}
	entrypoint := triggers[0]

	// Step 3: topological sort via Kahn's algorithm.
	order, err := kahnSort(g.Nodes, g.Edges)
	if err != nil {
		return model.ActionPlan{}, err
	}

	// Step 4 & 5: binding resolution and emission, in topological order with
	// deterministic tie-breaking (nodes by id, edges by id, bindings by
	// target input id) so repeated compiles are byte-identical.
	actions := make([]model.Action, 0, len(order))
	for _, nodeID := range order {
		n := nodeByID[nodeID]
		def := defByNode[nodeID]

		deps := dependsOn(nodeID, incoming[nodeID])

		bindings, params, err := resolveBindings(n, def, incoming[nodeID], nodeByID)
		if err != nil {
			return model.ActionPlan{}, err
		}

		if err := paramschema.Validate(def.ParameterSchema, params); err != nil {
			return model.ActionPlan{}, ErrInvalidParams(n.ID, err)
		}

		actions = append(actions, model.Action{
			Ref:         nodeID,
			ComponentID: def.ID,
			Params:      params,
			DependsOn:   deps,
			Bindings:    bindings,
		})
	}

	return model.ActionPlan{
		Title:       g.Name,
		Description: g.Description,
		Entrypoint:  model.Entrypoint{Ref: entrypoint},
		Actions:     actions,
		Config:      model.PlanConfig{},
	}, nil
}

// dependsOn returns the sorted, deduplicated set of source node ids feeding
// into nodeID's incoming edges.
func dependsOn(nodeID string, edges []model.Edge) []string {
	_ = nodeID
	seen := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		seen[e.Source] = struct{}{}
	}
	deps := make([]string, 0, len(seen))
	for src := range seen {
		deps = append(deps, src)
	}
	sort.Strings(deps)
	return deps
}

// resolveBindings satisfies §4.2 step 4: every required input must be
// satisfied by an edge, a config value, or a schema default.
func resolveBindings(
	n model.Node,
	def model.ComponentDefinition,
	incoming []model.Edge,
	nodeByID map[string]model.Node,
) ([]model.Binding, map[string]any, error) {
	// Sort incoming edges by id for determinism.
	edgesSorted := append([]model.Edge(nil), incoming...)
	sort.Slice(edgesSorted, func(i, j int) bool { return edgesSorted[i].ID < edgesSorted[j].ID })

	edgeByTarget := make(map[string]model.Edge, len(edgesSorted))
	for _, e := range edgesSorted {
		if e.TargetHandle != "" {
			edgeByTarget[e.TargetHandle] = e
		}
	}

	params := make(map[string]any)
	var bindings []model.Binding

	for _, in := range def.Inputs {
		if e, ok := edgeByTarget[in.Name]; ok {
			bindings = append(bindings, model.Binding{
				TargetInput:  in.Name,
				SourceRef:    e.Source,
				SourceOutput: e.SourceHandle,
			})
			continue
		}
		if v, ok := n.Data.Config[in.Name]; ok {
			resolved, err := resolveConfigValue(v, n, nodeByID)
			if err != nil {
				return nil, nil, err
			}
			params[in.Name] = resolved
			continue
		}
		if len(in.Default) > 0 {
			params[in.Name] = in.Default
			continue
		}
		if in.Required {
			return nil, nil, ErrMissingBinding(n.ID, in.Name)
		}
	}

	sort.Slice(bindings, func(i, j int) bool { return bindings[i].TargetInput < bindings[j].TargetInput })
	return bindings, params, nil
}

// resolveConfigValue evaluates `${...}` templated config values against a
// small expression environment (sibling node configs), using expr-lang/expr.
// Plain values pass through unchanged.
func resolveConfigValue(v any, n model.Node, nodeByID map[string]model.Node) (any, error) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return v, nil
	}
	exprSrc := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")

	env := make(map[string]any, len(nodeByID))
	for id, other := range nodeByID {
		env[id] = map[string]any{"config": other.Data.Config}
	}
	env["self"] = map[string]any{"config": n.Data.Config}

	program, err := expr.Compile(exprSrc, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("compile config expression for node %q: %w", n.ID, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate config expression for node %q: %w", n.ID, err)
	}
	return out, nil
}

// kahnSort runs Kahn's algorithm over nodes/edges, breaking ties by node id
// so output order is deterministic. Returns ErrCycleDetected if edges
// remain once no more zero-indegree nodes can be processed.
func kahnSort(nodes []model.Node, edges []model.Edge) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	adj := make(map[string][]string, len(nodes))
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		indegree[n.ID] = 0
		ids = append(ids, n.ID)
	}
	for _, e := range edges {
		indegree[e.Target]++
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	for src := range adj {
		sort.Strings(adj[src])
	}

	var ready []string
	for _, id := range ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(nodes))
	processed := make(map[string]struct{}, len(nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		processed[id] = struct{}{}
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(nodes) {
		var remaining []string
		for _, id := range ids {
			if _, ok := processed[id]; !ok {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, ErrCycleDetected(remaining)
	}
	return order, nil
}
