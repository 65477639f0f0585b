package trace

import (
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/model"
)

// DataflowProjector derives the `dataflow` SSE event kind (§6 stream
// endpoint) from a run's NODE_COMPLETED trace events and its compiled
// ActionPlan bindings. This resolves the open question left unanswered by
// spec.md §9: the stream endpoint is specified to carry a `dataflow` event
// kind without a derivation rule, and this pack's `gojq` dependency has no
// other home in the spec's component model.
type DataflowProjector struct {
	bySource map[string][]derivedBinding
	queries  map[string]*gojq.Code
}

type derivedBinding struct {
	targetRef    string
	targetInput  string
	sourceOutput string
	query        string
}

// NewDataflowProjector indexes plan's bindings by source action ref so
// Project can look up the bindings a completed node feeds in O(1).
// Each binding projects through queryFor(binding), defaulting to the
// identity query "." when queryFor is nil or returns "".
func NewDataflowProjector(plan model.ActionPlan, queryFor func(model.Binding) string) (*DataflowProjector, error) {
	p := &DataflowProjector{
		bySource: make(map[string][]derivedBinding),
		queries:  make(map[string]*gojq.Code),
	}

	for _, action := range plan.Actions {
		for _, binding := range action.Bindings {
			query := "."
			if queryFor != nil {
				if q := queryFor(binding); q != "" {
					query = q
				}
			}
			if _, ok := p.queries[query]; !ok {
				code, err := compileQuery(query)
				if err != nil {
					return nil, apierr.Wrap(apierr.KindConfiguration, err, "compile dataflow query %q", query)
				}
				p.queries[query] = code
			}
			p.bySource[binding.SourceRef] = append(p.bySource[binding.SourceRef], derivedBinding{
				targetRef:    action.Ref,
				targetInput:  binding.TargetInput,
				sourceOutput: binding.SourceOutput,
				query:        query,
			})
		}
	}

	return p, nil
}

func compileQuery(query string) (*gojq.Code, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, err
	}
	return gojq.Compile(parsed)
}

// Project derives zero or more DataflowEvents from a NODE_COMPLETED event,
// one per binding whose SourceRef matches the completed node and whose
// SourceOutput is present in evt.OutputSummary. Non-completion events and
// nodes with no outgoing bindings yield no events.
func (p *DataflowProjector) Project(evt model.TraceEvent) ([]model.DataflowEvent, error) {
	if evt.Type != model.NodeCompleted {
		return nil, nil
	}
	bindings := p.bySource[evt.NodeRef]
	if len(bindings) == 0 {
		return nil, nil
	}

	events := make([]model.DataflowEvent, 0, len(bindings))
	for _, b := range bindings {
		raw, ok := evt.OutputSummary[b.sourceOutput]
		if !ok {
			continue
		}
		value, err := runQuery(p.queries[b.query], raw)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindDependency, err, "project dataflow %s.%s -> %s.%s", evt.NodeRef, b.sourceOutput, b.targetRef, b.targetInput)
		}
		events = append(events, model.DataflowEvent{
			RunID:        evt.RunID,
			SourceRef:    evt.NodeRef,
			SourceOutput: b.sourceOutput,
			TargetRef:    b.targetRef,
			TargetInput:  b.targetInput,
			Value:        value,
		})
	}
	return events, nil
}

func runQuery(code *gojq.Code, input any) (any, error) {
	iter := code.Run(input)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := v.(error); ok {
		return nil, err
	}
	if _, again := iter.Next(); again {
		return nil, fmt.Errorf("dataflow query produced more than one result")
	}
	return v, nil
}
