package engine

import (
	"context"

	"github.com/rendis/nodeflow/pkg/schema"
)

// SequenceExecutor runs a node's children one after another.
type SequenceExecutor struct {
	statusTracker
}

// NewSequenceExecutor creates a SequenceExecutor.
func NewSequenceExecutor() *SequenceExecutor {
	return &SequenceExecutor{}
}

func (s *SequenceExecutor) options(node *schema.Node) (schema.SequenceOptions, error) {
	section, err := node.Section(string(schema.NodeKindSequence))
	if err != nil {
		return schema.SequenceOptions{}, err
	}
	return schema.ParseSequenceOptions(section)
}

// Validate checks the sequence section.
func (s *SequenceExecutor) Validate(node *schema.Node) error {
	_, err := s.options(node)
	return err
}

// Execute dispatches each child in order and returns their results in order.
// With passPreviousResult the last recorded result is handed to the next child.
func (s *SequenceExecutor) Execute(ctx context.Context, node *schema.Node, ec *ExecutionContext) (any, error) {
	s.begin()
	opts, err := s.options(node)
	if err != nil {
		return s.finish(nil, err)
	}

	results := make([]any, 0, len(node.ChildIDs))
	var errs []error
	for _, childID := range node.ChildIDs {
		childEC := ec.WithoutPreviousResult()
		if opts.PassPreviousResult && len(results) > 0 {
			childEC = ec.WithPreviousResult(results[len(results)-1])
		}

		result, err := runChild(ctx, ec, childID, childEC, opts.Timeout)
		if err == nil {
			results = append(results, result)
			continue
		}

		h := HandleChildError(ctx, ec.logger(), opts.ErrorStrategy, node.ID, childID, err)
		if h.Abort {
			return s.finish(nil, err)
		}
		if h.Collect {
			errs = append(errs, err)
		}
		if h.Placeholder {
			results = append(results, nil)
		}
	}

	if len(errs) > 0 {
		agg := schema.NewAggregateError(node.ID, errs)
		agg.Details["results"] = results
		return s.finish(nil, agg)
	}
	return s.finish(results, nil)
}
