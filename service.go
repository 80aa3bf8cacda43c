package bibinject

import (
	"context"
	"fmt"
)

// Service orchestrates the parse → format → inject pipeline.
// Create with NewService; a Service is immutable after construction and
// safe for concurrent use, since every stage is a pure function of its
// inputs and the style registry is read-only.
type Service struct {
	cfg       serviceConfig
	registry  *StyleRegistry
	formatter *Formatter
}

// NewService creates a Service with the embedded style registry.
// Use options to customize behavior (e.g. WithStylePath, WithRegistry).
func NewService(opts ...Option) (*Service, error) {
	s := &Service{}

	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		registry, err := NewStyleRegistry(s.cfg.stylePath)
		if err != nil {
			return nil, err
		}
		s.registry = registry
	}
	s.formatter = NewFormatter(s.registry)

	return s, nil
}

// Registry exposes the style registry so collaborators (CLI --refspec help,
// the web form dropdown) can enumerate available styles.
func (s *Service) Registry() *StyleRegistry {
	return s.registry
}

// Convert runs the full pipeline. With Input.Document set the result
// carries the injected document; without it the run stops after fragment
// generation (fragment-only mode, used by the web preview).
//
// The context is checked between stages; there are no suspension points
// inside a stage. Failures surface immediately as the typed error of the
// failing stage, and a run never produces partial output.
func (s *Service) Convert(ctx context.Context, input Input) (*Result, error) {
	if input.BibTeX == "" {
		return nil, ErrEmptyBibTeX
	}

	style := input.Style
	if style == "" {
		style = DefaultStyle
	}
	order := input.Order
	if order == "" {
		order = OrderDesc
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := Parse(input.BibTeX)
	if err != nil {
		return nil, fmt.Errorf("parsing bibtex: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	formatted, err := s.formatter.Format(entries, style, FormatOptions{
		Order:   order,
		GroupBy: input.GroupBy,
	})
	if err != nil {
		return nil, fmt.Errorf("formatting references: %w", err)
	}

	result := &Result{
		Fragment: Fragment(formatted.Groups),
		Groups:   formatted.Groups,
		Warnings: formatted.Warnings,
	}

	if input.Document == "" {
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	injected, err := Inject(input.Document, input.AnchorID, result.Fragment)
	if err != nil {
		return nil, fmt.Errorf("injecting references: %w", err)
	}
	result.Document = injected

	return result, nil
}
