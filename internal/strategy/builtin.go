package strategy

import (
	"context"
	"errors"
	"strings"
)

// subject is what templated strategies describe: the task if given, else the
// prompt.
func subject(prompt, task string) string {
	if s := strings.TrimSpace(task); s != "" {
		return s
	}
	return strings.TrimSpace(prompt)
}

// StaticKnowledge answers from the built-in knowledge base. A task class
// without an entry fails with ErrNoKnowledge.
func StaticKnowledge(ctx context.Context, _ string, task string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e, ok := knowledge[Classify(task)]
	if !ok {
		return "", ErrNoKnowledge
	}
	return render(knowledgeTmpl, e)
}

// Template renders a generic project skeleton for the task.
func Template(ctx context.Context, prompt, task string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return render(skeletonTmpl, subject(prompt, task))
}

// UltraFast prefers static knowledge and falls back to the skeleton.
func UltraFast(ctx context.Context, prompt, task string) (string, error) {
	out, err := StaticKnowledge(ctx, prompt, task)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, ErrNoKnowledge) {
		return "", err
	}
	return Template(ctx, prompt, task)
}

// Heuristic renders a requirement-decomposition outline.
func Heuristic(ctx context.Context, prompt, task string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return render(heuristicTmpl, subject(prompt, task))
}

// GenerateFunc produces text from a model-backed backend.
type GenerateFunc func(ctx context.Context, model, prompt string) (string, error)

// Generative wraps a backend call as a strategy bound to model. Empty output
// counts as a failure so a silent backend cannot win a race.
func Generative(kind Kind, priority int, model string, gen GenerateFunc) Descriptor {
	return Descriptor{
		Kind:     kind,
		Priority: priority,
		Run: func(ctx context.Context, prompt, _ string) (string, error) {
			out, err := gen(ctx, model, prompt)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(out) == "" {
				return "", errors.New(string(kind) + ": empty response")
			}
			return out, nil
		},
	}
}

// Builtin returns the deterministic strategies that need no backend.
func Builtin() []Descriptor {
	return []Descriptor{
		{Kind: KindUltraFast, Priority: PriorityUltraFast, Run: UltraFast},
		{Kind: KindStaticKnowledge, Priority: PriorityStaticKnowledge, Run: StaticKnowledge},
		{Kind: KindTemplate, Priority: PriorityTemplate, Run: Template},
		{Kind: KindHeuristic, Priority: PriorityHeuristic, Run: Heuristic},
	}
}

// Models selects backend models for the generative strategies. An empty
// field disables that strategy.
type Models struct {
	Fast     string
	Standard string
}

// Default builds the full strategy set: the built-ins plus generative
// strategies for each configured model. gen may be nil to disable them.
func Default(models Models, gen GenerateFunc) *Set {
	ds := Builtin()
	if gen != nil {
		if m := strings.TrimSpace(models.Fast); m != "" {
			ds = append(ds, Generative(KindBackendFast, PriorityBackendFast, m, gen))
		}
		if m := strings.TrimSpace(models.Standard); m != "" {
			ds = append(ds, Generative(KindBackendStandard, PriorityBackendStandard, m, gen))
		}
	}
	return MustSet(ds...)
}
