package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func okFunc(s string) Func {
	return func(context.Context, string, string) (string, error) { return s, nil }
}

func TestNewSetOrdersByPriorityStable(t *testing.T) {
	s, err := NewSet(
		Descriptor{Kind: "a", Priority: 1, Run: okFunc("a")},
		Descriptor{Kind: "b", Priority: 5, Run: okFunc("b")},
		Descriptor{Kind: "c", Priority: 1, Run: okFunc("c")},
		Descriptor{Kind: "d", Priority: 10, Run: okFunc("d")},
	)
	require.NoError(t, err)
	require.Equal(t, []Kind{"d", "b", "a", "c"}, s.Kinds())
	require.Equal(t, 4, s.Len())
}

func TestNewSetRejectsInvalid(t *testing.T) {
	_, err := NewSet()
	require.Error(t, err)
	_, err = NewSet(Descriptor{Kind: "", Run: okFunc("")})
	require.Error(t, err)
	_, err = NewSet(Descriptor{Kind: "x"})
	require.Error(t, err)
	_, err = NewSet(Descriptor{Kind: "x", Run: okFunc("")}, Descriptor{Kind: "x", Run: okFunc("")})
	require.Error(t, err)
}

func TestDescriptorsIsCopy(t *testing.T) {
	s := MustSet(Builtin()...)
	ds := s.Descriptors()
	ds[0].Kind = "mutated"
	require.Equal(t, KindUltraFast, s.Kinds()[0])
}

func TestDefaultSetPriorities(t *testing.T) {
	gen := func(context.Context, string, string) (string, error) { return "x", nil }
	s := Default(Models{Fast: "llama3.2:3b", Standard: "llama3.1:8b"}, gen)
	require.Equal(t, []Kind{KindUltraFast, KindStaticKnowledge, KindBackendFast, KindBackendStandard, KindTemplate, KindHeuristic}, s.Kinds())

	s = Default(Models{Fast: "llama3.2:3b"}, nil)
	require.Equal(t, []Kind{KindUltraFast, KindStaticKnowledge, KindTemplate, KindHeuristic}, s.Kinds())
}

func TestClassify(t *testing.T) {
	cases := map[string]Class{
		"Python GUI電卓アプリ開発":    ClassCalculator,
		"Build a Calculator":    ClassCalculator,
		"Web電卓アプリ開発":          ClassCalculator,
		"simple HTML page":      ClassWebApp,
		"Android todo list":     ClassAndroidApp,
		"スマホアプリ":               ClassAndroidApp,
		"sort a list of tuples": ClassGeneral,
		"":                      ClassGeneral,
	}
	for task, want := range cases {
		require.Equal(t, want, Classify(task), task)
	}
}

func TestStaticKnowledge(t *testing.T) {
	ctx := context.Background()
	out, err := StaticKnowledge(ctx, "", "calculator app")
	require.NoError(t, err)
	require.Contains(t, out, "# Complete Python GUI calculator")
	require.Contains(t, out, "Tkinter, four arithmetic operations")
	require.Contains(t, out, "import tkinter as tk")

	_, err = StaticKnowledge(ctx, "", "sort numbers")
	require.True(t, errors.Is(err, ErrNoKnowledge))
}

func TestUltraFastFallsBackToSkeleton(t *testing.T) {
	ctx := context.Background()
	out, err := UltraFast(ctx, "p", "web page")
	require.NoError(t, err)
	require.Contains(t, out, "<!DOCTYPE html>")

	out, err = UltraFast(ctx, "p", "parse logs")
	require.NoError(t, err)
	require.Contains(t, out, "# parse logs")
	require.Contains(t, out, "Starting parse logs")
}

func TestTemplateAndHeuristicUsePromptWhenTaskEmpty(t *testing.T) {
	ctx := context.Background()
	out, err := Template(ctx, "write a parser", "  ")
	require.NoError(t, err)
	require.Contains(t, out, "# write a parser")

	out, err = Heuristic(ctx, "write a parser", "")
	require.NoError(t, err)
	require.Contains(t, out, "## Task analysis\nwrite a parser")
}

func TestBuiltinsHonorCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, d := range Builtin() {
		_, err := d.Run(ctx, "p", "calculator")
		require.ErrorIs(t, err, context.Canceled, string(d.Kind))
	}
}

func TestGenerative(t *testing.T) {
	var gotModel string
	d := Generative(KindBackendFast, PriorityBackendFast, "llama3.2:3b", func(_ context.Context, model, prompt string) (string, error) {
		gotModel = model
		return "answer to " + prompt, nil
	})
	out, err := d.Run(context.Background(), "q", "t")
	require.NoError(t, err)
	require.Equal(t, "answer to q", out)
	require.Equal(t, "llama3.2:3b", gotModel)

	empty := Generative(KindBackendStandard, PriorityBackendStandard, "m", func(context.Context, string, string) (string, error) { return " ", nil })
	_, err = empty.Run(context.Background(), "q", "t")
	require.Error(t, err)

	boom := errors.New("boom")
	failing := Generative(KindBackendStandard, PriorityBackendStandard, "m", func(context.Context, string, string) (string, error) { return "", boom })
	_, err = failing.Run(context.Background(), "q", "t")
	require.ErrorIs(t, err, boom)
}
