package flow

import (
	"context"
	"errors"
	"testing"
)

func TestEnricherMergesComputedFields(t *testing.T) {
	e := NewEnricher("profile").
		AssignFunc("b", func(_ context.Context, input interface{}) (interface{}, error) {
			record := input.(map[string]interface{})
			return record["a"].(int) + 2, nil
		}).
		AssignConst("source", "api")

	result, err := e.Invoke(context.Background(), map[string]interface{}{"a": 0})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	record := result.(map[string]interface{})
	if record["a"] != 0 || record["b"] != 2 || record["source"] != "api" {
		t.Fatalf("unexpected enriched record: %v", record)
	}
}

func TestEnricherOverridesExistingField(t *testing.T) {
	e := NewEnricher("override").
		AssignFunc("a", func(_ context.Context, input interface{}) (interface{}, error) {
			record := input.(map[string]interface{})
			return record["a"].(int) + 1, nil
		}).
		AssignFunc("b", func(_ context.Context, input interface{}) (interface{}, error) {
			// Sees the original input, not the overridden field.
			record := input.(map[string]interface{})
			return record["a"].(int) + 2, nil
		})

	result, err := e.Invoke(context.Background(), map[string]interface{}{"a": 0})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	record := result.(map[string]interface{})
	if record["a"] != 1 || record["b"] != 2 {
		t.Fatalf("expected {a: 1, b: 2}, got %v", record)
	}
}

func TestEnricherDoesNotMutateInput(t *testing.T) {
	e := NewEnricher("isolated").
		AssignConst("extra", true)

	input := map[string]interface{}{"a": 1}
	result, err := e.Invoke(context.Background(), input)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if _, leaked := input["extra"]; leaked {
		t.Fatal("enricher mutated the original input")
	}
	if result.(map[string]interface{})["extra"] != true {
		t.Fatalf("expected enriched copy, got %v", result)
	}
}

func TestEnricherStageAssignment(t *testing.T) {
	length := Func("title-length", func(_ context.Context, input interface{}) (interface{}, error) {
		record := input.(map[string]interface{})
		return len(record["title"].(string)), nil
	})

	e := NewEnricher("stage-backed").Assign("titleLength", length)

	result, err := e.Invoke(context.Background(), map[string]interface{}{"title": "hello"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.(map[string]interface{})["titleLength"] != 5 {
		t.Fatalf("unexpected record: %v", result)
	}
}

func TestEnricherCollectsAllAssignmentFailures(t *testing.T) {
	e := NewEnricher("failing").
		AssignFunc("bad1", func(_ context.Context, _ interface{}) (interface{}, error) {
			return nil, errors.New("first")
		}).
		AssignConst("ok", 1).
		AssignFunc("bad2", func(_ context.Context, _ interface{}) (interface{}, error) {
			return nil, errors.New("second")
		})

	_, err := e.Invoke(context.Background(), map[string]interface{}{})
	if err == nil {
		t.Fatal("expected enrichment failure")
	}

	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("expected AggregateError, got %T", err)
	}
	if len(agg.Failures) != 2 {
		t.Fatalf("expected both failing assignments, got %d", len(agg.Failures))
	}
	if agg.Failures[0].Key != "bad1" || agg.Failures[1].Key != "bad2" {
		t.Fatalf("expected failures keyed bad1 and bad2, got %v", agg.Failures)
	}
	if agg.Total != 3 {
		t.Fatalf("expected total of 3 assignments, got %d", agg.Total)
	}
}

func TestEnricherRejectsNonMapInput(t *testing.T) {
	e := NewEnricher("typed").AssignConst("x", 1)

	_, err := e.Invoke(context.Background(), []interface{}{1, 2})
	if err == nil {
		t.Fatal("expected a type error for slice input")
	}

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %T", err)
	}
}

func TestEnricherNilInputYieldsFreshRecord(t *testing.T) {
	e := NewEnricher("fresh").AssignConst("created", true)

	result, err := e.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	record := result.(map[string]interface{})
	if len(record) != 1 || record["created"] != true {
		t.Fatalf("unexpected record from nil input: %v", record)
	}
}

func TestEnricherAssignDoesNotMutateReceiver(t *testing.T) {
	base := NewEnricher("base").AssignConst("a", 1)
	extended := base.AssignConst("b", 2)

	result, err := base.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(result.(map[string]interface{})) != 1 {
		t.Fatalf("base enricher mutated: %v", result)
	}

	extendedResult, err := extended.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(extendedResult.(map[string]interface{})) != 2 {
		t.Fatalf("extended enricher missing assignments: %v", extendedResult)
	}
}
