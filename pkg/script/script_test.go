package script

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestScriptStageTransformsInput(t *testing.T) {
	stage, err := New("double", `function handler(input) { return input * 2; }`, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := stage.Invoke(context.Background(), 21)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.(int64) != 42 {
		t.Fatalf("expected 42, got %v (%T)", result, result)
	}
}

func TestScriptStageReadsRecordFields(t *testing.T) {
	stage, err := New("greet", `function handler(input) { return "hello " + input.name; }`, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := stage.Invoke(context.Background(), map[string]interface{}{"name": "daedalus"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result != "hello daedalus" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestScriptStageCustomEntry(t *testing.T) {
	stage, err := New("custom", `function transform(input) { return input + 1; }`, Config{Entry: "transform"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := stage.Invoke(context.Background(), 1)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.(int64) != 2 {
		t.Fatalf("expected 2, got %v", result)
	}
}

func TestScriptCompileErrorSurfacesAtConstruction(t *testing.T) {
	_, err := New("broken", `function handler(input) {`, Config{})
	if err == nil {
		t.Fatal("expected a compile error")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected the script name in the error, got %v", err)
	}
}

func TestScriptMissingEntryFailsAtInvoke(t *testing.T) {
	stage, err := New("no-entry", `var x = 1;`, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := stage.Invoke(context.Background(), 1); err == nil {
		t.Fatal("expected a missing handler error")
	}
}

func TestScriptRuntimeErrorSurfacesAtInvoke(t *testing.T) {
	stage, err := New("throwing", `function handler(input) { throw new Error("refused"); }`, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := stage.Invoke(context.Background(), 1); err == nil {
		t.Fatal("expected the thrown error to surface")
	}
}

func TestScriptStageIsSafeForConcurrentUse(t *testing.T) {
	stage, err := New("concurrent", `function handler(input) { return input + 1; }`, Config{MaxPoolSize: 4})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			result, err := stage.Invoke(context.Background(), n)
			if err != nil {
				errs <- err
				return
			}
			if result.(int64) != n+1 {
				errs <- fmt.Errorf("input %d: got %v", n, result)
			}
		}(int64(i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent invocation failed: %v", err)
	}
}

func TestScriptConditionTruthiness(t *testing.T) {
	ctx := context.Background()

	cond, err := NewCondition(`function handler(input) { return input.score > 5; }`, Config{})
	if err != nil {
		t.Fatalf("NewCondition failed: %v", err)
	}

	if !cond.Evaluate(ctx, map[string]interface{}{"score": 7}) {
		t.Fatal("expected condition to match")
	}
	if cond.Evaluate(ctx, map[string]interface{}{"score": 3}) {
		t.Fatal("expected condition not to match")
	}
}

func TestScriptConditionFailureIsNonMatch(t *testing.T) {
	cond, err := NewCondition(`function handler(input) { throw new Error("boom"); }`, Config{})
	if err != nil {
		t.Fatalf("NewCondition failed: %v", err)
	}

	if cond.Evaluate(context.Background(), nil) {
		t.Fatal("a throwing condition must not match")
	}
}
