package flow

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/executor"
)

// runCollection executes a unit over a collection with the invocation's
// concurrency options.
func runCollection(ctx context.Context, items []interface{}, unit executor.UnitFunc, options Options) ([]interface{}, error) {
	return executor.Run(ctx, items, unit, options.executorOptions())
}
