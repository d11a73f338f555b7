// Package toolexecutor holds the tool catalog and runs tool handlers.
//
// Invariants:
// - Tool names are unique and specs are read-only once registered.
// - Arguments are schema-validated before the handler runs; a rejected call
//   never reaches the handler.
// - Timeouts and policy blocks come back as blocked results, not errors.
//
// Usage:
//
//	catalog := toolexecutor.NewCatalog()
//	_ = catalog.Register(toolexecutor.ToolSpec{
//		Name:        "echo",
//		Description: "Echo input",
//		Parameters:  []toolexecutor.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
//			return map[string]interface{}{"text": args["text"]}, nil
//		},
//	})
//	spec, _ := catalog.Get("echo")
//	result, err := toolexecutor.NewExecutor(toolexecutor.Options{}).Execute(ctx, spec, map[string]interface{}{"text": "hi"})
package toolexecutor
