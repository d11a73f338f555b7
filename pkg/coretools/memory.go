package coretools

import (
	"context"
	"errors"
	"time"

	"github.com/harun/stepwise/pkg/memory"
	"github.com/harun/stepwise/pkg/toolexecutor"
)

type memoryStoreRequest struct {
	Content  string                 `mapstructure:"content"`
	Kind     string                 `mapstructure:"kind"`
	Metadata map[string]interface{} `mapstructure:"metadata"`
}

type memorySearchRequest struct {
	Query string `mapstructure:"query"`
	Kind  string `mapstructure:"kind"`
	TopK  int    `mapstructure:"top_k"`
}

var kindEnum = []interface{}{string(memory.Semantic), string(memory.Episodic), string(memory.Working)}

func memoryStoreTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "memory.store",
		Description: "Store a note in agent memory.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "content", Type: "string", Description: "Content to store", Required: true},
			{Name: "kind", Type: "string", Description: "Memory kind: semantic, episodic or working", Default: "semantic", Enum: kindEnum},
			{Name: "metadata", Type: "object", Description: "Additional metadata"},
		},
		Timeout: 5 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var req memoryStoreRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			kind, err := memory.ParseKind(req.Kind)
			if err != nil {
				return failure("%v", err), nil
			}

			id, err := opts.Memory.Remember(ctx, req.Content, kind, req.Metadata)
			if errors.Is(err, memory.ErrEmptyContent) {
				return failure("Content cannot be empty"), nil
			}
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"success": true, "id": id, "kind": string(kind)}, nil
		},
	}
}

func memorySearchTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "memory.search",
		Description: "Search agent memory for notes related to a query.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
			{Name: "kind", Type: "string", Description: "Memory kind to search", Default: "semantic", Enum: kindEnum},
			{Name: "top_k", Type: "integer", Description: "Number of results to return", Default: 5},
		},
		Timeout: 5 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			req := memorySearchRequest{TopK: 5}
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			kind, err := memory.ParseKind(req.Kind)
			if err != nil {
				return failure("%v", err), nil
			}

			items, err := opts.Memory.Recall(ctx, req.Query, kind, req.TopK)
			if err != nil {
				return nil, err
			}
			results := make([]interface{}, len(items))
			for i, item := range items {
				results[i] = map[string]interface{}{
					"id":      item.ID,
					"content": item.Content,
					"score":   item.Score,
				}
			}
			return map[string]interface{}{
				"query":   req.Query,
				"kind":    string(kind),
				"results": results,
				"count":   len(results),
			}, nil
		},
	}
}
