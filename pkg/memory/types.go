package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind selects one of the three memory stores
type Kind string

const (
	Semantic Kind = "semantic"
	Episodic Kind = "episodic"
	Working  Kind = "working"
)

var (
	ErrUnknownKind   = errors.New("unknown memory kind")
	ErrEmptyContent  = errors.New("memory content is empty")
	ErrClosed        = errors.New("memory manager is closed")
	ErrDBPathMissing = errors.New("database path is required")
)

// ParseKind converts a string to a Kind. An empty string means Semantic.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return Semantic, nil
	case Semantic, Episodic, Working:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Item is one recalled memory
type Item struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Score     float64                `json:"score"`
	Kind      Kind                   `json:"kind"`
	CreatedAt time.Time              `json:"created_at"`
}

// Context is a grouped snapshot across all kinds
type Context struct {
	Semantic []Item            `json:"semantic"`
	Episodic []Item            `json:"episodic"`
	Working  map[string]string `json:"working"`
}

// Empty reports whether the snapshot holds nothing
func (c Context) Empty() bool {
	return len(c.Semantic) == 0 && len(c.Episodic) == 0 && len(c.Working) == 0
}

// Store is the memory surface the agent loop reads and writes
type Store interface {
	Remember(ctx context.Context, content string, kind Kind, metadata map[string]interface{}) (string, error)
	Recall(ctx context.Context, query string, kind Kind, topK int) ([]Item, error)
	GetContext(ctx context.Context, query string, maxItems int) (Context, error)
}
