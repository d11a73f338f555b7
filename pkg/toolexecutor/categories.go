package toolexecutor

import "strings"

// ToolCategory groups tools for listing and consent display
type ToolCategory string

const (
	CategoryFile    ToolCategory = "file"
	CategoryWeb     ToolCategory = "web"
	CategoryExec    ToolCategory = "exec"
	CategoryMemory  ToolCategory = "memory"
	CategoryGeneral ToolCategory = "general"
)

// AllCategories returns all categories in display order
func AllCategories() []ToolCategory {
	return []ToolCategory{CategoryFile, CategoryWeb, CategoryExec, CategoryMemory, CategoryGeneral}
}

// CategoryOf derives a tool's category from its dotted name
func CategoryOf(name string) ToolCategory {
	prefix, _, _ := strings.Cut(name, ".")
	switch prefix {
	case "file":
		return CategoryFile
	case "web":
		return CategoryWeb
	case "shell", "code":
		return CategoryExec
	case "memory":
		return CategoryMemory
	default:
		return CategoryGeneral
	}
}

// GroupByCategory buckets specs by category, keeping catalog order
func GroupByCategory(specs []ToolSpec) map[ToolCategory][]ToolSpec {
	groups := make(map[ToolCategory][]ToolSpec)
	for _, spec := range specs {
		cat := CategoryOf(spec.Name)
		groups[cat] = append(groups[cat], spec)
	}
	return groups
}
