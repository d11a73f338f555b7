package coretools

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/harun/stepwise/pkg/toolexecutor"
)

type pathRequest struct {
	Path string `mapstructure:"path"`
}

type writeRequest struct {
	Path    string `mapstructure:"path"`
	Content string `mapstructure:"content"`
}

func pathParam(description string, required bool) toolexecutor.ToolParameter {
	return toolexecutor.ToolParameter{Name: "path", Type: "string", Description: description, Required: required}
}

func readFileTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "file.read",
		Description: "Read the contents of a text file.",
		Parameters:  []toolexecutor.ToolParameter{pathParam("Path to the file to read", true)},
		Timeout:     10 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var req pathRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			target := resolvePath(opts, req.Path)

			info, err := os.Stat(target)
			if errors.Is(err, fs.ErrNotExist) {
				return failure("File not found: %s", req.Path), nil
			}
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				return failure("Path is a directory: %s", req.Path), nil
			}

			data, err := os.ReadFile(target)
			if err != nil {
				return nil, err
			}
			if !utf8.Valid(data) {
				return failure("File is not valid UTF-8 text: %s", req.Path), nil
			}
			return map[string]interface{}{
				"content": string(data),
				"size":    len(data),
			}, nil
		},
	}
}

func writeFileTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "file.write",
		Description: "Write content to a file, creating parent directories as needed.",
		Parameters: []toolexecutor.ToolParameter{
			pathParam("Path to the file to write", true),
			{Name: "content", Type: "string", Description: "Content to write to the file", Required: true},
		},
		Timeout: 10 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var req writeRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			target := resolvePath(opts, req.Path)

			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(target, []byte(req.Content), 0o644); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"success":       true,
				"path":          req.Path,
				"bytes_written": len(req.Content),
				"message":       "File written: " + req.Path,
			}, nil
		},
	}
}

func listDirTool(opts Options) toolexecutor.ToolSpec {
	param := pathParam("Path to the directory to list", false)
	param.Default = "."
	return toolexecutor.ToolSpec{
		Name:        "file.list",
		Description: "List the entries of a directory.",
		Parameters:  []toolexecutor.ToolParameter{param},
		Timeout:     5 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var req pathRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			target := resolvePath(opts, req.Path)

			entries, err := os.ReadDir(target)
			if errors.Is(err, fs.ErrNotExist) {
				return failure("Directory not found: %s", req.Path), nil
			}
			if err != nil {
				if info, statErr := os.Stat(target); statErr == nil && !info.IsDir() {
					return failure("Path is not a directory: %s", req.Path), nil
				}
				return nil, err
			}

			type entry struct {
				name string
				kind string
				size interface{}
			}
			listed := make([]entry, 0, len(entries))
			for _, e := range entries {
				item := entry{name: e.Name(), kind: "file"}
				if e.IsDir() {
					item.kind = "directory"
				} else if info, err := e.Info(); err == nil {
					item.size = info.Size()
				}
				listed = append(listed, item)
			}
			sort.Slice(listed, func(i, j int) bool {
				if listed[i].kind != listed[j].kind {
					return listed[i].kind < listed[j].kind
				}
				return listed[i].name < listed[j].name
			})

			items := make([]interface{}, 0, len(listed))
			for _, e := range listed {
				items = append(items, map[string]interface{}{
					"name": e.name,
					"type": e.kind,
					"size": e.size,
				})
			}
			return map[string]interface{}{"items": items, "count": len(items)}, nil
		},
	}
}

func mkdirTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "file.mkdir",
		Description: "Create a directory and any missing parents.",
		Parameters:  []toolexecutor.ToolParameter{pathParam("Path to the directory to create", true)},
		Timeout:     5 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var req pathRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			if err := os.MkdirAll(resolvePath(opts, req.Path), 0o755); err != nil {
				return nil, err
			}
			return map[string]interface{}{"success": true, "path": req.Path}, nil
		},
	}
}

func deleteFileTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "file.delete",
		Description: "Delete a file or an empty directory.",
		Parameters:  []toolexecutor.ToolParameter{pathParam("Path to the file or directory to delete", true)},
		Timeout:     10 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var req pathRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			target := resolvePath(opts, req.Path)

			info, err := os.Stat(target)
			if errors.Is(err, fs.ErrNotExist) {
				return failure("Path not found: %s", req.Path), nil
			}
			if err != nil {
				return nil, err
			}

			if err := os.Remove(target); err != nil {
				if info.IsDir() {
					return failure("Directory is not empty: %s", req.Path), nil
				}
				return nil, err
			}

			deleted := "file_deleted"
			if info.IsDir() {
				deleted = "directory_deleted"
			}
			return map[string]interface{}{"success": true, "action": deleted}, nil
		},
	}
}
