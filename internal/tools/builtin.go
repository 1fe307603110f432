package tools

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// NewRegistry builds the built-in tool set bound to one runtime.
func NewRegistry(rt Runtime) Registry {
	r := Registry{}
	r.Register(NewBashTool(rt))
	r.Register(NewFileReadTool(rt))
	r.Register(NewFileWriteTool(rt))
	r.Register(NewFileEditTool(rt))
	return r
}

// NewBashTool runs a shell command on the runtime. Failures come back
// as text so the model can react to them.
func NewBashTool(rt Runtime) Tool {
	return Tool{
		Name:        "bash",
		Description: "Run a shell command and return stdout and stderr.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"command": {"type": "string", "description": "The shell command to execute."},
				"timeout": {"type": "number", "description": "Timeout in seconds."}
			},
			"required": ["command"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			command, _ := args["command"].(string)
			timeout := DefaultTimeout
			if secs, ok := args["timeout"].(float64); ok && secs > 0 {
				timeout = time.Duration(secs * float64(time.Second))
			}
			out, err := rt.Run(ctx, []string{"bash", "-c", command}, "", timeout)
			if err != nil {
				return fmt.Sprintf("Error running command: %v", err), nil
			}
			if out == "" {
				return "(no output)", nil
			}
			return out, nil
		},
	}
}

// NewFileReadTool reads a file through the runtime.
func NewFileReadTool(rt Runtime) Tool {
	return Tool{
		Name:        "file_read",
		Description: "Read the contents of a file at the given path.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "The file path to read."}
			},
			"required": ["path"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			p, _ := args["path"].(string)
			out, err := rt.Run(ctx, []string{"cat", p}, "", 0)
			if err != nil {
				return fmt.Sprintf("Error reading file: %v", err), nil
			}
			return out, nil
		},
	}
}

// NewFileWriteTool writes content through the runtime, creating parent
// directories first.
func NewFileWriteTool(rt Runtime) Tool {
	return Tool{
		Name:        "file_write",
		Description: "Write content to a file at the given path. Creates parent directories if needed.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "The file path to write to."},
				"content": {"type": "string", "description": "The content to write to the file."}
			},
			"required": ["path", "content"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			p, _ := args["path"].(string)
			content, _ := args["content"].(string)
			if dir := path.Dir(p); dir != "" && dir != "." && dir != "/" {
				if _, err := rt.Run(ctx, []string{"mkdir", "-p", dir}, "", 0); err != nil {
					return fmt.Sprintf("Error writing file: %v", err), nil
				}
			}
			if _, err := rt.Run(ctx, []string{"tee", p}, content, 0); err != nil {
				return fmt.Sprintf("Error writing file: %v", err), nil
			}
			return fmt.Sprintf("Successfully wrote to %s", p), nil
		},
	}
}

// NewFileEditTool replaces one exact occurrence of a string in a file.
// The read-modify-write goes through the runtime so it works the same
// locally, on a VM, or in a container.
func NewFileEditTool(rt Runtime) Tool {
	return Tool{
		Name: "file_edit",
		Description: "Edit a file by replacing an exact string match with new content. " +
			"The old_string must match exactly (including whitespace/indentation). " +
			"Provide enough context in old_string to make it unique in the file.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "The file path to edit."},
				"old_string": {"type": "string", "description": "The exact string to find and replace. Must be unique in the file."},
				"new_string": {"type": "string", "description": "The replacement string."}
			},
			"required": ["path", "old_string", "new_string"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			p, _ := args["path"].(string)
			oldStr, _ := args["old_string"].(string)
			newStr, _ := args["new_string"].(string)

			content, err := rt.Run(ctx, []string{"cat", p}, "", 0)
			if err != nil {
				return fmt.Sprintf("Error reading file: %v", err), nil
			}
			if oldStr == newStr {
				return "Error: old_string and new_string are identical.", nil
			}
			count := strings.Count(content, oldStr)
			if count == 0 {
				return "Error: old_string not found in file.", nil
			}
			if count > 1 {
				return fmt.Sprintf("Error: old_string matches %d locations. Provide more context to make it unique.", count), nil
			}
			updated := strings.Replace(content, oldStr, newStr, 1)
			if _, err := rt.Run(ctx, []string{"tee", p}, updated, 0); err != nil {
				return fmt.Sprintf("Error writing file: %v", err), nil
			}
			return fmt.Sprintf("Successfully edited %s", p), nil
		},
	}
}
