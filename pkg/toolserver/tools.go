package toolserver

import (
	"fmt"
	"strings"

	"github.com/harun/orca/pkg/coretools"
)

type tool struct {
	name        string
	description string
	schema      string
	minArgs     int
	maxArgs     int // -1 is unbounded
	pathArgs    []int
	run         func(files *coretools.Files, args []string) (string, error)
}

const pathSchema = `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`

func builtinTools() []tool {
	return []tool{
		{
			name:        "read_file",
			description: "Read a file relative to the server root",
			schema:      pathSchema,
			minArgs:     1,
			maxArgs:     1,
			pathArgs:    []int{0},
			run: func(files *coretools.Files, args []string) (string, error) {
				content, truncated, err := files.Read(args[0])
				if err != nil {
					return "", err
				}
				if truncated {
					content += "\n[truncated]"
				}
				return content, nil
			},
		},
		{
			name:        "list_dir",
			description: "List a directory relative to the server root",
			schema:      pathSchema,
			minArgs:     0,
			maxArgs:     1,
			pathArgs:    []int{0},
			run: func(files *coretools.Files, args []string) (string, error) {
				dir := files.Root
				if len(args) > 0 {
					dir = args[0]
				}
				entries, err := files.List(dir)
				if err != nil {
					return "", err
				}
				return coretools.FormatEntries(entries), nil
			},
		},
		{
			name:        "write_file",
			description: "Write text to a file relative to the server root",
			schema:      `{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`,
			minArgs:     2,
			maxArgs:     -1,
			pathArgs:    []int{0},
			run: func(files *coretools.Files, args []string) (string, error) {
				content := joinArgs(args[1:])
				if _, err := files.Write(args[0], content); err != nil {
					return "", err
				}
				return fmt.Sprintf("wrote %d bytes", len(content)), nil
			},
		},
		{
			name:        "word_count",
			description: "Count lines, words and bytes in a file",
			schema:      pathSchema,
			minArgs:     1,
			maxArgs:     1,
			pathArgs:    []int{0},
			run: func(files *coretools.Files, args []string) (string, error) {
				content, _, err := files.Read(args[0])
				if err != nil {
					return "", err
				}
				lines := strings.Count(content, "\n")
				if content != "" && !strings.HasSuffix(content, "\n") {
					lines++
				}
				return fmt.Sprintf("lines=%d words=%d bytes=%d", lines, len(strings.Fields(content)), len(content)), nil
			},
		},
	}
}
