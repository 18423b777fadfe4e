// Package tasks loads the category tree configuration and flattens
// it into the ordered task list the crawler rotates through.
package tasks

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arbminer/arbminer/internal/domain"
)

// Node is one category in the configuration tree.
type Node struct {
	Name         string `yaml:"name"`
	Keyword      string `yaml:"keyword"`
	BrowseNodeID *int   `yaml:"browse_node_id"`
	Children     []Node `yaml:"children"`
}

type file struct {
	Categories []Node `yaml:"categories"`
}

// Load reads the task file and returns the flattened task list. The
// order is deterministic: document order, children before the next
// root.
func Load(path string) ([]domain.Task, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file %s: %w", path, err)
	}

	var parsed file
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}

	return Flatten(parsed.Categories), nil
}

// Flatten converts the category tree into the ordered task list. A
// root with children yields one task per child; a leaf root yields a
// single task for itself. The keyword falls back to the node name,
// and a child without its own browse node inherits the root's.
func Flatten(tree []Node) []domain.Task {
	var out []domain.Task

	for _, root := range tree {
		rootKeyword := keywordFor(root)

		if len(root.Children) == 0 {
			if rootKeyword == "" {
				continue
			}
			out = append(out, domain.Task{
				RootName:     root.Name,
				Keyword:      rootKeyword,
				BrowseNodeID: root.BrowseNodeID,
			})
			continue
		}

		for _, child := range root.Children {
			keyword := keywordFor(child)
			if keyword == "" {
				keyword = rootKeyword
			}
			if keyword == "" {
				continue
			}
			browseNode := child.BrowseNodeID
			if browseNode == nil {
				browseNode = root.BrowseNodeID
			}
			out = append(out, domain.Task{
				RootName:     root.Name,
				ChildName:    child.Name,
				Keyword:      keyword,
				BrowseNodeID: browseNode,
			})
		}
	}

	return out
}

// FilterRoots keeps only tasks whose root name is in the filter. An
// empty filter keeps everything.
func FilterRoots(tasks []domain.Task, roots []string) []domain.Task {
	cleaned := make(map[string]bool)
	for _, r := range roots {
		r = strings.TrimSpace(r)
		if r != "" {
			cleaned[r] = true
		}
	}
	if len(cleaned) == 0 {
		return tasks
	}

	var out []domain.Task
	for _, task := range tasks {
		if cleaned[task.RootName] {
			out = append(out, task)
		}
	}
	return out
}

func keywordFor(node Node) string {
	if kw := strings.TrimSpace(node.Keyword); kw != "" {
		return kw
	}
	return strings.TrimSpace(node.Name)
}
