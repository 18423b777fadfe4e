package tasks_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/tasks"
)

func intPtr(v int) *int { return &v }

func TestFlattenChildrenBeforeNextRoot(t *testing.T) {
	t.Parallel()

	tree := []tasks.Node{
		{
			Name:         "Pet Supplies",
			Keyword:      "pet supplies",
			BrowseNodeID: intPtr(100),
			Children: []tasks.Node{
				{Name: "Dogs", Keyword: "dog supplies", BrowseNodeID: intPtr(101)},
				{Name: "Cats", Keyword: "cat supplies"},
			},
		},
		{Name: "Electronics", Keyword: "electronics"},
	}

	flat := tasks.Flatten(tree)
	require.Len(t, flat, 3)

	assert.Equal(t, "Pet Supplies", flat[0].RootName)
	assert.Equal(t, "Dogs", flat[0].ChildName)
	assert.Equal(t, "dog supplies", flat[0].Keyword)
	require.NotNil(t, flat[0].BrowseNodeID)
	assert.Equal(t, 101, *flat[0].BrowseNodeID)

	// A child without its own browse node inherits the root's.
	require.NotNil(t, flat[1].BrowseNodeID)
	assert.Equal(t, 100, *flat[1].BrowseNodeID)

	assert.Equal(t, "Electronics", flat[2].RootName)
	assert.Empty(t, flat[2].ChildName)
}

func TestFlattenKeywordFallsBackToName(t *testing.T) {
	t.Parallel()

	tree := []tasks.Node{
		{Name: "Books", Children: []tasks.Node{{Name: "Cookbooks"}}},
	}

	flat := tasks.Flatten(tree)
	require.Len(t, flat, 1)
	assert.Equal(t, "Cookbooks", flat[0].Keyword)
}

func TestFlattenSkipsEmptyNodes(t *testing.T) {
	t.Parallel()

	flat := tasks.Flatten([]tasks.Node{{}, {Name: "  "}})
	assert.Empty(t, flat)
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	content := `
categories:
  - name: "Pet Supplies"
    keyword: "pet supplies"
    browse_node_id: 2619533011
    children:
      - name: "Dogs"
        keyword: "dog supplies"
  - name: "Home & Kitchen"
    keyword: "home kitchen"
`
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	flat, err := tasks.Load(path)
	require.NoError(t, err)
	require.Len(t, flat, 2)
	assert.Equal(t, "Pet Supplies / Dogs", flat[0].Label())
	assert.Equal(t, "Home & Kitchen", flat[1].Label())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := tasks.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestFilterRoots(t *testing.T) {
	t.Parallel()

	list := []domain.Task{
		{RootName: "Pet Supplies", Keyword: "pets"},
		{RootName: "Electronics", Keyword: "electronics"},
		{RootName: "Books", Keyword: "books"},
	}

	filtered := tasks.FilterRoots(list, []string{"Pet Supplies", " Books "})
	require.Len(t, filtered, 2)
	assert.Equal(t, "Pet Supplies", filtered[0].RootName)
	assert.Equal(t, "Books", filtered[1].RootName)

	assert.Len(t, tasks.FilterRoots(list, nil), 3)
	assert.Len(t, tasks.FilterRoots(list, []string{"  "}), 3)
}
