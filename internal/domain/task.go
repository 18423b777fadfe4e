package domain

// Task is one crawl unit generated from the category tree. Tasks are
// immutable once generated; a task's identity is its position in the
// flattened task list.
type Task struct {
	RootName     string `json:"root_name"`
	ChildName    string `json:"child_name,omitempty"`
	Keyword      string `json:"keyword"`
	BrowseNodeID *int   `json:"browse_node_id,omitempty"`
}

// Label returns a human-readable identifier for logs and run summaries.
func (t Task) Label() string {
	if t.ChildName != "" {
		return t.RootName + " / " + t.ChildName
	}
	return t.RootName
}
