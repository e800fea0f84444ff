package bt

import (
	"fmt"
	"strings"
)

// Snapshot is a serialisable view of a tree.
type Snapshot struct {
	Name     string     `json:"name"`
	Status   string     `json:"status"`
	Children []Snapshot `json:"children,omitempty"`
}

// Snap captures the current status of n and its descendants.
func Snap(n *Node) Snapshot {
	s := Snapshot{Name: n.name, Status: n.status.String()}
	for _, c := range n.children {
		s.Children = append(s.Children, Snap(c))
	}
	return s
}

var marks = map[string]string{
	"RUNNING": "*",
	"SUCCESS": "o",
	"FAILURE": "x",
	"INVALID": "-",
}

// Render draws the snapshot as an indented tree, one node per line.
func (s Snapshot) Render() string {
	var b strings.Builder
	s.render(&b, 0)
	return b.String()
}

func (s Snapshot) render(b *strings.Builder, depth int) {
	fmt.Fprintf(b, "%s[%s] %s\n", strings.Repeat("    ", depth), marks[s.Status], s.Name)
	for _, c := range s.Children {
		c.render(b, depth+1)
	}
}
