package collection

import (
	"strings"
	"time"

	"github.com/funnyzak/reqdeck/pkg/ident"
)

// WalkFunc is called for every node in depth-first order. parent is nil
// for root nodes. Returning false stops the walk.
type WalkFunc func(node Node, parent *Folder, depth int) bool

// Walk visits every node of the tree depth-first.
func (t Tree) Walk(fn WalkFunc) {
	walk(t, nil, 0, fn)
}

func walk(t Tree, parent *Folder, depth int, fn WalkFunc) bool {
	for _, node := range t {
		if !fn(node, parent, depth) {
			return false
		}
		if folder, ok := node.(*Folder); ok {
			if !walk(folder.Items, folder, depth+1, fn) {
				return false
			}
		}
	}
	return true
}

// Find returns the node with id and its parent folder (nil at the root).
func (t Tree) Find(id ident.ID) (Node, *Folder) {
	var found Node
	var owner *Folder
	t.Walk(func(node Node, parent *Folder, _ int) bool {
		if node.NodeID() == id {
			found, owner = node, parent
			return false
		}
		return true
	})
	return found, owner
}

// FindFolder returns the folder with id, or nil.
func (t Tree) FindFolder(id ident.ID) *Folder {
	node, _ := t.Find(id)
	folder, _ := node.(*Folder)
	return folder
}

// FindRequest returns the request item with id, or nil.
func (t Tree) FindRequest(id ident.ID) *RequestItem {
	node, _ := t.Find(id)
	item, _ := node.(*RequestItem)
	return item
}

// Remove deletes the first node with id, including every descendant of a
// folder, and returns the resulting tree.
func (t Tree) Remove(id ident.ID) (Tree, bool) {
	for i, node := range t {
		if node.NodeID() == id {
			out := make(Tree, 0, len(t)-1)
			out = append(out, t[:i]...)
			return append(out, t[i+1:]...), true
		}
		if folder, ok := node.(*Folder); ok {
			if items, removed := folder.Items.Remove(id); removed {
				folder.Items = items
				return t, true
			}
		}
	}
	return t, false
}

// Requests returns every request item in depth-first order.
func (t Tree) Requests() []*RequestItem {
	var out []*RequestItem
	t.Walk(func(node Node, _ *Folder, _ int) bool {
		if item, ok := node.(*RequestItem); ok {
			out = append(out, item)
		}
		return true
	})
	return out
}

// CountRequests counts request items at any depth.
func (t Tree) CountRequests() int {
	n := 0
	t.Walk(func(node Node, _ *Folder, _ int) bool {
		if _, ok := node.(*RequestItem); ok {
			n++
		}
		return true
	})
	return n
}

// IDs returns the identities of every node.
func (t Tree) IDs() []ident.ID {
	var out []ident.ID
	t.Walk(func(node Node, _ *Folder, _ int) bool {
		out = append(out, node.NodeID())
		return true
	})
	return out
}

// Clone deep-copies the tree.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, 0, len(t))
	for _, node := range t {
		switch n := node.(type) {
		case *Folder:
			cp := *n
			cp.Items = n.Items.Clone()
			if cp.Items == nil {
				cp.Items = Tree{}
			}
			out = append(out, &cp)
		case *RequestItem:
			cp := *n
			cp.Request = n.Request.Clone()
			out = append(out, &cp)
		}
	}
	return out
}

// Filter returns the request items whose name or URL contains term,
// ignoring case. An empty term matches every request.
func (t Tree) Filter(term string) []*RequestItem {
	term = strings.ToLower(strings.TrimSpace(term))
	var out []*RequestItem
	for _, item := range t.Requests() {
		if term == "" ||
			strings.Contains(strings.ToLower(item.Name), term) ||
			strings.Contains(strings.ToLower(item.Request.URL), term) {
			out = append(out, item)
		}
	}
	return out
}

// AssignMissing gives every node without an id a fresh one and stamps
// requests lacking a creation time with now.
func (t Tree) AssignMissing(now time.Time) {
	t.Walk(func(node Node, _ *Folder, _ int) bool {
		switch n := node.(type) {
		case *Folder:
			if n.ID.IsZero() {
				n.ID = ident.New()
			}
			if n.Items == nil {
				n.Items = Tree{}
			}
		case *RequestItem:
			if n.ID.IsZero() {
				n.ID = ident.New()
			}
			if n.CreatedAt.IsZero() {
				n.CreatedAt = now
			}
			n.Request.Normalize()
		}
		return true
	})
}
