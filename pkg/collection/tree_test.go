package collection

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/funnyzak/reqdeck/pkg/ident"
	"github.com/funnyzak/reqdeck/pkg/request"
)

func sampleTree() Tree {
	return Tree{
		&RequestItem{ID: "r1", Name: "List users", Request: request.Draft{Method: request.MethodGet, URL: "https://api.local/users"}},
		&Folder{ID: "f1", Name: "Orders", Items: Tree{
			&RequestItem{ID: "r2", Name: "Create order", Request: request.Draft{Method: request.MethodPost, URL: "https://api.local/orders"}},
			&Folder{ID: "f2", Name: "Refunds", Items: Tree{
				&RequestItem{ID: "r3", Name: "Refund", Request: request.Draft{Method: request.MethodPost, URL: "https://api.local/refunds"}},
			}},
		}},
	}
}

func TestTreeFind(t *testing.T) {
	tree := sampleTree()

	node, parent := tree.Find("r3")
	if node == nil || node.NodeName() != "Refund" {
		t.Fatalf("expected to find r3, got %#v", node)
	}
	if parent == nil || parent.ID != "f2" {
		t.Fatalf("expected parent f2, got %#v", parent)
	}

	node, parent = tree.Find("r1")
	if node == nil || parent != nil {
		t.Fatalf("expected root node without parent")
	}

	if tree.FindFolder("r1") != nil {
		t.Fatalf("request must not be returned as folder")
	}
	if tree.FindRequest("missing") != nil {
		t.Fatalf("expected nil for unknown id")
	}
}

func TestTreeRemoveCascades(t *testing.T) {
	tree := sampleTree()

	tree, removed := tree.Remove("f1")
	if !removed {
		t.Fatalf("expected folder removal")
	}
	for _, id := range []ident.ID{"f1", "r2", "f2", "r3"} {
		if node, _ := tree.Find(id); node != nil {
			t.Fatalf("node %s survived folder removal", id)
		}
	}
	if tree.CountRequests() != 1 {
		t.Fatalf("expected one request left, got %d", tree.CountRequests())
	}
}

func TestTreeRemoveNested(t *testing.T) {
	tree := sampleTree()
	tree, removed := tree.Remove("r3")
	if !removed {
		t.Fatalf("expected nested removal")
	}
	if tree.FindFolder("f2") == nil || len(tree.FindFolder("f2").Items) != 0 {
		t.Fatalf("expected empty folder f2 to remain")
	}
	if _, removed := tree.Remove("missing"); removed {
		t.Fatalf("unexpected removal of unknown id")
	}
}

func TestTreeCloneIsDeep(t *testing.T) {
	tree := sampleTree()
	cp := tree.Clone()
	cp.FindRequest("r3").Name = "changed"
	cp.FindFolder("f1").Items = nil

	if tree.FindRequest("r3").Name != "Refund" {
		t.Fatalf("clone shares request items")
	}
	if len(tree.FindFolder("f1").Items) != 2 {
		t.Fatalf("clone shares folder items")
	}
}

func TestTreeFilter(t *testing.T) {
	tree := sampleTree()
	if got := tree.Filter("ORDER"); len(got) != 1 || got[0].ID != "r2" {
		t.Fatalf("unexpected filter result %#v", got)
	}
	if got := tree.Filter("refunds"); len(got) != 1 || got[0].ID != "r3" {
		t.Fatalf("expected url match inside nested folder, got %#v", got)
	}
	if got := tree.Filter(""); len(got) != 3 {
		t.Fatalf("empty term should match all, got %d", len(got))
	}
}

func TestTreeJSONCodec(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tree := sampleTree()
	tree.FindRequest("r1").CreatedAt = created

	raw, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Tree
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	folder, ok := decoded[1].(*Folder)
	if !ok {
		t.Fatalf("expected folder at index 1, got %T", decoded[1])
	}
	if len(folder.Items) != 2 {
		t.Fatalf("expected 2 items in folder, got %d", len(folder.Items))
	}
	if !decoded.FindRequest("r1").CreatedAt.Equal(created) {
		t.Fatalf("createdAt not preserved")
	}
}

func TestTreeUnmarshalLegacyItems(t *testing.T) {
	input := `[
		{"id": 1700000000000, "name": "Legacy", "request": {"method": "get", "url": "http://x", "headers": [{"key": "", "value": ""}], "body": "", "bodyType": "json"}, "createdAt": 1700000000000},
		{"id": "f", "name": "Empty", "type": "folder"}
	]`
	var tree Tree
	if err := json.Unmarshal([]byte(input), &tree); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	item := tree.FindRequest("1700000000000")
	if item == nil {
		t.Fatalf("numeric id not decoded")
	}
	if item.Request.Method != request.MethodGet {
		t.Fatalf("expected method normalized, got %s", item.Request.Method)
	}
	if item.CreatedAt.UnixMilli() != 1700000000000 {
		t.Fatalf("expected epoch createdAt, got %v", item.CreatedAt)
	}
	if folder := tree.FindFolder("f"); folder == nil || folder.Items == nil {
		t.Fatalf("expected empty folder with non-nil items")
	}
}

func TestEmptyTreeMarshalsAsArray(t *testing.T) {
	raw, err := json.Marshal(Tree(nil))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(raw) != "[]" {
		t.Fatalf("expected [], got %s", raw)
	}
}
