package workspace

import (
	"github.com/funnyzak/reqdeck/pkg/collection"
)

// ImportKind tells how an import document was applied.
type ImportKind string

const (
	KindWorkspace  ImportKind = "workspace"
	KindCollection ImportKind = "collection"
)

// ImportResult summarizes an applied import.
type ImportResult struct {
	Kind ImportKind `json:"kind"`
	// Added counts the root nodes merged by a collection import.
	Added    int `json:"added"`
	Requests int `json:"requests"`
}

// Import applies a JSON or YAML document. Workspace documents replace the
// sections they carry; anything else is normalized as a collection and
// merged into the tree. A rejected document leaves the store untouched.
func (s *Store) Import(data []byte) (*ImportResult, error) {
	doc, err := collection.Decode(data)
	if err != nil {
		return nil, err
	}
	if IsWorkspaceDocument(doc) {
		wsDoc, err := DocumentFromAny(doc)
		if err != nil {
			return nil, err
		}
		if err := s.ImportWorkspace(wsDoc); err != nil {
			return nil, err
		}
		return &ImportResult{Kind: KindWorkspace, Requests: wsDoc.Collections.CountRequests()}, nil
	}

	tree, err := collection.Normalize(doc)
	if err != nil {
		return nil, err
	}
	added := s.MergeImportedCollections(tree)
	return &ImportResult{Kind: KindCollection, Added: added, Requests: tree.CountRequests()}, nil
}
