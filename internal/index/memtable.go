package index

import (
	"github.com/google/btree"
	"github.com/iamNilotpal/strata/internal/schema"
	"github.com/iamNilotpal/strata/internal/storage"
)

// btreeDegree is the B-tree branching factor for every memtable in this
// package; not performance-critical enough to expose as configuration.
const btreeDegree = 32

// primaryItem is the primary memtable's btree element: one LogKey per key
// value, later writes overwriting earlier ones via ReplaceOrInsert.
type primaryItem struct {
	key   schema.Indexable
	value storage.LogKey
}

func (a primaryItem) Less(than btree.Item) bool {
	return a.key.Less(than.(primaryItem).key)
}

// secondaryItem is a secondary memtable's btree element: one LogKeySet per
// key value, holding the LogKey of each primary key's current record that
// carries that value.
type secondaryItem struct {
	key schema.Indexable
	set *storage.LogKeySet
}

func (a secondaryItem) Less(than btree.Item) bool {
	return a.key.Less(than.(secondaryItem).key)
}

func newPrimaryTree() *btree.BTree   { return btree.New(btreeDegree) }
func newSecondaryTree() *btree.BTree { return btree.New(btreeDegree) }

// addToSecondarySet inserts logKey into the LogKeySet at value, creating
// the set if this is the first entry at that value.
func addToSecondarySet(tree *btree.BTree, value schema.Indexable, logKey storage.LogKey) {
	existing := tree.Get(secondaryItem{key: value})
	if existing == nil {
		tree.ReplaceOrInsert(secondaryItem{key: value, set: storage.NewLogKeySet(logKey)})
		return
	}
	existing.(secondaryItem).set.Add(logKey)
}

// removeFromSecondarySet removes logKey from the LogKeySet at value,
// dropping the whole entry if it was the set's last member.
func removeFromSecondarySet(tree *btree.BTree, value schema.Indexable, logKey storage.LogKey) {
	existing := tree.Get(secondaryItem{key: value})
	if existing == nil {
		return
	}
	set := existing.(secondaryItem).set
	if err := set.Remove(logKey); err == storage.ErrLastElement {
		tree.Delete(secondaryItem{key: value})
	}
}
