package scene

import (
	"sync"

	"github.com/google/uuid"
)

// TrackedObject is a registry entry for a top-level object.
type TrackedObject struct {
	ID   string
	Name string
	Node *Node
}

// NewObjectID returns a session-unique object identifier.
func NewObjectID() string {
	return "obj_" + uuid.NewString()
}

// Store keeps the ordered registry of user objects in sync with the scene
// graph. Insert and remove touch both under one lock, so List never sees a
// node present in one but not the other.
type Store struct {
	mu      sync.RWMutex
	scene   *Scene
	entries []TrackedObject
}

func NewStore(s *Scene) *Store {
	return &Store{scene: s}
}

// Add assigns a fresh id to node, inserts it at the scene root and appends
// a registry entry. An empty name falls back to the node name. A node that
// is already tracked keeps its single entry, which is returned unchanged.
func (st *Store) Add(node *Node, name string) TrackedObject {
	st.mu.Lock()
	defer st.mu.Unlock()

	if idx := st.indexOf(node); idx >= 0 {
		return st.entries[idx]
	}
	if name == "" {
		name = node.Name
	}
	entry := TrackedObject{ID: NewObjectID(), Name: name, Node: node}
	node.ObjectID = entry.ID
	st.scene.Add(node)
	st.entries = append(st.entries, entry)
	return entry
}

// Remove detaches node from the graph, then drops its entry. Untracked nodes
// are left alone and Remove reports false.
func (st *Store) Remove(node *Node) bool {
	if node == nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	idx := st.indexOf(node)
	if idx < 0 {
		return false
	}
	st.scene.Remove(node)
	st.entries = append(st.entries[:idx], st.entries[idx+1:]...)
	return true
}

func (st *Store) indexOf(node *Node) int {
	for i, e := range st.entries {
		if e.Node == node {
			return i
		}
	}
	return -1
}

// List returns a snapshot of the registry in insertion order.
func (st *Store) List() []TrackedObject {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]TrackedObject(nil), st.entries...)
}

func (st *Store) Lookup(id string) (*Node, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, e := range st.entries {
		if e.ID == id {
			return e.Node, true
		}
	}
	return nil, false
}

// Entry returns the registry entry of node.
func (st *Store) Entry(node *Node) (TrackedObject, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if idx := st.indexOf(node); idx >= 0 {
		return st.entries[idx], true
	}
	return TrackedObject{}, false
}

func (st *Store) Contains(node *Node) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.indexOf(node) >= 0
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}

// Reset drops every entry without touching the graph.
func (st *Store) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.entries = nil
}
