package memindex

// maxDepth bounds how many runes of a key the trie consumes. Longer keys
// share the node at maxDepth; callers verify candidates against the query.
const maxDepth = 32

// node is a prefix trie node. Every node below the root keeps the handles of
// all items whose key passes through it, so a prefix lookup is a single walk.
//
// Nodes are immutable once published. A txn copies the path it modifies and
// tracks the copies it owns so a node is copied at most once per txn.
type node struct {
	children map[rune]*node
	handles  []uint32
}

func (n *node) lookup(prefix string) []uint32 {
	if n == nil {
		return nil
	}
	cur := n
	depth := 0
	for _, r := range prefix {
		if depth == maxDepth {
			break
		}
		next, ok := cur.children[r]
		if !ok {
			return nil
		}
		cur = next
		depth++
	}
	if cur == n {
		return nil
	}
	return cur.handles
}

// trieWriter inserts keys into a trie, copying shared nodes on the way down.
type trieWriter struct {
	owned map[*node]struct{}
}

func newTrieWriter() *trieWriter {
	return &trieWriter{owned: make(map[*node]struct{})}
}

func (w *trieWriter) newNode() *node {
	n := &node{}
	w.owned[n] = struct{}{}
	return n
}

func (w *trieWriter) mutable(n *node) *node {
	if n == nil {
		return w.newNode()
	}
	if _, ok := w.owned[n]; ok {
		return n
	}
	c := &node{handles: n.handles[:len(n.handles):len(n.handles)]}
	if len(n.children) > 0 {
		c.children = make(map[rune]*node, len(n.children))
		for r, child := range n.children {
			c.children[r] = child
		}
	}
	w.owned[c] = struct{}{}
	return c
}

// insert adds h under key and returns the (possibly new) root.
func (w *trieWriter) insert(root *node, key string, h uint32) *node {
	if key == "" {
		return root
	}
	root = w.mutable(root)
	cur := root
	depth := 0
	for _, r := range key {
		if depth == maxDepth {
			break
		}
		child := w.mutable(cur.children[r])
		if cur.children == nil {
			cur.children = make(map[rune]*node)
		}
		cur.children[r] = child
		if n := len(child.handles); n == 0 || child.handles[n-1] != h {
			child.handles = append(child.handles, h)
		}
		cur = child
		depth++
	}
	return root
}
