// Package node tracks a path tree built one path at a time, with add,
// delete, find and lookup operations over the whole subtree.
//
// Its one consumer is commitbuilder, which records every path an in-flight
// editor session touches so that dirHasChanges can tell whether anything
// under a directory was touched. It does not reconcile renames, deletes or
// copies; commitbuilder resolves those from its own pending-change map.
package node

import "strings"

// Node is one entry (file or directory) in a path tree rooted at "".
type Node struct {
	Name            string
	Path            string
	IsFile          bool
	CaseInsensitive bool
	Children        []*Node
}

func (n *Node) stringEqual(s1, s2 string) bool {
	if n.CaseInsensitive {
		return len(s1) == len(s2) && strings.EqualFold(s1, s2)
	}
	return len(s1) == len(s2) && s1 == s2
}

// NewNode constructs a directory node; case-insensitivity matters for
// repositories configured to serve Windows/macOS SVN clients where path
// lookups should not depend on case.
func NewNode(name string, caseInsensitive bool) *Node {
	return &Node{Name: name, CaseInsensitive: caseInsensitive}
}

// AddFile records a file as present at path, creating any missing
// intermediate directory nodes.
func (n *Node) AddFile(path string) {
	n.addSubFile(path, path)
}

// DeleteFile removes a file (or, if the path names a directory, the whole
// subtree) from the tree. Deleting a path not present is a no-op, matching
// the editor protocol's tolerance of a delete racing a prior delete.
func (n *Node) DeleteFile(path string) {
	n.deleteSubFile(path, path)
}

func (n *Node) addSubFile(fullPath string, subPath string) {
	parts := strings.Split(subPath, "/")
	if len(parts) == 1 {
		for _, c := range n.Children {
			if n.stringEqual(c.Name, parts[0]) {
				return // already registered
			}
		}
		n.Children = append(n.Children, &Node{Name: parts[0], IsFile: true, Path: fullPath, CaseInsensitive: n.CaseInsensitive})
		return
	}
	for _, c := range n.Children {
		if n.stringEqual(c.Name, parts[0]) {
			c.addSubFile(fullPath, strings.Join(parts[1:], "/"))
			return
		}
	}
	child := NewNode(parts[0], n.CaseInsensitive)
	n.Children = append(n.Children, child)
	child.addSubFile(fullPath, strings.Join(parts[1:], "/"))
}

func (n *Node) deleteSubFile(fullPath string, subPath string) {
	parts := strings.Split(subPath, "/")
	if len(parts) == 1 {
		for i, c := range n.Children {
			if n.stringEqual(c.Name, parts[0]) {
				n.Children[i] = n.Children[len(n.Children)-1]
				n.Children = n.Children[:len(n.Children)-1]
				return
			}
		}
		return // not found: tolerate, per editor-protocol idempotence
	}
	for _, c := range n.Children {
		if n.stringEqual(c.Name, parts[0]) {
			c.deleteSubFile(fullPath, strings.Join(parts[1:], "/"))
			return
		}
	}
}

func (n *Node) childFiles() []string {
	files := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		if c.IsFile {
			files = append(files, c.Path)
		} else {
			files = append(files, c.childFiles()...)
		}
	}
	return files
}

// GetFiles returns every file path under dirName ("" for the whole tree).
func (n *Node) GetFiles(dirName string) []string {
	if n.Name == "" && dirName == "" {
		return n.childFiles()
	}
	parts := strings.Split(dirName, "/")
	if len(parts) == 1 {
		files := make([]string, 0)
		for _, c := range n.Children {
			if n.stringEqual(c.Name, parts[0]) {
				if c.IsFile {
					files = append(files, c.Path)
				} else {
					files = append(files, c.childFiles()...)
				}
			}
		}
		return files
	}
	for _, c := range n.Children {
		if n.stringEqual(c.Name, parts[0]) {
			return c.GetFiles(strings.Join(parts[1:], "/"))
		}
	}
	return nil
}

// Child looks up an immediate child by name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if n.stringEqual(c.Name, name) {
			return c
		}
	}
	return nil
}

// Lookup resolves a slash-path to its node, or nil if absent.
func (n *Node) Lookup(path string) *Node {
	path = strings.Trim(path, "/")
	if path == "" {
		return n
	}
	parts := strings.SplitN(path, "/", 2)
	child := n.Child(parts[0])
	if child == nil {
		return nil
	}
	if len(parts) == 1 {
		return child
	}
	return child.Lookup(parts[1])
}

// FindFile reports whether fileName names a file already tracked in the tree.
func (n *Node) FindFile(fileName string) bool {
	parts := strings.Split(fileName, "/")
	dir := ""
	if len(parts) > 1 {
		dir = strings.Join(parts[:len(parts)-1], "/")
	}
	for _, f := range n.GetFiles(dir) {
		if n.stringEqual(f, fileName) {
			return true
		}
	}
	return false
}

// SortedChildNames returns immediate child names in lexicographic order.
func (n *Node) SortedChildNames() []string {
	names := make([]string, len(n.Children))
	for i, c := range n.Children {
		names[i] = c.Name
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}
