package command

import (
	"fmt"
	"strings"
)

// Command is a node in a command tree. The node set is closed: a node is a
// *Root (tree entry point), a *Group (intermediate node with children), or
// a *Leaf (terminal node holding a signature contract).
//
// A node's full name is derived, not authored: the enclosing Root stamps it
// into every descendant exactly once at construction, as the space-joined
// path of names from the root. Once a Root is built the tree is read-only
// and safe for unsynchronized concurrent reads.
type Command interface {
	// Name is the node's own name, matched against one token.
	Name() string
	// Description is the one-line description shown in help text.
	Description() string
	// Limited returns the role restriction; nil means unrestricted.
	Limited() RoleSet
	// FullName is the space-joined path from the root to this node.
	FullName() string
	// HelpInfo renders role-filtered help text. Callers must have already
	// passed this node's own permission check.
	HelpInfo(roles RoleSet) string

	stamp(parentFullName string)
}

// node holds the record shared by all three variants.
type node struct {
	name     string
	desc     string
	limited  RoleSet
	fullName string
}

func (n *node) Name() string        { return n.name }
func (n *node) Description() string { return n.desc }
func (n *node) Limited() RoleSet    { return n.limited }
func (n *node) FullName() string    { return n.fullName }

// Group is an intermediate command-tree node: it has children and no
// handler. Groups never stamp full names themselves; that happens once,
// from the enclosing Root, at tree assembly.
type Group struct {
	node
	children []Command
}

// NewGroup builds an intermediate node. limited may be nil for an
// unrestricted node.
func NewGroup(name, desc string, limited RoleSet, children ...Command) *Group {
	return &Group{
		node:     node{name: name, desc: desc, limited: limited, fullName: name},
		children: children,
	}
}

// Children returns the node's children in declaration order.
func (g *Group) Children() []Command { return g.children }

// Child returns the child with the given name, or nil.
func (g *Group) Child(name string) Command {
	for _, c := range g.children {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// HelpInfo lists the children the caller's roles can reach. Children failing
// the role test are omitted entirely: help never discloses commands the
// caller cannot use.
func (g *Group) HelpInfo(roles RoleSet) string {
	var b strings.Builder
	b.WriteString(g.fullName)
	b.WriteByte('\n')
	b.WriteString(g.desc)
	b.WriteByte('\n')
	b.WriteString("Sub-command list:")
	for _, c := range g.children {
		if c.Limited() != nil && !c.Limited().Intersects(roles) {
			continue
		}
		fmt.Fprintf(&b, "\n* %s: %s", c.Name(), c.Description())
	}
	return b.String()
}

func (g *Group) stamp(parentFullName string) {
	g.fullName = parentFullName + " " + g.name
	for _, c := range g.children {
		c.stamp(g.fullName)
	}
}

// Root is the entry point of a command tree. It behaves like a Group but
// additionally stamps the full name of every descendant when constructed.
// A single-level command should be a Leaf instead.
type Root struct {
	Group
}

// NewRoot builds the tree entry point and performs the one recursive pass
// assigning full names to every descendant, seeded with the root's own name.
func NewRoot(name, desc string, limited RoleSet, children ...Command) *Root {
	r := &Root{Group: *NewGroup(name, desc, limited, children...)}
	for _, c := range r.children {
		c.stamp(name)
	}
	return r
}

// Leaf is a terminal command-tree node holding one signature contract.
type Leaf struct {
	node
	fn Function
}

// NewLeaf builds a terminal node around a signature contract.
func NewLeaf(name, desc string, limited RoleSet, fn Function) *Leaf {
	return &Leaf{
		node: node{name: name, desc: desc, limited: limited, fullName: name},
		fn:   fn,
	}
}

// Function returns the leaf's signature contract.
func (l *Leaf) Function() Function { return l.fn }

// HelpInfo renders the leaf's usage line and parameter list.
func (l *Leaf) HelpInfo(RoleSet) string {
	header := l.fullName
	if usage := l.fn.UsageLine(); usage != "" {
		header += " " + usage
	}
	if l.fn.NumParams() == 0 {
		return header + "\nThis command takes no parameters"
	}
	return header + "\nParameter list:\n" + l.fn.ParamHelp()
}

func (l *Leaf) stamp(parentFullName string) {
	l.fullName = parentFullName + " " + l.name
}
