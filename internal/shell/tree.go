package shell

import "github.com/matjam/drmcomp/internal/types"

type ActionKind int

const (
	DoChildren ActionKind = iota
	SkipChildren
	Break
)

// TraversalAction tells WalkUpward what to do after visiting a surface.
type TraversalAction struct {
	Kind   ActionKind
	Offset types.Point // passed to the children when Kind is DoChildren
}

// Descend continues into the children of the visited surface with offset.
func Descend(offset types.Point) TraversalAction {
	return TraversalAction{Kind: DoChildren, Offset: offset}
}

// Skip leaves out the whole subtree of the visited surface.
func Skip() TraversalAction {
	return TraversalAction{Kind: SkipChildren}
}

// Stop ends the walk.
func Stop() TraversalAction {
	return TraversalAction{Kind: Break}
}

// Visitor is called once per reached surface with the offset handed down by its parent.
type Visitor func(s *Surface, at types.Point) TraversalAction

type walkEntry struct {
	surface *Surface
	at      types.Point
}

// WalkUpward visits the tree rooted at root in pre-order, parents before
// children and siblings bottom to top. It uses an explicit stack so the visitor
// is the only code touching surfaces during the walk.
func WalkUpward(root *Surface, initial types.Point, visit Visitor) {
	if root == nil {
		return
	}

	stack := []walkEntry{{surface: root, at: initial}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !e.surface.Alive() {
			continue
		}

		action := visit(e.surface, e.at)
		switch action.Kind {
		case Break:
			return
		case SkipChildren:
			continue
		}

		children := e.surface.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, walkEntry{surface: children[i], at: action.Offset})
		}
	}
}
