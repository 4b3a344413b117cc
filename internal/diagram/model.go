package diagram

// NodeKind classifies a diagram node.
type NodeKind string

const (
	NodeKindActivity NodeKind = "activity"
	NodeKindStart    NodeKind = "start"
	NodeKindEnd      NodeKind = "end"
)

// Step statuses, as overlaid on activity nodes.
const (
	StatusDone    = "done"    // built and behind the cursor
	StatusCurrent = "current" // under the cursor
	StatusBuilt   = "built"   // built ahead of the cursor, after going back
	StatusPending = "pending" // not built yet
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents one activity of the sequence, or a virtual start/end.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries the runtime state of a node.
type StatusOverlay struct {
	Status string
	Detail string // e.g. the activity uuid
}

// Edge represents the order between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}
