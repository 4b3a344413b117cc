package diagram

import "fmt"

// Step is one activity of a session as the diagram shows it.
type Step struct {
	ConfigID   string
	Label      string // defaults to ConfigID
	ActivityID string // empty until built
	Status     string
}

// StepsFor derives the status of every configured activity from the cursor
// position, the number of activities built and whether the session is done.
func StepsFor(configIDs []string, current, built int, completed bool) []Step {
	steps := make([]Step, len(configIDs))
	for i, id := range configIDs {
		st := StatusPending
		switch {
		case completed && i < built:
			st = StatusDone
		case i == current:
			st = StatusCurrent
		case current >= 0 && i < current:
			st = StatusDone
		case i < built:
			st = StatusBuilt
		}
		steps[i] = Step{ConfigID: id, Status: st}
	}
	return steps
}

// Build lays the steps out as a linear chain between virtual start and end
// nodes. Node IDs are positional so a configuration used twice gets two
// nodes.
func Build(title string, steps []Step) *DiagramModel {
	model := &DiagramModel{Title: title}

	start := &Node{ID: "__start__", Label: "Start", Kind: NodeKindStart}
	model.Nodes = append(model.Nodes, start)
	model.Levels = append(model.Levels, []string{start.ID})

	prev := start.ID
	for i, step := range steps {
		label := step.Label
		if label == "" {
			label = step.ConfigID
		}
		node := &Node{
			ID:    fmt.Sprintf("step_%d", i),
			Label: fmt.Sprintf("%d. %s", i+1, label),
			Kind:  NodeKindActivity,
		}
		if step.Status != "" {
			node.Status = &StatusOverlay{Status: step.Status, Detail: step.ActivityID}
		}
		model.Nodes = append(model.Nodes, node)
		model.Edges = append(model.Edges, Edge{From: prev, To: node.ID})
		model.Levels = append(model.Levels, []string{node.ID})
		prev = node.ID
	}

	end := &Node{ID: "__end__", Label: "End", Kind: NodeKindEnd}
	model.Nodes = append(model.Nodes, end)
	model.Edges = append(model.Edges, Edge{From: prev, To: end.ID})
	model.Levels = append(model.Levels, []string{end.ID})
	return model
}
