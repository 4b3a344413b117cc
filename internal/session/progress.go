package session

import (
	"github.com/rendis/sequencer/internal/diagram"
	"github.com/rendis/sequencer/pkg/schema"
)

// Progress describes every configured activity for rendering: its title,
// the uuid of its built instance and where it stands relative to the cursor.
func (s *Session) Progress() []diagram.Step {
	st := s.Status()
	steps := diagram.StepsFor(st.ActivityIDs, st.Current, st.Built,
		st.Status == schema.SessionStatusCompleted)
	for i := range steps {
		if info, err := s.infos.GetInfo(steps[i].ConfigID); err == nil {
			steps[i].Label = info.Title
		}
	}
	for _, v := range s.Activities() {
		if v.Index < len(steps) {
			steps[v.Index].ActivityID = v.ID
		}
	}
	return steps
}

// Diagram lays out Progress for the diagram renderers.
func (s *Session) Diagram() *diagram.DiagramModel {
	return diagram.Build("Session "+s.id, s.Progress())
}
