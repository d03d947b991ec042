package grid

import (
	"sync"

	"github.com/JonMunkholm/visualedit/internal/lookup"
)

// Editor is an open linked-record cell editor. It belongs to the row it
// was opened on.
type Editor struct {
	nodeID  string
	rowID   string
	dataset string

	mu    sync.Mutex
	term  string
	cands []lookup.Candidate
}

// SearchTerm implements lookup.Editor.
func (e *Editor) SearchTerm() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.term
}

// SetSearchTerm records what the user has typed so far.
func (e *Editor) SetSearchTerm(term string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.term = term
}

// SetCandidates implements lookup.Editor.
func (e *Editor) SetCandidates(c []lookup.Candidate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cands = c
}

// Candidates returns the current option list.
func (e *Editor) Candidates() []lookup.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]lookup.Candidate(nil), e.cands...)
}

// LinkedDataset implements lookup.Editor.
func (e *Editor) LinkedDataset() string { return e.dataset }

// NodeID returns the editor's node id.
func (e *Editor) NodeID() string { return e.nodeID }

// RowID returns the id of the row being edited.
func (e *Editor) RowID() string { return e.rowID }

// Editors tracks the open editors of one grid by node id.
type Editors struct {
	mu   sync.RWMutex
	open map[string]*Editor
}

// NewEditors creates an empty registry.
func NewEditors() *Editors {
	return &Editors{open: make(map[string]*Editor)}
}

// Open registers an editor for nodeID, replacing any previous one.
func (r *Editors) Open(nodeID, rowID, dataset string) *Editor {
	r.mu.Lock()
	defer r.mu.Unlock()
	ed := &Editor{nodeID: nodeID, rowID: rowID, dataset: dataset}
	r.open[nodeID] = ed
	return ed
}

// Editor implements lookup.EditorRegistry.
func (r *Editors) Editor(nodeID string) (lookup.Editor, bool) {
	ed, ok := r.Get(nodeID)
	if !ok {
		return nil, false
	}
	return ed, true
}

// Get returns the open editor for nodeID.
func (r *Editors) Get(nodeID string) (*Editor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ed, ok := r.open[nodeID]
	return ed, ok
}

// Close removes the editor for nodeID and reports whether one was open.
func (r *Editors) Close(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.open[nodeID]
	delete(r.open, nodeID)
	return ok
}

// CloseOrphans removes the editors whose row fails keep and returns their
// node ids.
func (r *Editors) CloseOrphans(keep func(rowID string) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var closed []string
	for id, ed := range r.open {
		if !keep(ed.rowID) {
			delete(r.open, id)
			closed = append(closed, id)
		}
	}
	return closed
}

// CloseAll removes every editor.
func (r *Editors) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = make(map[string]*Editor)
}

// Len returns the number of open editors.
func (r *Editors) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.open)
}
