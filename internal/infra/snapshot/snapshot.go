// Package snapshot implements the assimilation and planning reader contracts
// over a JSON snapshot document exported by the upstream systems. It is the
// file-based integration used by single-node deployments and operational
// re-runs.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"aquacast/pkg/domain"
)

// Document is the on-disk snapshot layout: the active assignment set with
// each assignment's latest anchor, plus pinned scenarios keyed by batch and
// the set of assignments with planned activities.
type Document struct {
	Assignments []domain.AssignmentRef           `json:"assignments"`
	Anchors     map[string]domain.AnchorState    `json:"anchors"`
	Scenarios   map[string]domain.ScenarioConfig `json:"scenarios"`
	Planned     []string                         `json:"planned_assignments,omitempty"`
}

// Reader serves both collaborator contracts from one loaded document.
type Reader struct {
	doc     Document
	planned map[string]bool
}

var (
	_ domain.AssimilationReader = (*Reader)(nil)
	_ domain.PlanningReader     = (*Reader)(nil)
)

// Load reads and validates a snapshot file.
func Load(path string) (*Reader, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return NewReader(doc)
}

// NewReader wraps an in-memory document.
func NewReader(doc Document) (*Reader, error) {
	seen := make(map[string]bool, len(doc.Assignments))
	for _, ref := range doc.Assignments {
		if ref.AssignmentID == "" {
			return nil, fmt.Errorf("snapshot assignment missing id")
		}
		if seen[ref.AssignmentID] {
			return nil, fmt.Errorf("duplicate assignment %s in snapshot", ref.AssignmentID)
		}
		seen[ref.AssignmentID] = true
	}
	planned := make(map[string]bool, len(doc.Planned))
	for _, id := range doc.Planned {
		planned[id] = true
	}
	return &Reader{doc: doc, planned: planned}, nil
}

// ActiveAssignments returns the snapshot's assignment set.
func (r *Reader) ActiveAssignments(context.Context) ([]domain.AssignmentRef, error) {
	out := make([]domain.AssignmentRef, len(r.doc.Assignments))
	copy(out, r.doc.Assignments)
	return out, nil
}

// LatestAnchor returns the assignment's anchor, or ok=false when the
// snapshot carries none.
func (r *Reader) LatestAnchor(_ context.Context, assignmentID string) (domain.AnchorState, bool, error) {
	anchor, ok := r.doc.Anchors[assignmentID]
	return anchor, ok, nil
}

// PinnedScenario returns the batch's baseline scenario, or ok=false when
// none is pinned.
func (r *Reader) PinnedScenario(_ context.Context, batchID string) (domain.ScenarioConfig, bool, error) {
	scenario, ok := r.doc.Scenarios[batchID]
	return scenario, ok, nil
}

// HasPlannedActivity reports whether the snapshot lists a scheduled harvest
// or transfer for the assignment.
func (r *Reader) HasPlannedActivity(_ context.Context, assignmentID string) (bool, error) {
	return r.planned[assignmentID], nil
}
