// Package catalog models the external content listing and computes how it
// differs from the stored work pool.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/quorum/internal/domain/model"
)

// Entry is one candidate the content source currently lists.
type Entry struct {
	GroupID          string
	CandidateID      string
	PromptText       string
	ReferenceLocator string
	CandidateLocator string
}

// Key identifies the task an entry maps to.
func (e Entry) Key() Key { return Key{GroupID: e.GroupID, CandidateID: e.CandidateID} }

// Key is the natural identity of a task: (group, candidate).
type Key struct {
	GroupID     string
	CandidateID string
}

func (k Key) String() string { return k.GroupID + "/" + k.CandidateID }

// TaskKey returns the natural key of a stored task.
func TaskKey(t model.Task) Key { return Key{GroupID: t.GroupID, CandidateID: t.CandidateID} }

// Snapshot is the full listing returned by a content provider.
type Snapshot struct {
	Entries []Entry
}

// Validate rejects blank identifiers, duplicate keys, and groups whose
// entries disagree on prompt or reference.
func (s Snapshot) Validate() error {
	seen := make(map[Key]struct{}, len(s.Entries))
	groups := make(map[string]model.Group)
	for i, e := range s.Entries {
		if strings.TrimSpace(e.GroupID) == "" || strings.TrimSpace(e.CandidateID) == "" {
			return fmt.Errorf("%w: entry %d has a blank id", ErrInvalidSnapshot, i)
		}
		k := e.Key()
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate entry %s", ErrInvalidSnapshot, k)
		}
		seen[k] = struct{}{}
		g := model.Group{ID: e.GroupID, PromptText: e.PromptText, ReferenceLocator: e.ReferenceLocator}
		if prev, ok := groups[e.GroupID]; ok && prev != g {
			return fmt.Errorf("%w: group %s has conflicting metadata", ErrInvalidSnapshot, e.GroupID)
		}
		groups[e.GroupID] = g
	}
	return nil
}

// Groups returns the distinct groups of the snapshot, sorted by id.
func (s Snapshot) Groups() []model.Group {
	byID := make(map[string]model.Group)
	for _, e := range s.Entries {
		byID[e.GroupID] = model.Group{ID: e.GroupID, PromptText: e.PromptText, ReferenceLocator: e.ReferenceLocator}
	}
	out := make([]model.Group, 0, len(byID))
	for _, g := range byID {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Refresh is an in-place update of a task's candidate locator.
type Refresh struct {
	TaskID  int64
	Locator string
}

// Plan is the set of changes needed to bring the store in line with a
// snapshot. Every slice is in a deterministic order.
type Plan struct {
	Groups  []model.Group // new or changed groups to upsert
	Add     []Entry
	Remove  []model.Task // live tasks no longer listed
	Restore []model.Task // retired tasks listed again
	Refresh []Refresh
}

// Empty reports whether applying the plan would change nothing.
func (p Plan) Empty() bool {
	return len(p.Groups) == 0 && len(p.Add) == 0 && len(p.Remove) == 0 &&
		len(p.Restore) == 0 && len(p.Refresh) == 0
}

// Diff compares a validated snapshot with the stored tasks (retired ones
// included) and the stored groups.
func Diff(snap Snapshot, tasks []model.Task, groups []model.Group) Plan {
	var plan Plan

	stored := make(map[string]model.Group, len(groups))
	for _, g := range groups {
		stored[g.ID] = g
	}
	for _, g := range snap.Groups() {
		if prev, ok := stored[g.ID]; !ok || prev != g {
			plan.Groups = append(plan.Groups, g)
		}
	}

	listed := make(map[Key]Entry, len(snap.Entries))
	for _, e := range snap.Entries {
		listed[e.Key()] = e
	}
	known := make(map[Key]struct{}, len(tasks))
	for _, t := range tasks {
		k := TaskKey(t)
		known[k] = struct{}{}
		e, ok := listed[k]
		switch {
		case !ok && !t.Retired():
			plan.Remove = append(plan.Remove, t)
		case ok && t.Retired():
			plan.Restore = append(plan.Restore, t)
		}
		if ok && e.CandidateLocator != t.CandidateLocator {
			plan.Refresh = append(plan.Refresh, Refresh{TaskID: t.ID, Locator: e.CandidateLocator})
		}
	}
	for _, e := range snap.Entries {
		if _, ok := known[e.Key()]; !ok {
			plan.Add = append(plan.Add, e)
		}
	}

	sort.Slice(plan.Add, func(i, j int) bool {
		a, b := plan.Add[i], plan.Add[j]
		if a.GroupID != b.GroupID {
			return a.GroupID < b.GroupID
		}
		return a.CandidateID < b.CandidateID
	})
	sort.Slice(plan.Remove, func(i, j int) bool { return plan.Remove[i].ID < plan.Remove[j].ID })
	sort.Slice(plan.Restore, func(i, j int) bool { return plan.Restore[i].ID < plan.Restore[j].ID })
	sort.Slice(plan.Refresh, func(i, j int) bool { return plan.Refresh[i].TaskID < plan.Refresh[j].TaskID })
	return plan
}
