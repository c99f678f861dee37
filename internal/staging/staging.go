// Package staging implements the batch edit workspace. Edits accumulate as
// pending rows without touching live track data; a commit pushes them to the
// remote grouped per track and only then updates the cache. Applied edits
// are retained so a cell can be reverted later.
package staging

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/franz/radiola/internal/remote"
	"github.com/franz/radiola/internal/store"
	"github.com/franz/radiola/internal/util"
)

// Collection is the remote collection staged edits are committed against
const Collection = "tracks"

// editableFields is the allow-list of track fields that can be staged
var editableFields = map[string]bool{
	"title":       true,
	"description": true,
	"url":         true,
}

// Editable reports whether a track field accepts staged edits
func Editable(field string) bool {
	return editableFields[field]
}

// EditableFields returns the allow-listed field names, sorted
func EditableFields() []string {
	fields := make([]string, 0, len(editableFields))
	for f := range editableFields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Editor stages, commits, discards and reverts track field edits
type Editor struct {
	store  *store.Store
	remote *remote.Client
}

// New creates an Editor
func New(st *store.Store, rc *remote.Client) *Editor {
	return &Editor{store: st, remote: rc}
}

// Stage records a pending edit for one track field. The track must exist
// locally and the field must be allow-listed. Staging the same cell twice
// replaces the earlier pending value.
func (e *Editor) Stage(trackID, field, newValue string) error {
	if !Editable(field) {
		return fmt.Errorf("%w: %s", util.ErrNotEditable, field)
	}

	track, err := e.store.GetTrackByID(trackID)
	if err != nil {
		return err
	}
	if track == nil {
		return fmt.Errorf("track %s: %w", trackID, util.ErrNotFound)
	}

	oldValue := trackField(track, field)
	if err := e.store.StageEdit(trackID, field, oldValue, newValue); err != nil {
		return err
	}

	util.DebugLog("staging: staged %s.%s = %q", trackID, field, newValue)
	return nil
}

// Edits returns all pending edits, newest first
func (e *Editor) Edits() ([]*store.TrackEdit, error) {
	return e.store.PendingEdits()
}

// Count returns the number of pending edits
func (e *Editor) Count() (int, error) {
	return e.store.PendingEditCount()
}

// Commit pushes all pending edits to the remote, grouped per track, then
// applies them to the cache. A track whose remote write fails keeps its
// edits pending; tracks already committed stay committed.
// Returns the number of edits applied.
func (e *Editor) Commit(ctx context.Context) (int, error) {
	grouped, err := e.store.PendingEditsByTrack()
	if err != nil {
		return 0, err
	}
	if len(grouped) == 0 {
		return 0, nil
	}

	// Deterministic commit order across runs
	trackIDs := make([]string, 0, len(grouped))
	for id := range grouped {
		trackIDs = append(trackIDs, id)
	}
	sort.Strings(trackIDs)

	applied := 0
	for _, trackID := range trackIDs {
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		edits := grouped[trackID]
		if err := e.commitTrack(ctx, trackID, edits); err != nil {
			return applied, fmt.Errorf("failed to commit edits for track %s: %w", trackID, err)
		}
		applied += len(edits)
	}

	util.DebugLog("staging: committed %d edits across %d tracks", applied, len(trackIDs))
	return applied, nil
}

// commitTrack pushes one track's edits remote-first. The cache only changes
// after the remote accepted the diff, so a failure leaves local data
// consistent with the remote.
func (e *Editor) commitTrack(ctx context.Context, trackID string, edits []*store.TrackEdit) error {
	changes := make(map[string]string, len(edits))
	ids := make([]int64, 0, len(edits))
	for _, ed := range edits {
		changes[ed.Field] = ed.NewValue
		ids = append(ids, ed.ID)
	}

	if err := e.remote.Update(ctx, Collection, trackID, uuid.NewString(), changes); err != nil {
		return err
	}

	if err := e.store.UpdateTrackFields(trackID, changes); err != nil {
		return err
	}

	return e.store.MarkEditsApplied(ids)
}

// Discard drops all pending edits without touching track data.
// Returns the number of edits discarded.
func (e *Editor) Discard() (int, error) {
	n, err := e.store.DiscardPendingEdits()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		util.DebugLog("staging: discarded %d pending edits", n)
	}
	return n, nil
}

// Undo reverts the most recently applied edit for a cell, remote-first,
// and removes it from the undo trail. Returns util.ErrNoAppliedEdit when
// the cell has no applied edit to revert.
func (e *Editor) Undo(ctx context.Context, trackID, field string) error {
	if !Editable(field) {
		return fmt.Errorf("%w: %s", util.ErrNotEditable, field)
	}

	edit, err := e.store.LatestAppliedEdit(trackID, field)
	if err != nil {
		return err
	}
	if edit == nil {
		return fmt.Errorf("%s.%s: %w", trackID, field, util.ErrNoAppliedEdit)
	}

	revert := map[string]string{field: edit.OldValue}
	if err := e.remote.Update(ctx, Collection, trackID, uuid.NewString(), revert); err != nil {
		return err
	}
	if err := e.store.UpdateTrackFields(trackID, revert); err != nil {
		return err
	}

	if err := e.store.DeleteEdit(edit.ID); err != nil {
		return err
	}

	util.DebugLog("staging: reverted %s.%s to %q", trackID, field, edit.OldValue)
	return nil
}

func trackField(t *store.Track, field string) string {
	switch field {
	case "title":
		return t.Title
	case "description":
		return t.Description
	case "url":
		return t.URL
	default:
		return ""
	}
}
