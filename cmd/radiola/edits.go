package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/franz/radiola/internal/staging"
	"github.com/franz/radiola/internal/util"
)

var editsCmd = &cobra.Command{
	Use:   "edits",
	Short: "Stage, review and commit track edits",
	Long: `Batch edit workspace for track fields.

Edits accumulate locally without touching track data. 'commit' pushes
them to the remote grouped per track and then updates the cache;
'discard' drops them. Committed edits can be reverted per field with
'undo'.`,
}

var editsStageCmd = &cobra.Command{
	Use:   "stage <track-id> <field> <value>",
	Short: "Stage a new value for a track field",
	Long: fmt.Sprintf(`Stage a new value for one track field.

Editable fields: %s. Staging the same field again replaces the earlier
pending value.`, strings.Join(staging.EditableFields(), ", ")),
	Args: cobra.ExactArgs(3),
	RunE: runEditsStage,
}

var editsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending edits, newest first",
	RunE:  runEditsList,
}

var editsCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Push all pending edits to the remote",
	RunE:  runEditsCommit,
}

var editsDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Drop all pending edits without applying them",
	RunE:  runEditsDiscard,
}

var editsUndoCmd = &cobra.Command{
	Use:   "undo <track-id> <field>",
	Short: "Revert the most recently committed edit for a field",
	Args:  cobra.ExactArgs(2),
	RunE:  runEditsUndo,
}

func init() {
	rootCmd.AddCommand(editsCmd)
	editsCmd.AddCommand(editsStageCmd)
	editsCmd.AddCommand(editsListCmd)
	editsCmd.AddCommand(editsCommitCmd)
	editsCmd.AddCommand(editsDiscardCmd)
	editsCmd.AddCommand(editsUndoCmd)
}

func runEditsStage(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	editor := staging.New(db, newRemoteClient())
	if err := editor.Stage(args[0], args[1], args[2]); err != nil {
		if errors.Is(err, util.ErrNotEditable) {
			return fmt.Errorf("field %q is not editable (editable: %s)",
				args[1], strings.Join(staging.EditableFields(), ", "))
		}
		return err
	}

	count, err := editor.Count()
	if err != nil {
		return err
	}

	util.SuccessLog("Staged %s.%s", args[0], args[1])
	util.InfoLog("%d edits pending. Review with 'radiola edits list'.", count)
	return nil
}

func runEditsList(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	editor := staging.New(db, newRemoteClient())
	edits, err := editor.Edits()
	if err != nil {
		return err
	}

	if len(edits) == 0 {
		util.InfoLog("No pending edits")
		return nil
	}

	util.InfoLog("=== Pending Edits ===")
	for _, e := range edits {
		util.InfoLog("%s.%s", e.TrackID, e.Field)
		util.InfoLog("  %q -> %q", e.OldValue, e.NewValue)
	}
	util.InfoLog("")
	util.InfoLog("%d edits pending", len(edits))

	return nil
}

func runEditsCommit(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	editor := staging.New(db, newRemoteClient())
	applied, err := editor.Commit(context.Background())
	if err != nil {
		if applied > 0 {
			util.WarnLog("Committed %d edits before the failure; the rest stay pending", applied)
		}
		return err
	}

	if applied == 0 {
		util.InfoLog("No pending edits to commit")
		return nil
	}

	util.SuccessLog("Committed %d edits", applied)
	return nil
}

func runEditsDiscard(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	editor := staging.New(db, newRemoteClient())
	n, err := editor.Discard()
	if err != nil {
		return err
	}

	if n == 0 {
		util.InfoLog("No pending edits to discard")
		return nil
	}

	util.SuccessLog("Discarded %d edits", n)
	return nil
}

func runEditsUndo(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	editor := staging.New(db, newRemoteClient())
	if err := editor.Undo(context.Background(), args[0], args[1]); err != nil {
		if errors.Is(err, util.ErrNoAppliedEdit) {
			util.WarnLog("No committed edit to revert for %s.%s", args[0], args[1])
			return nil
		}
		return err
	}

	util.SuccessLog("Reverted %s.%s", args[0], args[1])
	return nil
}
