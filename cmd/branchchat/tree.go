package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"branchchat/internal/domain/models"
)

func newTreeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree [folder-id]",
		Short: "Print the workspace tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.client()
			if err != nil {
				return err
			}
			parentID := ""
			if len(args) == 1 {
				parentID = args[0]
			}
			if err := e.loadTree(cmd.Context(), parentID); err != nil {
				return err
			}
			printTree(cmd.OutOrStdout(), e, parentID, 0)
			return nil
		},
	}
}

func printTree(w io.Writer, e *engine, parentID string, depth int) {
	for _, child := range e.tree.Children(parentID) {
		line := fmt.Sprintf("%s%-7s %s  [%s]", strings.Repeat("  ", depth), child.Kind, child.Name, child.ID)
		if child.ParentChatID != nil {
			parent := *child.ParentChatID
			if p, ok := e.tree.Entity(parent); ok {
				parent = p.Name
			}
			line += fmt.Sprintf("  (branch of %s)", parent)
		}
		fmt.Fprintln(w, line)
		if child.Kind == models.KindFolder {
			printTree(w, e, child.ID, depth+1)
		}
	}
}

func newMkdirCommand(a *app) *cobra.Command {
	var (
		parentID string
		kind     string
	)
	cmd := &cobra.Command{
		Use:   "mkdir NAME",
		Short: "Create a folder, chat or note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := models.ParseEntityKind(kind)
			if err != nil {
				return err
			}
			e, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := e.loadTree(ctx, ""); err != nil {
				return err
			}

			id, err := e.tree.CreateTemporaryEntity(ctx, k, parentID)
			if err != nil {
				return err
			}
			if err := e.tree.CommitEdit(ctx, id, args[0]); err != nil {
				return err
			}
			if _, ok := e.tree.Entity(id); !ok {
				return fmt.Errorf("%s was not created", k)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&parentID, "parent", "p", "", "parent folder id (default: root)")
	cmd.Flags().StringVarP(&kind, "kind", "k", string(models.KindFolder), "folder, chat, note or mindlet")
	return cmd
}

func newMoveCommand(a *app) *cobra.Command {
	var (
		target string
		index  int
	)
	cmd := &cobra.Command{
		Use:   "mv ID",
		Short: "Move an entity to another folder or position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := e.loadTree(ctx, ""); err != nil {
				return err
			}

			var at *int
			if cmd.Flags().Changed("index") {
				at = &index
			}
			return e.tree.MoveEntity(ctx, args[0], target, at)
		},
	}
	cmd.Flags().StringVarP(&target, "to", "t", "", "target folder id (default: root)")
	cmd.Flags().IntVarP(&index, "index", "i", 0, "position among the target's children, 0 is the top")
	return cmd
}

func newRenameCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := e.loadTree(ctx, ""); err != nil {
				return err
			}
			if err := e.tree.BeginRename(args[0]); err != nil {
				return err
			}
			return e.tree.CommitEdit(ctx, args[0], args[1])
		},
	}
}

func newRemoveCommand(a *app) *cobra.Command {
	var parentChatID, messageID string
	cmd := &cobra.Command{
		Use:   "rm ID",
		Short: "Delete an entity and everything below it",
		Long: "Delete an entity and everything below it. With --parent-chat and --message\n" +
			"the entity is a branch chat and its link on the parent message goes too.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := e.loadTree(ctx, ""); err != nil {
				return err
			}

			if parentChatID == "" && messageID == "" {
				return e.tree.DeleteEntity(ctx, args[0])
			}
			if parentChatID == "" || messageID == "" {
				return fmt.Errorf("--parent-chat and --message go together")
			}
			if _, err := e.loadMessage(ctx, parentChatID, messageID); err != nil {
				return err
			}
			return e.branches.DeleteBranch(ctx, parentChatID, messageID, args[0])
		},
	}
	cmd.Flags().StringVar(&parentChatID, "parent-chat", "", "chat the branch was created from")
	cmd.Flags().StringVar(&messageID, "message", "", "message the branch hangs off")
	return cmd
}

// resolveChat fails early with a readable error when chatID is not a chat
// of the loaded tree.
func resolveChat(ctx context.Context, e *engine, chatID string) (models.Entity, error) {
	if err := e.loadTree(ctx, ""); err != nil {
		return models.Entity{}, err
	}
	ent, ok := e.tree.Entity(chatID)
	if !ok {
		return models.Entity{}, fmt.Errorf("no chat %s in the workspace", chatID)
	}
	if ent.Kind != models.KindChat {
		return models.Entity{}, fmt.Errorf("%s is a %s, not a chat", chatID, ent.Kind)
	}
	return ent, nil
}
