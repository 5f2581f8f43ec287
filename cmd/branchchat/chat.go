package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"branchchat/internal/domain/models"
	"branchchat/internal/highlight"
	"branchchat/internal/service/branch"
	"branchchat/internal/service/session"
	"branchchat/internal/service/upload"
)

func newHistoryCommand(a *app) *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "history CHAT_ID",
		Short: "Print the history of a chat with its branch highlights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.client()
			if err != nil {
				return err
			}
			ctx, chatID := cmd.Context(), args[0]

			if err := e.sessions.LoadFirstPage(ctx, chatID); err != nil {
				return err
			}
			for i := 1; i < pages; i++ {
				if st, _ := e.sessions.State(chatID); !st.HasMoreMessages {
					break
				}
				if err := e.sessions.LoadOlderPage(ctx, chatID); err != nil {
					return err
				}
			}
			e.sessions.LoadDraft(ctx, chatID)

			st, _ := e.sessions.State(chatID)
			out := cmd.OutOrStdout()
			if st.HasMoreMessages {
				fmt.Fprintln(out, "… older messages not loaded, use --pages")
			}
			for _, m := range st.Messages {
				printMessage(out, m, a)
			}
			if st.Draft != nil && !st.Draft.Empty() {
				fmt.Fprintf(out, "draft: %s\n", st.Draft.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "number of history pages to load")
	return cmd
}

func printMessage(w io.Writer, m models.Message, a *app) {
	fmt.Fprintf(w, "── %s [%s]", m.Role, m.ID)
	if m.LLMModel != nil {
		fmt.Fprintf(w, " %s", *m.LLMModel)
	}
	fmt.Fprintln(w)
	if m.ReplyContent != nil {
		fmt.Fprintf(w, "> %s\n", *m.ReplyContent)
	}
	for _, att := range m.Attachments {
		name := att.FileID
		if att.File != nil {
			name = att.File.Name
		}
		fmt.Fprintf(w, "📎 %s\n", name)
	}

	root := highlight.FromText(m.Content)
	if _, err := highlight.ApplyAll(root, m.Branches); err != nil {
		a.logger.Warn("stale highlights", "message_id", m.ID, "error", err)
	}
	text, err := highlight.Markdown(root)
	if err != nil {
		text = m.Content
	}
	fmt.Fprintln(w, text)
	if m.Status == models.StatusError {
		fmt.Fprintf(w, "error: %s\n", m.Error)
	}

	for _, l := range m.Branches {
		fmt.Fprintf(w, "  ↳ %s %s → %s", l.ConnectionType, l.Context.ContextType(), l.ChildChatID)
		if sel, ok := l.Selection(); ok {
			fmt.Fprintf(w, " %q", sel.SelectedText)
		}
		fmt.Fprintln(w)
	}
}

func newSendCommand(a *app) *cobra.Command {
	var (
		model   string
		attach  []string
		replyTo string
	)
	cmd := &cobra.Command{
		Use:   "send CHAT_ID MESSAGE...",
		Short: "Send a message and stream the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.client()
			if err != nil {
				return err
			}
			ctx, chatID := cmd.Context(), args[0]
			if model == "" {
				model = a.cfg.DefaultModel
			}
			if _, err := e.catalog.Model(model); err != nil {
				return err
			}
			if _, err := resolveChat(ctx, e, chatID); err != nil {
				return err
			}
			if err := e.sessions.LoadFirstPage(ctx, chatID); err != nil {
				return err
			}

			if replyTo != "" {
				quoted, err := e.loadMessage(ctx, chatID, replyTo)
				if err != nil {
					return err
				}
				e.sessions.SetReplyContext(chatID, &models.ReplyContext{ID: quoted.ID, Content: quoted.Content})
			}

			var fileIDs []string
			for _, path := range attach {
				meta, err := uploadFile(ctx, e, path)
				if err != nil {
					return err
				}
				e.sessions.RememberFile(chatID, *meta)
				fileIDs = append(fileIDs, meta.ID)
			}

			events, unsubscribe := e.sessions.Subscribe(chatID)
			defer unsubscribe()

			ex, err := e.sessions.SendMessage(ctx, session.SendRequest{
				ChatID:      chatID,
				Content:     strings.Join(args[1:], " "),
				Model:       model,
				Attachments: fileIDs,
			})
			if err != nil {
				return err
			}
			return follow(ctx, cmd.OutOrStdout(), e, chatID, ex, events)
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model id (default $DEFAULT_MODEL)")
	cmd.Flags().StringArrayVarP(&attach, "attach", "a", nil, "file to attach, repeatable")
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "id of a message to quote")
	return cmd
}

func uploadFile(ctx context.Context, e *engine, path string) (*models.FileMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return e.uploader.Upload(ctx, upload.File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Body: f,
	})
}

// follow prints the reply of ex as it streams. Interrupting the command
// stops the stream and keeps what was received.
func follow(ctx context.Context, w io.Writer, e *engine, chatID string, ex *session.Exchange, events <-chan session.Event) error {
	printed := 0
	var title string
	flush := func() {
		msg, ok := e.sessions.Message(chatID, ex.AssistantMessageID)
		if ok && len(msg.Content) > printed {
			fmt.Fprint(w, msg.Content[printed:])
			printed = len(msg.Content)
		}
	}
	handle := func(ev session.Event) {
		switch ev.Kind {
		case session.EventContent:
			flush()
		case session.EventTitle:
			title = ev.Title
		}
	}

	stopped := false
loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			handle(ev)
		case <-ex.Done:
			break loop
		case <-ctx.Done():
			e.sessions.StopStreaming(chatID)
			<-ex.Done
			stopped = true
			break loop
		}
	}
	for drained := false; !drained && events != nil; {
		select {
		case ev, ok := <-events:
			if !ok {
				drained = true
				continue
			}
			handle(ev)
		default:
			drained = true
		}
	}
	flush()
	fmt.Fprintln(w)

	if stopped {
		fmt.Fprintln(w, "[stopped]")
		return nil
	}
	if title != "" {
		fmt.Fprintf(w, "title: %s\n", title)
	}
	if msg, ok := e.sessions.Message(chatID, ex.AssistantMessageID); ok && msg.Status == models.StatusError {
		return errors.New(msg.Error)
	}
	return nil
}

func newDraftCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "draft CHAT_ID [TEXT...]",
		Short: "Show the saved draft of a chat, or replace it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.client()
			if err != nil {
				return err
			}
			ctx, chatID := cmd.Context(), args[0]

			e.sessions.LoadDraft(ctx, chatID)
			if len(args) == 1 {
				if st, _ := e.sessions.State(chatID); st.Draft != nil && !st.Draft.Empty() {
					fmt.Fprintln(cmd.OutOrStdout(), st.Draft.Content)
				}
				return nil
			}
			content := strings.Join(args[1:], " ")
			if st, _ := e.sessions.State(chatID); st.Draft != nil && st.Draft.Content == content {
				return nil
			}
			e.sessions.SetDraft(chatID, content)
			if !e.sessions.FlushDraft(chatID) {
				return fmt.Errorf("draft of %s was not saved", chatID)
			}
			return nil
		},
	}
}

func newBranchCommand(a *app) *cobra.Command {
	var (
		selection  string
		connection string
		prompt     string
		name       string
		model      string
	)
	cmd := &cobra.Command{
		Use:   "branch CHAT_ID MESSAGE_ID",
		Short: "Branch a new chat off a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.client()
			if err != nil {
				return err
			}
			ctx, chatID, messageID := cmd.Context(), args[0], args[1]
			if model == "" {
				model = a.cfg.DefaultModel
			}

			if _, err := resolveChat(ctx, e, chatID); err != nil {
				return err
			}
			parent, err := e.loadMessage(ctx, chatID, messageID)
			if err != nil {
				return err
			}

			req := branch.CreateRequest{
				ParentChatID:    chatID,
				ParentMessageID: messageID,
				ConnectionType:  models.ConnectionType(connection),
				Name:            name,
				Prompt:          prompt,
				Model:           model,
			}
			if selection != "" {
				sel, err := highlight.SelectText(highlight.FromText(parent.Content), selection)
				if err != nil {
					return err
				}
				req.Context = sel
			}

			res, err := e.branches.CreateBranch(ctx, req)
			if res != nil {
				fmt.Fprintln(cmd.OutOrStdout(), res.Chat.ID)
			}
			if err != nil || res.Exchange == nil {
				return err
			}

			// The branch id is only known now; anything streamed before the
			// subscription is picked up from the session state.
			events, unsubscribe := e.sessions.Subscribe(res.Chat.ID)
			defer unsubscribe()
			return follow(ctx, cmd.OutOrStdout(), e, res.Chat.ID, res.Exchange, events)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&selection, "select", "s", "", "branch from this text of the message instead of the whole message")
	flags.StringVarP(&connection, "connection", "c", string(models.ConnectionAttached), "attached, detached or temporary")
	flags.StringVarP(&prompt, "prompt", "p", "", "first message to send in the branch")
	flags.StringVarP(&name, "name", "n", "", "chat name (default: derived from the selection or prompt)")
	flags.StringVarP(&model, "model", "m", "", "model id for the prompt (default $DEFAULT_MODEL)")
	return cmd
}

func newConnectionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connection CHAT_ID MESSAGE_ID BRANCH_CHAT_ID [attached|detached|toggle]",
		Short: "Change how a branch is connected to its parent message",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			chatID, messageID, childID := args[0], args[1], args[2]
			if _, err := e.loadMessage(ctx, chatID, messageID); err != nil {
				return err
			}

			mode := "toggle"
			if len(args) == 4 {
				mode = args[3]
			}
			if mode == "toggle" {
				next, err := e.branches.ToggleConnection(ctx, chatID, messageID, childID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), next)
				return nil
			}
			if err := e.branches.ChangeConnectionType(ctx, chatID, messageID, childID, models.ConnectionType(mode)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mode)
			return nil
		},
	}
}
