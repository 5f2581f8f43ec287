package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"branchchat/internal/capabilities"
	"branchchat/internal/config"
	"branchchat/internal/domain/models"
	"branchchat/internal/repository/rest"
	"branchchat/internal/service/branch"
	"branchchat/internal/service/session"
	"branchchat/internal/service/tree"
	"branchchat/internal/service/upload"
)

const maxLogFiles = 10

// app carries what the commands share: configuration, the logger and,
// for client commands, the engine talking to the backend.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	logFile *os.File

	backendURL string
	logDir     string
	verbose    bool

	engine *engine
}

// engine is the client side: repositories over HTTP and the stores the
// commands drive.
type engine struct {
	tree     *tree.Store
	sessions *session.Store
	branches *branch.Manager
	uploader *upload.Uploader
	catalog  *capabilities.Registry
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "branchchat",
		Short:         "Branching chat workspace client and development backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.backendURL, "backend", "", "backend base URL (default $BACKEND_URL)")
	flags.StringVar(&a.logDir, "log-dir", "", "write logs to rotating files in this directory")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log at the configured level instead of warnings only")

	root.AddCommand(
		newServeCommand(a),
		newTreeCommand(a),
		newMkdirCommand(a),
		newMoveCommand(a),
		newRenameCommand(a),
		newRemoveCommand(a),
		newHistoryCommand(a),
		newSendCommand(a),
		newDraftCommand(a),
		newBranchCommand(a),
		newConnectionCommand(a),
		newModelsCommand(a),
	)
	return root
}

// setup loads the configuration and builds the logger. The server logs
// JSON; the other commands log text and stay quiet below warnings unless
// -v is given or logs go to a file.
func (a *app) setup(cmd *cobra.Command) error {
	a.cfg = config.Load()
	if a.backendURL != "" {
		a.cfg.BackendURL = a.backendURL
	}

	var out io.Writer = os.Stderr
	if a.logDir != "" {
		f, err := config.SetupLogFile(a.logDir, cmd.Name(), maxLogFiles)
		if err != nil {
			return err
		}
		a.logFile = f
		out = f
	}

	serving := cmd.Name() == "serve"
	level := a.cfg.SlogLevel()
	if !serving && !a.verbose && a.logFile == nil && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	a.logger = config.NewLogger(out, level, serving)
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// client builds the engine on first use.
func (a *app) client() (*engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}

	catalog, err := capabilities.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("load model catalog: %w", err)
	}

	client := rest.NewClient(a.cfg.BackendURL, a.cfg.RequestTimeout, a.logger)
	items := rest.NewItemRepository(client)
	chats := rest.NewChatRepository(client)

	treeStore := tree.NewStore(items, chats, a.logger)
	sessions := session.NewStore(session.Deps{
		Messages:      client,
		Drafts:        client,
		Conversations: client,
		Chats:         chats,
		Files:         client,
		Titles: session.Titles(treeStore, session.TitleFunc(func(chatID, title string) {
			a.logger.Info("chat titled", "chat_id", chatID, "title", title)
		})),
	}, session.Options{DraftDebounce: a.cfg.DraftDebounce}, a.logger)

	a.engine = &engine{
		tree:     treeStore,
		sessions: sessions,
		branches: branch.NewManager(treeStore, sessions, chats, catalog, nil, a.logger),
		uploader: upload.NewUploader(client, a.logger),
		catalog:  catalog,
	}
	return a.engine, nil
}

// loadTree loads every folder level below parentID so any entity of the
// workspace can be addressed by id.
func (e *engine) loadTree(ctx context.Context, parentID string) error {
	if err := e.tree.LoadChildren(ctx, parentID); err != nil {
		return err
	}
	for _, child := range e.tree.Children(parentID) {
		if child.Kind == models.KindFolder && child.HasChildren {
			if err := e.loadTree(ctx, child.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadMessage loads history pages of chatID until messageID is in memory.
func (e *engine) loadMessage(ctx context.Context, chatID, messageID string) (models.Message, error) {
	if err := e.sessions.LoadFirstPage(ctx, chatID); err != nil {
		return models.Message{}, err
	}
	for {
		if msg, ok := e.sessions.Message(chatID, messageID); ok {
			return msg, nil
		}
		st, _ := e.sessions.State(chatID)
		if !st.HasMoreMessages {
			return models.Message{}, fmt.Errorf("message %s not found in chat %s", messageID, chatID)
		}
		if err := e.sessions.LoadOlderPage(ctx, chatID); err != nil {
			return models.Message{}, err
		}
	}
}
