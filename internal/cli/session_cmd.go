package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hookbench/hookbench/internal/config"
	"github.com/hookbench/hookbench/internal/store"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage harness sessions",
	}

	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionCreateCmd())
	cmd.AddCommand(newSessionExpireCmd())

	return cmd
}

// openSessionManager opens the configured store for offline session
// administration.
func openSessionManager() (*store.SessionManager, func(), error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Session.Store != "sqlite" {
		return nil, nil, fmt.Errorf("session commands require the sqlite store (configured: %q)", cfg.Session.Store)
	}

	db, err := store.Open(filepath.Join(paths.Data, "hookbench.db"), log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	manager := store.NewSessionManager(
		store.NewSQLiteSessionStore(db),
		store.NewSQLiteEventStore(db),
		store.NewSQLiteRunStore(db),
		time.Duration(cfg.Session.TTLHours)*time.Hour,
		log,
	)
	return manager, func() { db.Close() }, nil
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, done, err := openSessionManager()
			if err != nil {
				return err
			}
			defer done()

			sessions, err := manager.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			now := time.Now()
			for _, s := range sessions {
				state := "active"
				if s.Expired(now) {
					state = "expired"
				}
				fmt.Printf("%s  %s  expires %s\n", s.Token, state, s.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newSessionCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a new session and print its token and secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, done, err := openSessionManager()
			if err != nil {
				return err
			}
			defer done()

			sess, err := manager.Create(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("token:   %s\nsecret:  %s\nexpires: %s\n",
				sess.Token, sess.Secret, sess.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newSessionExpireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire <token>",
		Short: "Expire a session and purge everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, done, err := openSessionManager()
			if err != nil {
				return err
			}
			defer done()

			if err := manager.Expire(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("expired", args[0])
			return nil
		},
	}
}
