package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yourorg/kysafety/internal/approval"
	"github.com/yourorg/kysafety/internal/auth"
	"github.com/yourorg/kysafety/internal/db/sqlite"
)

func migrateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), g)
			if err != nil {
				return err
			}
			g.logger.Info("migrations applied", "db", g.dbPath)
			return sqlite.Close(db)
		},
	}
}

func sessionCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage bearer sessions",
	}

	var actorID, actorName string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a session token; the raw token is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer func() { _ = sqlite.Close(db) }()

			authn := auth.NewAuthenticator(sqlite.NewSessionRepository(db), auth.LoadConfig())
			sess, raw, err := authn.Issue(cmd.Context(), actorID, actorName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session: %s\ntoken:   %s\n", sess.ID, raw)
			if sess.ExpiresAt != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "expires: %s\n", sess.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
	issue.Flags().StringVar(&actorID, "actor", "", "actor id recorded on approvals")
	issue.Flags().StringVar(&actorName, "name", "", "display name")
	_ = issue.MarkFlagRequired("actor")

	revoke := &cobra.Command{
		Use:   "revoke <session-id>",
		Short: "Revoke a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer func() { _ = sqlite.Close(db) }()

			authn := auth.NewAuthenticator(sqlite.NewSessionRepository(db), auth.LoadConfig())
			if err := authn.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(issue, revoke)
	return cmd
}

func entryCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Seed and inspect KY entries",
	}

	var entryID, projectID, title string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an unapproved KY entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer func() { _ = sqlite.Close(db) }()

			entry, err := sqlite.NewApprovalRepository(db).CreateEntry(cmd.Context(), approval.KyEntry{
				ID:        entryID,
				ProjectID: projectID,
				Title:     title,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
	create.Flags().StringVar(&entryID, "id", "", "entry id; generated when empty")
	create.Flags().StringVar(&projectID, "project", "", "project id")
	create.Flags().StringVar(&title, "title", "", "entry title used in broadcasts")
	_ = create.MarkFlagRequired("project")
	_ = create.MarkFlagRequired("title")

	logCmd := &cobra.Command{
		Use:   "log <entry-id>",
		Short: "Print an entry's approval log and verify its hash chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer func() { _ = sqlite.Close(db) }()

			records, err := sqlite.NewApprovalRepository(db).ListLog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), records); err != nil {
				return err
			}
			if err := approval.VerifyChain(records); err != nil {
				return fmt.Errorf("chain broken: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "chain ok (%d records)\n", len(records))
			return nil
		},
	}

	cmd.AddCommand(create, logCmd)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
