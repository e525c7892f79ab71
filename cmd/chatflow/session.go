package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/adapters/redis"
	"github.com/aretw0/chatflow/pkg/adapters/sqlite"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
	"github.com/aretw0/chatflow/pkg/ports"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persisted sessions",
	Long: `List, inspect, and remove sessions in the configured session store
(CHATFLOW_STORE_SESSIONS). Sessions are addressed as project:sender.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := getStore(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		keys, err := store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(keys) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}
		fmt.Fprintln(out, "Sessions:")
		for _, k := range keys {
			fmt.Fprintln(out, "- "+k.String())
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <project:sender>",
	Short: "Inspect the state of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd, args[0])
		if err != nil {
			return fmt.Errorf("load session '%s': %w", args[0], err)
		}
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <project:sender>...",
	Short: "Remove one or more sessions",
	Args: func(cmd *cobra.Command, args []string) error {
		if all, _ := cmd.Flags().GetBool("all"); all {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := getStore(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		var keys []domain.SessionKey
		if all, _ := cmd.Flags().GetBool("all"); all {
			if keys, err = store.List(cmd.Context()); err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
		} else {
			for _, raw := range args {
				key, ok := domain.ParseSessionKey(raw)
				if !ok {
					return fmt.Errorf("invalid session key %q, expected project:sender", raw)
				}
				keys = append(keys, key)
			}
		}

		out := cmd.OutOrStdout()
		var errs []error
		for _, key := range keys {
			if err := store.Delete(cmd.Context(), key); err != nil {
				errs = append(errs, fmt.Errorf("remove '%s': %w", key, err))
				continue
			}
			fmt.Fprintf(out, "Removed session '%s'\n", key)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	sessionRmCmd.Flags().Bool("all", false, "Remove every session in the store")
	sessionInspectCmd.Flags().StringSlice("redact", nil, "Mask variables whose name matches these regular expressions")
}

// getStore opens the configured session store, sealed and redacted as configured.
// The in-memory store does not outlive a process, so the file store stands in for it.
func getStore(cmd *cobra.Command) (ports.SessionStore, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	var (
		store     ports.SessionStore
		closeFunc = func() {}
	)
	switch cfg.Store.Sessions {
	case "redis":
		rs, err := redis.New(cfg.Store.RedisURL, redis.WithTTL(cfg.Store.SessionTTL))
		if err != nil {
			return nil, nil, err
		}
		store, closeFunc = rs, func() { _ = rs.Close() }
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store, closeFunc = sqlite.NewSessionStore(db), func() { _ = db.Close() }
	default:
		store = file.New(cfg.Store.Dir)
	}

	store, err = sealed(cfg, store)
	if err != nil {
		closeFunc()
		return nil, nil, err
	}
	if patterns, _ := cmd.Flags().GetStringSlice("redact"); len(patterns) > 0 {
		redact, err := middleware.NewRedactMiddleware(patterns)
		if err != nil {
			closeFunc()
			return nil, nil, err
		}
		store = redact(store)
	}
	return store, closeFunc, nil
}
