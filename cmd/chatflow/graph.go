package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow/internal/presentation/graph"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/domain"
)

var graphCmd = &cobra.Command{
	Use:   "graph <flow-file>",
	Short: "Export the flow graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of a flow document. With --session, the
nodes visited by that session are highlighted (reads the configured session store).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := file.LoadGraph(args[0])
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if key, _ := cmd.Flags().GetString("session"); key != "" {
			s, err := loadSession(cmd, key)
			if err != nil {
				return err
			}
			overlay = graph.OverlayFor(s)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("session", "", "Highlight the path of a session, as project:sender")
}

func loadSession(cmd *cobra.Command, raw string) (*domain.Session, error) {
	key, ok := domain.ParseSessionKey(raw)
	if !ok {
		return nil, fmt.Errorf("invalid session key %q, expected project:sender", raw)
	}
	store, closeStore, err := getStore(cmd)
	if err != nil {
		return nil, err
	}
	defer closeStore()
	return store.Load(cmd.Context(), key)
}
