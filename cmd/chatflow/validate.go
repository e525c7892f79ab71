package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/adapters/file"
)

var errInvalidFlows = errors.New("one or more flows are invalid")

var validateCmd = &cobra.Command{
	Use:   "validate <flow-file>...",
	Short: "Check flow documents for structural errors",
	Long: `Runs every structural check on each flow document (YAML or JSON) and reports
all problems found. Exits non-zero when any document is invalid.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return runValidate(cmd, args, asJSON)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("json", false, "Print the validation result as JSON")
}

func runValidate(cmd *cobra.Command, paths []string, asJSON bool) error {
	out := cmd.OutOrStdout()
	invalid := false

	for _, path := range paths {
		g, err := file.LoadGraph(path)
		if err != nil {
			return err
		}
		res := validator.Validate(g)
		if !res.IsValid {
			invalid = true
		}

		if asJSON {
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			continue
		}

		if res.IsValid {
			fmt.Fprintf(out, "%s: valid\n", path)
			continue
		}
		fmt.Fprintf(out, "%s: %d problem(s)\n", path, len(res.Errors))
		for _, msg := range res.Errors {
			fmt.Fprintf(out, "  - %s\n", msg)
		}
	}

	if invalid {
		return errInvalidFlows
	}
	return nil
}
