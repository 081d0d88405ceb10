package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	constraints "github.com/felixgeelhaar/meridian/internal/constraints/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/security"
)

// constraintFile is the document accepted by validate-constraint; it
// mirrors the body of POST /constraints.
type constraintFile struct {
	Kind       string          `json:"kind"`
	ConfigJSON json.RawMessage `json:"config_json"`
	ActiveFrom *time.Time      `json:"active_from,omitempty"`
	ActiveTo   *time.Time      `json:"active_to,omitempty"`
}

var validateConstraintCmd = &cobra.Command{
	Use:   "validate-constraint <file|->",
	Short: "Validate a constraint document without storing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}

		var doc constraintFile
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", args[0], err)
		}

		cfg, err := constraints.Parse(doc.Kind, doc.ConfigJSON, doc.ActiveFrom, doc.ActiveTo)
		if err != nil {
			return fmt.Errorf("invalid constraint: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "valid %s constraint\n", cfg.Kind())
		return nil
	},
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return security.ReadFile(path)
}

func init() {
	rootCmd.AddCommand(validateConstraintCmd)
}
