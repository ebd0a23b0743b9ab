package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentwall/agentwall/internal/audit"
	"github.com/agentwall/agentwall/internal/config"
)

// newVerifyCmd is a thin wrapper over audit.VerifyChain, grounded on the
// teacher's cmd/oktsec/commands/audit*.go inspection subcommands: a core
// function does the real work, the CLI just loads its inputs and prints a
// human-readable report.
func newVerifyCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit log's HMAC signature chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				cfg = config.Defaults()
			}

			filePath := path
			if filePath == "" {
				filePath = cfg.Audit.FilePath
			}
			if filePath == "" {
				return fmt.Errorf("no audit log path given: pass --file or set audit.filePath in %s", cfgFile)
			}

			result, err := audit.VerifyChain(filePath, cfg.Security.SigningKey)
			if err != nil {
				return fmt.Errorf("verifying %s: %w", filePath, err)
			}

			fmt.Printf("Entries checked: %d\n", result.Entries)
			if result.Valid {
				fmt.Println(color.GreenString("Chain intact: no broken signatures found."))
				return nil
			}
			fmt.Println(color.RedString("Chain broken at entry %d.", result.FirstBroken))
			return fmt.Errorf("audit chain verification failed at entry %d", result.FirstBroken)
		},
	}

	cmd.Flags().StringVar(&path, "file", "", "audit log path (defaults to audit.filePath in the config)")
	return cmd
}
