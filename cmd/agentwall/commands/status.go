package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentwall/agentwall/internal/config"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a summary of the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			bold := color.New(color.Bold)
			bold.Println("agentwall status")
			fmt.Println("────────────────────────────────────────")
			fmt.Printf("  Config:             %s\n", cfgFile)
			fmt.Printf("  Mode:               %s\n", cfg.Mode)
			fmt.Printf("  Default action:     %s\n", colorAction(cfg.DefaultAction))
			fmt.Printf("  Rules:              %d configured\n", len(cfg.Rules))
			fmt.Printf("  Response scanning:  %s\n", enabledLabel(cfg.ScanningEnabled()))
			fmt.Printf("  Injection detector: %s (%s)\n", enabledLabel(cfg.InjectionEnabled()), cfg.Security.InjectionDetection.Sensitivity)
			fmt.Printf("  Egress control:     %s\n", enabledLabel(cfg.EgressEnabled()))
			fmt.Printf("  Kill switch:        %s\n", enabledLabel(cfg.KillSwitchEnabled()))
			fmt.Printf("  Chain detection:    %s\n", enabledLabel(cfg.ChainEnabled()))
			fmt.Printf("  Audit signing:      %s\n", enabledLabel(cfg.Security.Signing))
			fmt.Printf("  Dashboard:          %s\n", enabledLabel(cfg.Dashboard.Enabled))
			return nil
		},
	}
}

func enabledLabel(on bool) string {
	if on {
		return color.GreenString("enabled")
	}
	return color.YellowString("disabled")
}

func colorAction(action string) string {
	switch action {
	case "deny":
		return color.RedString(action)
	case "allow":
		return color.GreenString(action)
	default:
		return color.YellowString(action)
	}
}
