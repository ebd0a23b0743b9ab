package commands

import (
	"github.com/spf13/cobra"
)

var cfgFile string

// NewRoot builds the agentwall command tree.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentwall",
		Short: "Security firewall for AI-agent tool-call traffic",
		Long:  "Agent Wall sits between an AI-agent client and a tool server's stdio, evaluating every tool call and response against a policy before it reaches either side.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "agentwall.yaml", "config file path")

	root.AddCommand(
		newRunCmd(),
		newInitCmd(),
		newStatusCmd(),
		newVerifyCmd(),
		newVersionCmd(),
	)

	return root
}
