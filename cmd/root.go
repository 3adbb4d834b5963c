// Package cmd contains the CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "secondbrain",
	Short: "secondbrain - personal knowledge base with semantic search",
	Long: `secondbrain saves links, tweets, videos and documents, indexes their
text as vector embeddings, and answers questions against the indexed
knowledge with an LLM.

Run 'secondbrain serve' to start the HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
