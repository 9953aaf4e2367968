package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/outlet-cli/internal/chat"
	"github.com/sells-group/outlet-cli/internal/config"
	anthropicpkg "github.com/sells-group/outlet-cli/pkg/anthropic"
)

var chatCmd = &cobra.Command{
	Use:   "chat <question>",
	Short: "Ask a question about the exported outlets",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeChat); err != nil {
			return err
		}

		answer, err := newAnswerer(cfg).Answer(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, answer)
		return err
	},
}

func newAnswerer(c *config.Config) *chat.Answerer {
	return chat.NewAnswerer(
		anthropicpkg.NewClient(c.Anthropic.Key),
		chat.FileSnapshot(c.Export.Path),
		chat.Config{Model: c.Anthropic.Model, MaxTokens: c.Anthropic.MaxTokens},
	)
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
