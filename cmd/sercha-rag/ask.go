package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var (
	askUser string
	askTopK int
)

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Answer a question from a user's stored pages",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askUser, "user", "u", domain.DefaultUserKey, "user key to search")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config, max 20)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.answer.Ask(cmd.Context(), askUser, args[0], askTopK)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	cmd.Println(answer.Answer)
	cmd.Println()
	cmd.Println("Sources:")
	for i, s := range answer.Sources {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, title, s.Distance)
		if s.Title != "" {
			cmd.Printf("      %s\n", s.URL)
		}
	}
	return nil
}
