package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mcoot/georally/internal/dependencies/random"
	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/services/round"
)

func newRoundCmd() *cobra.Command {
	var dataset datasetFlags

	cmd := &cobra.Command{
		Use:   "round",
		Short: "Round parameter commands",
	}
	dataset.register(cmd)

	var difficulty string
	var count int

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Draw round parameters locally, the way the server does",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := model.Difficulty(difficulty)
			if !d.Valid() {
				return fmt.Errorf("difficulty %q: %w", difficulty, model.ErrValidation)
			}

			g, err := dataset.load()
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			gen := round.New(g, random.New(), round.DefaultConfig(), logger)

			out := output(cmd)
			for i := 0; i < count; i++ {
				r, err := gen.Generate(d)
				if err != nil {
					return err
				}
				out.Print(GeneratedRound{
					Difficulty: string(r.Difficulty),
					Start:      r.Start,
					Middle:     r.Middle,
					Target:     r.Target,
					Banned:     model.BannedPtr(r.Banned),
				})
			}
			return nil
		},
	}
	generateCmd.Flags().StringVarP(&difficulty, "difficulty", "d", string(model.DifficultyMedium), "Difficulty: easy, medium, hard")
	generateCmd.Flags().IntVarP(&count, "count", "n", 1, "Number of rounds to draw")

	cmd.AddCommand(generateCmd)
	return cmd
}
