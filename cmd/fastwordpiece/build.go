package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/example/go-fast-wordpiece/internal/config"
	"github.com/example/go-fast-wordpiece/internal/model"
	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile a vocabulary into a tokenizer model",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			vocab, err := model.LoadVocabFile(cfg.Paths.VocabPath)
			if err != nil {
				return err
			}

			built, err := model.Build(vocab, buildOptions(cfg.Build))
			if err != nil {
				return err
			}

			blob, err := model.EncodeModel(built)
			if err != nil {
				return err
			}

			target := out
			if target == "" {
				target = cfg.Paths.ModelPath
			}
			if err := os.WriteFile(target, blob, 0o644); err != nil {
				return fmt.Errorf("write model %q: %w", target, err)
			}

			slog.Info("model compiled",
				slog.String("vocab", cfg.Paths.VocabPath),
				slog.String("model", target),
				slog.Int("pieces", len(vocab)),
				slog.Int("trie_states", built.Trie.Size()),
				slog.Int("blob_bytes", len(blob)),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output model path (defaults to --paths-model-path)")

	return cmd
}

func buildOptions(b config.BuildConfig) model.BuildOptions {
	return model.BuildOptions{
		SuffixIndicator:       b.SuffixIndicator,
		UnkToken:              b.UnkToken,
		MaxBytesPerToken:      b.MaxBytesPerToken,
		EndToEnd:              b.EndToEnd,
		SupportDetokenization: b.SupportDetokenization,
	}
}
