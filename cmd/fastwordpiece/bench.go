package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type benchResult struct {
	Runs         int     `json:"runs"`
	InputBytes   int     `json:"input_bytes"`
	Tokens       int     `json:"tokens"`
	TotalSeconds float64 `json:"total_seconds"`
	MBPerSecond  float64 `json:"mb_per_second"`
	TokensPerSec float64 `json:"tokens_per_second"`
	MicrosPerRun float64 `json:"micros_per_run"`
}

func newBenchCmd() *cobra.Command {
	var (
		text   string
		file   string
		runs   int
		format string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark tokenization throughput",
		RunE: func(_ *cobra.Command, _ []string) error {
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			input := text
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read corpus %q: %w", file, err)
				}
				input = string(data)
			}
			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("--text or --file is required for bench")
			}

			tok, err := loadTokenizer()
			if err != nil {
				return err
			}

			// One warm-up run keeps first-touch costs out of the timing.
			ids := make([]int, 0, len(input)/4)
			tok.TokenizeIDs(input, &ids, 0)

			tokens := 0
			start := time.Now()
			for i := 0; i < runs; i++ {
				ids = ids[:0]
				tok.TokenizeIDs(input, &ids, 0)
				tokens += len(ids)
			}
			elapsed := time.Since(start)

			res := benchResult{
				Runs:         runs,
				InputBytes:   len(input),
				Tokens:       tokens,
				TotalSeconds: elapsed.Seconds(),
				MBPerSecond:  float64(len(input)*runs) / (1 << 20) / elapsed.Seconds(),
				TokensPerSec: float64(tokens) / elapsed.Seconds(),
				MicrosPerRun: float64(elapsed.Microseconds()) / float64(runs),
			}

			if format == "json" {
				return json.NewEncoder(os.Stdout).Encode(res)
			}
			fmt.Printf("runs:            %d\n", res.Runs)
			fmt.Printf("input:           %d bytes\n", res.InputBytes)
			fmt.Printf("tokens:          %d\n", res.Tokens)
			fmt.Printf("throughput:      %.2f MB/s\n", res.MBPerSecond)
			fmt.Printf("tokens/s:        %.0f\n", res.TokensPerSec)
			fmt.Printf("time per run:    %.1f µs\n", res.MicrosPerRun)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to tokenize")
	cmd.Flags().StringVar(&file, "file", "", "Corpus file to tokenize")
	cmd.Flags().IntVar(&runs, "runs", 100, "Number of timed runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table|json)")

	return cmd
}
