package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/example/go-fast-wordpiece/internal/wordpiece"
)

func newTokenizeCmd() *cobra.Command {
	var (
		file        string
		withPieces  bool
		withOffsets bool
		format      string
		batch       bool
		wordOffset  int
	)

	cmd := &cobra.Command{
		Use:   "tokenize [text]",
		Short: "Tokenize text into WordPiece ids",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if format != "plain" && format != "json" {
				return fmt.Errorf("--format must be 'plain' or 'json'")
			}

			tok, err := loadTokenizer()
			if err != nil {
				return err
			}

			input, err := readInput(args, file, os.Stdin)
			if err != nil {
				return err
			}

			if batch {
				return tokenizeBatch(tok, input, withPieces, withOffsets, format, os.Stdout)
			}
			return printTokenization(tok, input, withPieces, withOffsets, wordOffset, format, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Read input from file instead of argument/stdin")
	cmd.Flags().BoolVar(&withPieces, "pieces", false, "Emit piece strings as well as ids")
	cmd.Flags().BoolVar(&withOffsets, "offsets", false, "Emit byte offsets as well as ids")
	cmd.Flags().StringVar(&format, "format", "plain", "Output format (plain|json)")
	cmd.Flags().BoolVar(&batch, "batch", false, "Treat each input line as one text and tokenize lines concurrently")
	cmd.Flags().IntVar(&wordOffset, "word-offset", 0, "Byte offset of the input inside an enclosing text (single-word models only)")

	return cmd
}

func loadTokenizer() (*wordpiece.Tokenizer, error) {
	cfg, err := requireConfig()
	if err != nil {
		return nil, err
	}
	mdl, err := loadModel(cfg.Paths.ModelPath)
	if err != nil {
		return nil, err
	}
	return wordpiece.New(mdl)
}

func readInput(args []string, file string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "" {
		return args[0], nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read input %q: %w", file, err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

type tokenizeOutput struct {
	IDs    []int    `json:"ids"`
	Pieces []string `json:"pieces,omitempty"`
	Starts []int    `json:"starts,omitempty"`
	Ends   []int    `json:"ends,omitempty"`
}

func tokenizeOne(tok *wordpiece.Tokenizer, input string, withPieces, withOffsets bool, wordOffset int) tokenizeOutput {
	out := tokenizeOutput{IDs: []int{}}
	switch {
	case withPieces:
		out.Pieces = []string{}
		out.Starts = []int{}
		out.Ends = []int{}
		tok.Tokenize(input, &out.Pieces, &out.IDs, &out.Starts, &out.Ends, wordOffset)
	case withOffsets:
		out.Starts = []int{}
		out.Ends = []int{}
		tok.TokenizeIDsOffsets(input, &out.IDs, &out.Starts, &out.Ends, wordOffset)
	default:
		tok.TokenizeIDs(input, &out.IDs, wordOffset)
	}
	return out
}

func printTokenization(tok *wordpiece.Tokenizer, input string, withPieces, withOffsets bool, wordOffset int, format string, w io.Writer) error {
	out := tokenizeOne(tok, input, withPieces, withOffsets, wordOffset)
	if format == "json" {
		return json.NewEncoder(w).Encode(out)
	}
	_, err := fmt.Fprintln(w, formatPlain(out))
	return err
}

// tokenizeBatch treats every input line as an independent text. Lines are
// tokenized concurrently; the tokenizer is immutable and each line owns its
// output slices, so no synchronization beyond the pool is needed. Output
// order matches input order.
func tokenizeBatch(tok *wordpiece.Tokenizer, input string, withPieces, withOffsets bool, format string, w io.Writer) error {
	lines := strings.Split(input, "\n")
	results := make([]tokenizeOutput, len(lines))

	p := pool.New().WithMaxGoroutines(runtime.GOMAXPROCS(0))
	for i, line := range lines {
		i, line := i, line
		p.Go(func() {
			results[i] = tokenizeOne(tok, line, withPieces, withOffsets, 0)
		})
	}
	p.Wait()

	bw := bufio.NewWriter(w)
	defer bw.Flush()
	for _, res := range results {
		if format == "json" {
			if err := json.NewEncoder(bw).Encode(res); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintln(bw, formatPlain(res)); err != nil {
			return err
		}
	}
	return nil
}

func formatPlain(out tokenizeOutput) string {
	fields := make([]string, 0, len(out.IDs))
	for i, id := range out.IDs {
		field := strconv.Itoa(id)
		if out.Pieces != nil {
			field = out.Pieces[i] + ":" + field
		}
		if out.Starts != nil {
			field += fmt.Sprintf("@%d-%d", out.Starts[i], out.Ends[i])
		}
		fields = append(fields, field)
	}
	return strings.Join(fields, " ")
}
