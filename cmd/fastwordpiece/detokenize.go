package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newDetokenizeCmd() *cobra.Command {
	var tokens bool

	cmd := &cobra.Command{
		Use:   "detokenize [id...]",
		Short: "Reconstruct text from WordPiece ids",
		RunE: func(_ *cobra.Command, args []string) error {
			tok, err := loadTokenizer()
			if err != nil {
				return err
			}

			ids, err := parseIDs(args, os.Stdin)
			if err != nil {
				return err
			}

			if tokens {
				list, err := tok.DetokenizeToTokens(ids)
				if err != nil {
					return err
				}
				for _, t := range list {
					if _, err := fmt.Fprintln(os.Stdout, t); err != nil {
						return err
					}
				}
				return nil
			}

			text, err := tok.Detokenize(ids)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(os.Stdout, text)
			return err
		},
	}

	cmd.Flags().BoolVar(&tokens, "tokens", false, "Print one reconstructed word per line instead of a joined string")

	return cmd
}

// parseIDs accepts ids as arguments or, when none are given, as whitespace-
// separated integers on stdin.
func parseIDs(args []string, stdin io.Reader) ([]int, error) {
	fields := args
	if len(fields) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		fields = strings.Fields(string(data))
	}

	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q: %w", f, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
