package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type modelInfo struct {
	SuffixIndicator       string `json:"suffix_indicator"`
	UnkToken              string `json:"unk_token"`
	UnkTokenID            int    `json:"unk_token_id"`
	MaxBytesPerToken      int    `json:"max_bytes_per_token"`
	EndToEnd              bool   `json:"end_to_end"`
	SupportDetokenization bool   `json:"support_detokenization"`
	VocabSize             int    `json:"vocab_size"`
	TrieStates            int    `json:"trie_states"`
	FailurePopsPool       int    `json:"failure_pops_pool"`
}

func newInfoCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Inspect a compiled tokenizer model",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			mdl, err := loadModel(cfg.Paths.ModelPath)
			if err != nil {
				return err
			}

			info := modelInfo{
				SuffixIndicator:       mdl.SuffixIndicator,
				UnkToken:              mdl.UnkToken,
				UnkTokenID:            mdl.UnkTokenID,
				MaxBytesPerToken:      mdl.MaxBytesPerToken,
				EndToEnd:              mdl.EndToEnd,
				SupportDetokenization: mdl.SupportDetokenization,
				VocabSize:             len(mdl.Vocab),
				TrieStates:            mdl.Trie.Size(),
				FailurePopsPool:       len(mdl.FailurePopsPool),
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(info)
			}

			fmt.Printf("suffix indicator:       %q\n", info.SuffixIndicator)
			fmt.Printf("unknown token:          %q (id %d)\n", info.UnkToken, info.UnkTokenID)
			fmt.Printf("max bytes per token:    %d\n", info.MaxBytesPerToken)
			fmt.Printf("end to end:             %v\n", info.EndToEnd)
			fmt.Printf("detokenization:         %v\n", info.SupportDetokenization)
			fmt.Printf("vocabulary size:        %d\n", info.VocabSize)
			fmt.Printf("trie states:            %d\n", info.TrieStates)
			fmt.Printf("failure pops pool:      %d\n", info.FailurePopsPool)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")

	return cmd
}
