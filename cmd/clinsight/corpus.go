package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clinsight/config"
	"clinsight/internal/index"
	"clinsight/models"
	"clinsight/provider"
)

func corpusCMD() *cobra.Command {
	var corpus = &cobra.Command{
		Use:   "corpus",
		Short: "Build and validate the evidence corpus",
	}
	corpus.AddCommand(corpusBuildCMD(), corpusCheckCMD())
	return corpus
}

// corpusBuildCMD embeds a source document file into a loadable corpus. The
// source is a JSON array of documents without embeddings.
func corpusBuildCMD() *cobra.Command {
	var cfgPath, in, out string
	var batch int
	var build = &cobra.Command{
		Use:   "build",
		Short: "Embed source documents into a corpus file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			backend, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}
			var docs []models.EvidenceDocument
			if err := json.Unmarshal(raw, &docs); err != nil {
				return fmt.Errorf("parse source: %w", err)
			}
			if len(docs) < 3 {
				return fmt.Errorf("source has %d documents, need at least 3", len(docs))
			}

			ctx := cmd.Context()
			for start := 0; start < len(docs); start += batch {
				end := start + batch
				if end > len(docs) {
					end = len(docs)
				}
				texts := make([]string, 0, end-start)
				for _, d := range docs[start:end] {
					texts = append(texts, d.Title+"\n"+d.Snippet)
				}
				vecs, err := backend.CreateEmbedding(ctx, texts)
				if err != nil {
					return fmt.Errorf("embed batch at %d: %w", start, err)
				}
				if len(vecs) != len(texts) {
					return fmt.Errorf("embedding backend returned %d vectors for %d texts", len(vecs), len(texts))
				}
				for i := range vecs {
					docs[start+i].Embedding = vecs[i]
				}
				fmt.Printf("embedded %d/%d\n", end, len(docs))
			}

			encoded, err := json.MarshalIndent(docs, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, encoded, 0o644); err != nil {
				return fmt.Errorf("write corpus: %w", err)
			}
			fmt.Printf("wrote %d documents to %s\n", len(docs), out)
			return nil
		},
	}
	build.Flags().StringVar(&in, "in", "corpus/source.json", "source document file")
	build.Flags().StringVar(&out, "out", "corpus/corpus.json", "output corpus file")
	build.Flags().IntVar(&batch, "batch", 64, "embedding batch size")
	build.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return build
}

// corpusCheckCMD loads the corpus exactly as serve would and reports on it.
func corpusCheckCMD() *cobra.Command {
	var cfgPath string
	var check = &cobra.Command{
		Use:   "check",
		Short: "Validate the corpus file serve would load",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ix, err := index.Load(cfg.Corpus.Path, cfg.Corpus.Dimensions, 3)
			if err != nil {
				return err
			}
			fmt.Printf("ok: %d usable documents, %d dimensions\n", ix.Len(), ix.Dimensions())
			return nil
		},
	}
	check.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return check
}
