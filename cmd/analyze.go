package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/csvchat/internal/prompt"
	"github.com/KaramelBytes/csvchat/internal/table"
	"github.com/KaramelBytes/csvchat/internal/utils"
	"github.com/spf13/cobra"
)

var (
	anaPrompt     bool
	anaHeadRows   int
	anaOutputPath string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.csv> [more.csv...]",
	Short: "Profile CSV files and show the prompt the assistant would get",
	Example: `  csvchat analyze sales.csv
  csvchat analyze sales.csv costs.csv --prompt
  csvchat analyze sales.csv -o sales.summary.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := loadTables(cmd.ErrOrStderr(), args)
		if err != nil {
			return err
		}

		var b strings.Builder
		if anaPrompt {
			b.WriteString(prompt.System(set))
			b.WriteString("\n")
		} else {
			for i, t := range set.Tables() {
				if i > 0 {
					b.WriteString("\n")
				}
				b.WriteString(table.Profile(t).Markdown())
				if anaHeadRows > 0 {
					b.WriteString("\n```\n")
					b.WriteString(t.Head(anaHeadRows))
					b.WriteString("\n```\n")
				}
			}
		}

		if anaOutputPath != "" {
			if err := utils.SafeWriteFile(anaOutputPath, []byte(b.String()), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote analysis to %s\n", anaOutputPath)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), b.String())
		return nil
	},
}

// loadTables ingests local files the way the web upload does. Per-file
// failures are reported as warnings; it fails only when nothing loaded.
func loadTables(warn io.Writer, paths []string) (*table.Set, error) {
	uploads := make([]table.Upload, 0, len(paths))
	for _, p := range paths {
		path := p
		uploads = append(uploads, table.Upload{
			Name: filepath.Base(path),
			Open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}
	set, errs := table.Ingest(uploads)
	for _, e := range errs {
		fmt.Fprintf(warn, "⚠ %v\n", e)
	}
	if set.Len() == 0 && len(paths) > 0 {
		return nil, fmt.Errorf("no CSV files could be loaded")
	}
	return set, nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&anaPrompt, "prompt", false, "print the synthesized system prompt instead of the column profile")
	analyzeCmd.Flags().IntVar(&anaHeadRows, "head", 0, "also print the first N rows of each table")
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the output (Markdown)")
}
