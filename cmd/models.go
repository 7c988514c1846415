package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/KaramelBytes/csvchat/internal/ai"
	cfgpkg "github.com/KaramelBytes/csvchat/internal/config"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the supported Groq models and their pricing",
	Example: `  csvchat models
  csvchat models --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		models := ai.SupportedModels()
		out := cmd.OutOrStdout()
		if modelsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(models)
		}

		def := cfgpkg.DefaultModel
		if cfg != nil {
			def = cfg.DefaultModel
		}
		nameW := len("MODEL")
		for _, m := range models {
			nameW = max(nameW, runewidth.StringWidth(m.Name))
		}
		fmt.Fprintf(out, "  %s  %8s  %10s  %10s\n", runewidth.FillRight("MODEL", nameW), "CONTEXT", "IN $/1K", "OUT $/1K")
		for _, m := range models {
			mark := " "
			if m.Name == def {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %s  %8d  %10.5f  %10.5f\n", mark, runewidth.FillRight(m.Name, nameW), m.ContextTokens, m.InputPerK, m.OutputPerK)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "print the catalog as JSON")
}
