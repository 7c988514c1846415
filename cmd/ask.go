package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/KaramelBytes/csvchat/internal/ai"
	"github.com/KaramelBytes/csvchat/internal/chat"
	"github.com/KaramelBytes/csvchat/internal/prompt"
	"github.com/KaramelBytes/csvchat/internal/session"
	"github.com/KaramelBytes/csvchat/internal/utils"
	"github.com/spf13/cobra"
)

var (
	askFiles       []string
	askModel       string
	askInteractive bool
	askAPIKey      string
)

// newRuntime builds the remote client for each turn. Tests replace it.
var newRuntime ai.RuntimeFactory = ai.NewRuntime

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask questions about CSV files from the terminal",
	Example: `  csvchat ask --file sales.csv "What is the average total?"
  csvchat ask -f a.csv -f b.csv --model mixtral-8x7b-32768 "Compare the two files"
  csvchat ask -f sales.csv --interactive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" && !askInteractive {
			return fmt.Errorf("a question is required (or use --interactive)")
		}
		if askModel != "" && !ai.IsSupported(askModel) {
			return fmt.Errorf("unsupported model: %s (see 'csvchat models')", askModel)
		}

		out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
		log := newLogger(errOut, c)

		st := session.NewStore(0, c.DefaultModel)
		s := st.Create()
		if len(askFiles) > 0 {
			set, err := loadTables(errOut, askFiles)
			if err != nil {
				return err
			}
			s.ReplaceTables(set)
			fmt.Fprintf(out, "✓ Loaded %d file(s): %s\n", set.Len(), strings.Join(set.Names(), ", "))
		}
		if askModel != "" {
			s.SetModel(askModel)
		}
		if askAPIKey != "" {
			s.SetManualKey(askAPIKey)
		}

		exec := chat.NewExecutor(c, newRuntime, log)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if question != "" {
			runTurn(ctx, out, errOut, exec, s, question)
		}
		if askInteractive {
			return interactiveLoop(ctx, cmd.InOrStdin(), out, errOut, exec, s)
		}
		return nil
	},
}

func interactiveLoop(ctx context.Context, in io.Reader, out, errOut io.Writer, exec *chat.Executor, s *session.Session) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		runTurn(ctx, out, errOut, exec, s, line)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func runTurn(ctx context.Context, out, errOut io.Writer, exec *chat.Executor, s *session.Session, question string) {
	s.Lock()
	if debug {
		tokens := utils.CountMessageTokens(prompt.System(s.Tables()), question)
		fmt.Fprintf(errOut, "DEBUG: model=%s, system+question tokens≈%d\n", s.Model(), tokens)
	}
	res := exec.Turn(ctx, s, question)
	notices := s.DrainNotices()
	s.Unlock()

	for _, n := range notices {
		fmt.Fprintf(errOut, "%s %s\n", noticeMark(n.Level), n.Text)
	}
	fmt.Fprintln(out, res.Reply.Content)

	if res.Status != chat.StatusAnswered {
		return
	}
	if res.Usage.TotalTokens > 0 {
		line := fmt.Sprintf("Tokens: prompt=%d completion=%d (%s)", res.Usage.PromptTokens, res.Usage.CompletionTokens, res.Duration.Round(time.Millisecond))
		if cost, ok := ai.EstimateCostUSD(res.Model, res.Usage.PromptTokens, res.Usage.CompletionTokens); ok {
			line += fmt.Sprintf(", cost≈$%.4f", cost)
		}
		fmt.Fprintln(errOut, line)
	}
	if res.RequestID != "" && debug {
		fmt.Fprintf(errOut, "Request ID: %s\n", res.RequestID)
	}
}

func noticeMark(l session.Level) string {
	switch l {
	case session.LevelError:
		return "✗"
	case session.LevelWarning:
		return "⚠"
	case session.LevelSuccess:
		return "✓"
	default:
		return "•"
	}
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringArrayVarP(&askFiles, "file", "f", nil, "CSV file to load (repeatable)")
	askCmd.Flags().StringVar(&askModel, "model", "", "model to use (see 'csvchat models')")
	askCmd.Flags().BoolVarP(&askInteractive, "interactive", "i", false, "keep asking questions until EOF or 'exit'")
	askCmd.Flags().StringVar(&askAPIKey, "api-key", "", "Groq API key used when GROQ_API_KEY is not set")
}
