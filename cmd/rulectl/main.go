// Package main is the offline rule tool for filesentry: it inspects
// condition text, previews compilations and reads the rules file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/freewebtopdf/filesentry/internal/api"
	"github.com/freewebtopdf/filesentry/internal/compiler"
	"github.com/freewebtopdf/filesentry/internal/config"
	"github.com/freewebtopdf/filesentry/internal/domain"
	"github.com/freewebtopdf/filesentry/internal/intent"
	"github.com/freewebtopdf/filesentry/internal/provider"
	"github.com/freewebtopdf/filesentry/internal/storage"
	"github.com/freewebtopdf/filesentry/internal/validator"
)

// Version is set via ldflags
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	rulesFile string
	format    string

	endpoint string
	model    string
	timeout  time.Duration
	retries  int
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "rulectl",
		Short: "Inspect and preview filesentry rules",
		Long: `rulectl works on filesentry rules without a running daemon.
It shows what a condition literally asks for, previews what the model
compiles it to, and lists or exports the rules file.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&opts.format, "output", "o", "json", "Output format (json, yaml)")

	root.AddCommand(newIntentCmd(opts))
	root.AddCommand(newCompileCmd(opts))
	root.AddCommand(newRulesCmd(opts))
	return root
}

func newIntentCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "intent <condition>",
		Short: "Show the scope a condition literally asks for",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd.OutOrStdout(), opts.format, intent.Extract(strings.Join(args, " ")))
		},
	}
}

// compilePreview mirrors the API preview so output can be compared directly
type compilePreview struct {
	Condition  string                      `json:"condition" yaml:"condition"`
	Intent     domain.RuleIntent           `json:"intent" yaml:"intent"`
	Result     *domain.CompileResult       `json:"result" yaml:"result"`
	Validation *validator.ValidationResult `json:"validation,omitempty" yaml:"validation,omitempty"`
}

func newCompileCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <condition>",
		Short: "Compile a condition with the model without storing it",
		Long: `Sends the condition to the configured Ollama model, aligns the answer
with the condition's wording and validates it. Exits non-zero when the
condition is rejected or the result fails validation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			condition := strings.TrimSpace(strings.Join(args, " "))

			generator := provider.NewOllamaProvider(provider.Config{
				Endpoint: opts.endpoint,
				Model:    opts.model,
				Timeout:  opts.timeout,
			})
			c := compiler.New(generator, compiler.WithRetries(opts.retries))

			preview := compilePreview{
				Condition: condition,
				Intent:    intent.Extract(condition),
				Result:    c.Compile(cmd.Context(), condition),
			}

			if preview.Result.Rule != nil {
				v := validator.NewRuleValidator()
				result := v.ValidateCompiledRule(*preview.Result.Rule).
					Merge(v.ValidateWithIntent(*preview.Result.Rule, condition))
				preview.Validation = &result
			}

			if err := render(cmd.OutOrStdout(), opts.format, preview); err != nil {
				return err
			}

			switch {
			case preview.Result.Reject != nil:
				return fmt.Errorf("condition rejected: %s", preview.Result.Reject.Reason)
			case preview.Validation != nil && !preview.Validation.Valid:
				return fmt.Errorf("compiled rule failed validation with %d error(s)", len(preview.Validation.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.endpoint, "endpoint", envOr("LLM_ENDPOINT", "http://127.0.0.1:11434"), "Ollama endpoint")
	cmd.Flags().StringVar(&opts.model, "model", envOr("LLM_MODEL", "llama3.1"), "Model name")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "Model request timeout")
	cmd.Flags().IntVar(&opts.retries, "retries", 2, "Retries after a failed model call")
	return cmd
}

func newRulesCmd(opts *options) *cobra.Command {
	rules := &cobra.Command{
		Use:   "rules",
		Short: "Read the rules file",
	}
	rules.PersistentFlags().StringVar(&opts.rulesFile, "file", "", "Rules file (default: RULES_FILE or DATA_DIR/rules.json)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadRules(cmd.Context(), opts.rulesFile)
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), loaded)
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Export stored rules as JSON or YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadRules(cmd.Context(), opts.rulesFile)
			if err != nil {
				return err
			}
			doc := api.ExportDocument{Version: 1, ExportedAt: time.Now().UTC(), Rules: loaded}
			return render(cmd.OutOrStdout(), opts.format, doc)
		},
	}

	rules.AddCommand(list, export)
	return rules
}

// loadRules reads the rules file through the store so migrations and
// validation on load apply exactly as they do in the daemon
func loadRules(ctx context.Context, path string) ([]domain.Rule, error) {
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		path = cfg.RulesPath()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	store := storage.NewStore(path)
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	defer func() { _ = store.Close(ctx) }()

	return store.GetAllRules(ctx)
}

func printTable(w io.Writer, rules []domain.Rule) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tENABLED\tMATCHES\tSCOPE")
	for _, r := range rules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%s\n",
			shortID(r.ID), r.Name, r.Type, r.Enabled, r.MatchCount, domain.RuleSignature(r.Compiled()))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q (use json or yaml)", format)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
