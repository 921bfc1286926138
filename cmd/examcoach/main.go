package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/examcoach/internal/handler"
	appI18n "github.com/pavelanni/examcoach/internal/i18n"
	"github.com/pavelanni/examcoach/internal/marker"
	"github.com/pavelanni/examcoach/internal/model"
	"github.com/pavelanni/examcoach/internal/paper"
	"github.com/pavelanni/examcoach/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examcoach",
		Short: "Exam simulation coach with automatic marking",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), markCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examcoach --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examcoach.db", "SQLite database for attempt history (empty disables history)")
	f.StringP("lang", "l", "en", "Default feedback language (en, ru)")
	f.StringSlice("cors-origins", nil, "Allowed browser origins (repeatable)")
	addLogFlags(cmd)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print the exam paper as JSON",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.Bool("with-keys", false, "Include answer keys and marking data (for mark_bundle clients)")
	f.String("board", "", "Examination board")
	f.String("level", "", "Qualification level")
	f.String("subject", "", "Exam subject")
	f.StringSlice("topics", nil, "Topics to cover (repeatable)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func markCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Mark answers against the exam paper and print the result as JSON",
		RunE:  runMark,
	}
	f := cmd.Flags()
	f.String("answers", "-", "JSON file with answers keyed by question id (- for stdin)")
	f.StringP("lang", "l", "en", "Feedback language (en, ru)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the attempt history as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examcoach.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMCOACH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examcoach")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examcoach")
	v.AddConfigPath("/etc/examcoach")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := model.ServerConfig{
		Lang:        lang,
		CORSOrigins: v.GetStringSlice("cors-origins"),
	}

	// Attempt history is optional; a nil History keeps the handler stateless.
	var history handler.History
	if dbPath := v.GetString("db"); dbPath != "" {
		db, err := store.New(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		changed, err := db.CheckPaper(paper.Generate(model.PaperRequest{}))
		if err != nil {
			return fmt.Errorf("check paper: %w", err)
		}
		if changed {
			slog.Warn("exam paper changed since the last run; earlier attempts were marked against a different paper",
				"db", dbPath)
		}
		history = db
		cfg.History = true
	}

	h, err := handler.New(history, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"languages", appI18n.Languages(),
		"history", cfg.History,
		"db", v.GetString("db"),
		"cors_origins", cfg.CORSOrigins,
	)
	return http.ListenAndServe(addr, h.Router())
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	p := paper.Generate(model.PaperRequest{
		Board:   v.GetString("board"),
		Level:   v.GetString("level"),
		Subject: v.GetString("subject"),
		Topics:  v.GetStringSlice("topics"),
	})

	var out any = map[string]any{"questions": paper.Views(p)}
	if v.GetBool("with-keys") {
		out = map[string]any{"questions": p}
	}
	return writeOutput(v.GetString("output"), out)
}

func runMark(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	data, err := readInput(v.GetString("answers"))
	if err != nil {
		return fmt.Errorf("read answers: %w", err)
	}
	answers, err := parseAnswers(data)
	if err != nil {
		return fmt.Errorf("parse answers: %w", err)
	}

	res, err := marker.Mark(paper.Generate(model.PaperRequest{}), answers)
	if err != nil {
		return fmt.Errorf("mark paper: %w", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang))
	appI18n.LocalizeResult(ctx, &res)

	slog.Info("marked paper", "awarded", res.TotalAwarded, "max", res.TotalMax)
	return writeOutput(v.GetString("output"), res)
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportHistory()
	if err != nil {
		return fmt.Errorf("export history: %w", err)
	}
	slog.Info("exported attempts", "count", export.NumAttempts)
	return writeOutput(v.GetString("output"), export)
}

// parseAnswers accepts either a bare answers object or a mark request
// wrapping one under "answers".
func parseAnswers(data []byte) (model.Submission, error) {
	var req model.MarkRequest
	if err := json.Unmarshal(data, &req); err == nil && req.Answers != nil {
		return req.Answers, nil
	}
	var answers model.Submission
	if err := json.Unmarshal(data, &answers); err != nil {
		return nil, err
	}
	if answers == nil {
		return nil, errors.New("answers must be a JSON object")
	}
	return answers, nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if path == "" || path == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
