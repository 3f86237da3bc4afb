package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/certprep/internal/auth"
	"github.com/pavelanni/certprep/internal/handler"
	appI18n "github.com/pavelanni/certprep/internal/i18n"
	"github.com/pavelanni/certprep/internal/llm"
	"github.com/pavelanni/certprep/internal/llm/prompts"
	"github.com/pavelanni/certprep/internal/model"
	"github.com/pavelanni/certprep/internal/quiz"
	"github.com/pavelanni/certprep/internal/session"
	"github.com/pavelanni/certprep/internal/store"
)

func main() {
	// A missing .env is fine; flags and the real environment still apply.
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "certprep",
		Short: "AWS Solutions Architect Associate practice exams",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), explainCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func dbFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db", "certprep.db", "SQLite path or PostgreSQL DSN")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func llmFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty for api.openai.com)")
	f.String("llm-key", "", "API key for LLM (empty disables explanations)")
	f.String("llm-model", llm.DefaultModel, "LLM model name")
	f.String("prompt-lang", string(prompts.LangKorean), "Explanation language (en, ko)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP quiz server",
		RunE:  runServe,
	}
	dbFlags(cmd)
	llmFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSliceP("questions", "q", nil, "Paths to question JSON files (repeatable)")
	f.StringP("lang", "l", "en", "Default UI language (en, ko)")
	f.Int("exam-questions", 65, "Questions per exam")
	f.Duration("exam-duration", session.DefaultExamDuration, "Exam time limit")
	f.Duration("tick", time.Second, "Wall-clock length of one countdown second; other values scale exam time (testing only)")
	f.Int("practice-questions", 10, "Default practice size")
	f.String("jwt-secret", "", "Secret for signing auth tokens (or set CERTPREP_JWT_SECRET)")
	f.Bool("secure-cookies", true, "Set Secure flag on auth cookies")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (repeatable)")
	f.String("admin-password", "", "Initial admin password (or set CERTPREP_ADMIN_PASSWORD)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export study session results as JSON",
		RunE:  runExport,
	}
	dbFlags(cmd)
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func explainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Generate missing explanations for every question",
		RunE:  runExplain,
	}
	dbFlags(cmd)
	llmFlags(cmd)
	cmd.Flags().IntP("concurrency", "c", 4, "Parallel LLM requests")
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

	v.SetEnvPrefix("CERTPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("certprep")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/certprep")
	v.AddConfigPath("/etc/certprep")
	v.AddConfigPath("/data")
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

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	db, err := store.New(store.Driver(v.GetString("db-driver")), v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", db.Driver(), err)
	}
	slog.Debug("database ready", "driver", db.Driver())
	return db, nil
}

func newLLM(v *viper.Viper) *llm.Client {
	return llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		prompts.Lang(v.GetString("prompt-lang")),
	)
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := openStore(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := loadQuestions(ctx, db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient := newLLM(v)
	var explainer quiz.Explainer
	if llmClient.Enabled() {
		if err := llmClient.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", llmClient.Model())
		explainer = llmClient
	} else {
		slog.Warn("no LLM key configured, explanations disabled")
	}

	examCfg := model.ExamConfig{
		ExamQuestions:     v.GetInt("exam-questions"),
		ExamDuration:      v.GetDuration("exam-duration"),
		TickInterval:      v.GetDuration("tick"),
		PracticeQuestions: v.GetInt("practice-questions"),
		SecureCookies:     v.GetBool("secure-cookies"),
	}
	if examCfg.TickInterval != time.Second {
		slog.Warn("exam clock is scaled; exams will not last their nominal duration",
			"tick", examCfg.TickInterval, "exam_duration", examCfg.ExamDuration)
	}
	svc := quiz.New(db, explainer, examCfg)
	defer svc.Shutdown()

	secret := v.GetString("jwt-secret")
	if secret == "" {
		secret = rand.Text()
		slog.Warn("no jwt-secret configured, using a random one; logins end on restart")
	}
	authn, err := auth.New(secret, db, examCfg.SecureCookies)
	if err != nil {
		return fmt.Errorf("create authenticator: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Warning"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	handler.New(db, svc, authn, svc.Config()).Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"db_driver", db.Driver(),
			"lang", lang,
			"exam_questions", examCfg.ExamQuestions,
			"exam_duration", examCfg.ExamDuration,
			"practice_questions", examCfg.PracticeQuestions,
			"explanations", explainer != nil,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-sigCtx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := openStore(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.ExportResults(cmd.Context())
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	data, err := json.MarshalIndent(model.ResultsExport{
		ExportedAt: time.Now().UTC(),
		Results:    results,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	slog.Info("exported results", "sessions", len(results), "output", outPath)
	return nil
}

func runExplain(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	llmClient := newLLM(v)
	if !llmClient.Enabled() {
		return llm.ErrDisabled
	}

	db, err := openStore(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := quiz.New(db, llmClient, model.ExamConfig{})
	defer svc.Shutdown()

	n, err := svc.WarmExplanations(ctx, v.GetInt("concurrency"))
	if err != nil {
		return fmt.Errorf("generate explanations: %w", err)
	}
	slog.Info("explanations generated", "count", n, "model", llmClient.Model())
	return nil
}

func loadQuestions(ctx context.Context, db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := db.ImportQuestions(ctx, path, data)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		switch res.Skipped {
		case "unchanged":
			slog.Info("questions file unchanged, skipping", "path", path)
		case "changed":
			slog.Warn("questions file changed since last import, skipping to keep recorded attempts consistent",
				"path", path)
		default:
			slog.Info("imported questions", "path", path, "count", res.Imported)
		}
	}

	count, err := db.QuestionCount(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		slog.Warn("question bank is empty; exams and practice cannot start until questions are imported")
	}
	return nil
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return errors.New("admin password is required: set --admin-password flag or CERTPREP_ADMIN_PASSWORD env var")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Username:     "admin",
		Name:         "Administrator",
		PasswordHash: hash,
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
