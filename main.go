// chatwarden watches a YouTube live chat, classifies every message against a
// moderation policy with an LLM, and deletes messages / bans authors that
// violate it. Usage:
//
//	chatwarden [flags] <stream url>
//	chatwarden -auth            # one-time OAuth authorization
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chatwarden/classifier"
	"chatwarden/config"
	"chatwarden/db"
	"chatwarden/moderation"
	"chatwarden/modlog"
	"chatwarden/oauth"
	"chatwarden/server"
	"chatwarden/telemetry"
	"chatwarden/youtubeapi"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load() //nolint:errcheck // optional .env
	setupLogging()

	logName := flag.String("logname", "", "transcript file name (default: date-hour scheme)")
	comments := flag.Bool("comments", false, "moderate the video's comment threads instead of its live chat")
	maxComments := flag.Int("max-comments", 100, "comment scan limit in -comments mode, 0 = unlimited")
	dryRun := flag.Bool("dry-run", false, "classify and record but do not delete or ban")
	authorize := flag.Bool("auth", false, "run the OAuth authorization flow and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <stream url>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return 1
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("chatwarden", version)
	if err != nil {
		slog.Warn("tracing init failed, continuing without traces", slog.Any("err", err))
	} else {
		defer shutdownTracing()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the database stores OAuth tokens, so moderation cannot run without it
	database, err := openDatabase(ctx, cfg)
	if err != nil {
		slog.Error("database setup failed", slog.Any("err", err))
		return 1
	}
	defer database.Close() //nolint:errcheck

	yts := youtubeapi.New(cfg, &db.TokenStoreAdapter{DB: database})

	if *authorize {
		if err := runAuthFlow(ctx, yts); err != nil {
			slog.Error("authorization failed", slog.Any("err", err))
			return 1
		}
		slog.Info("authorization complete, tokens stored")
		return 0
	}

	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}
	streamURL := flag.Arg(0)

	if err := cfg.ValidateModerationReady(); err != nil {
		slog.Error("missing configuration", slog.Any("err", err))
		return 1
	}

	policy := loadPolicy(cfg.PolicyFile)

	transcript, err := modlog.Open(cfg.LogDir, *logName)
	if err != nil {
		slog.Error("opening transcript failed", slog.Any("err", err))
		return 1
	}
	defer func() {
		if err := transcript.Close(); err != nil {
			slog.Warn("closing transcript failed", slog.Any("err", err))
		}
	}()
	slog.Info("transcript open", slog.String("path", transcript.Path()))

	refresher := &oauth.Refresher{
		DB:       database,
		Provider: "youtube",
		Refresh:  yts.RefreshToken,
		OnFatal: func(err error) {
			slog.Error("credentials unrecoverable, shutting down", slog.Any("err", err))
			cancel()
		},
	}
	refresher.Start(ctx)

	httpSrv := startHTTPServer(database)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	mod := &moderation.Moderator{
		Feed: youtubeapi.NewFeed(yts),
		Pipeline: &moderation.Pipeline{
			Classifier:  classifier.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, policy),
			BanDuration: cfg.BanDuration,
		},
		Log:      transcript,
		Interval: cfg.PollInterval,
		PageSize: cfg.PageSize,
		DryRun:   *dryRun,
	}
	mod.Recorder = &dbRecorder{db: database}

	if *comments {
		err = mod.RunComments(ctx, streamURL, *maxComments)
	} else {
		err = mod.Run(ctx, streamURL)
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		slog.Info("interrupted, shutting down")
		return 0
	case errors.Is(err, moderation.ErrUnresolvableURL):
		slog.Error("could not extract a video id", slog.String("url", streamURL))
		return 2
	default:
		slog.Error("moderation loop failed", slog.Any("err", err))
		return 1
	}
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadPolicy reads the moderation rules document. A missing file is not
// fatal; the classifier then judges with its generic instructions only.
func loadPolicy(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("policy file not readable, classifying without rules document",
			slog.String("path", path), slog.Any("err", err))
		return ""
	}
	return strings.TrimSpace(string(data))
}

// openDatabase connects and migrates, preferring the embedded versioned
// migrations with the idempotent schema as a fallback.
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := database.PingContext(pingCtx); err != nil {
		database.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to idempotent schema", slog.Any("err", err))
		if err := db.Migrate(ctx, database); err != nil {
			database.Close() //nolint:errcheck
			return nil, fmt.Errorf("schema setup: %w", err)
		}
	}
	return database, nil
}

func startHTTPServer(database *sql.DB) *http.Server {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(database),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", slog.Any("err", err))
		}
	}()
	return srv
}

// runAuthFlow prints the consent URL and exchanges the pasted code.
func runAuthFlow(ctx context.Context, yts *youtubeapi.Service) error {
	state := fmt.Sprintf("cw-%d", time.Now().UnixNano())
	fmt.Printf("Open this URL in a browser and grant access:\n\n  %s\n\nPaste the authorization code: ", yts.AuthCodeURL(state))
	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("empty authorization code")
	}
	return yts.Exchange(ctx, code)
}

// dbRecorder persists moderation decisions to the moderation_actions table.
type dbRecorder struct {
	db *sql.DB
}

func (r *dbRecorder) RecordAction(ctx context.Context, session moderation.StreamSession, d moderation.Decision) error {
	action := d.Action.Kind.String()
	if session.ChatID == "" {
		// comment-thread moderation has no ban surface
		action = "delete"
	}
	return db.RecordAction(ctx, r.db, db.ActionRecord{
		VideoID:         session.VideoID,
		ChatID:          session.ChatID,
		MessageID:       d.Action.MessageID,
		AuthorID:        d.Action.AuthorID,
		AuthorName:      d.Message.AuthorName,
		Message:         d.Message.Text,
		Action:          action,
		Reason:          d.Action.Reason,
		BanDurationSecs: int64(d.Action.BanDuration.Seconds()),
	})
}
