// cmd/velada/main.go is a terminal companion for a velada server: it follows a session live
// and signs access tokens for the event endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/auth"
	"github.com/jason-s-yu/velada/internal/client"
	"github.com/jason-s-yu/velada/internal/config"
	"github.com/jason-s-yu/velada/internal/orchestrator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

const usage = `usage:
  velada watch [-active] [sessionId]   follow a session and log every change
  velada token [-ttl 72h] <subject>    sign an access token for the event endpoint`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf(usage)
	}
	switch args[0] {
	case "watch":
		return runWatch(ctx, args[1:])
	case "token":
		return runToken(args[1:], stdout)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	active := fs.Bool("active", false, "watch the session currently in play")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	logger := config.NewLogger("development", cfg.LogLevel)
	api := client.New(cfg.APIURL, cfg.Token, cfg.RequestTimeout, nil)

	sessionID, err := resolveSession(ctx, api, *active, fs.Args())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o := orchestrator.New(api, orchestrator.RealtimeOpener(cfg.Realtime(), cfg.RealtimeEnabled, logger), orchestrator.Options{
		Logger:   logger,
		OnChange: func(m orchestrator.ReadModel) { logReadModel(logger, m) },
		OnNotFound: func(id uuid.UUID) {
			logger.Errorf("session %s does not exist", id)
			cancel()
		},
	})
	if err := o.Activate(ctx, sessionID); err != nil {
		return err
	}
	defer o.Deactivate()

	<-ctx.Done()
	return nil
}

func resolveSession(ctx context.Context, api *client.Client, active bool, args []string) (uuid.UUID, error) {
	if active {
		s, err := api.GetActiveSession(ctx)
		if err != nil {
			return uuid.Nil, err
		}
		if s == nil {
			return uuid.Nil, fmt.Errorf("no active session")
		}
		return s.ID, nil
	}
	if len(args) != 1 {
		return uuid.Nil, fmt.Errorf("watch needs a session id or -active\n%s", usage)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session id %q: %w", args[0], err)
	}
	return id, nil
}

func logReadModel(logger *logrus.Logger, m orchestrator.ReadModel) {
	fields := logrus.Fields{
		"connection": m.ConnectionStatus,
		"loading":    m.IsLoading,
		"updating":   len(m.Updating),
	}
	if m.Session != nil {
		fields["status"] = m.Session.Status
		fields["tables"] = len(m.Session.Tables)
	}
	entry := logger.WithFields(fields)
	if m.Err != nil {
		entry.Warn(m.Err.Message())
		return
	}
	entry.Info("session changed")
	if m.Session == nil {
		return
	}
	threshold := m.Session.HouseRules.GamesToWin()
	for _, t := range m.Session.Tables {
		logger.WithFields(logrus.Fields{
			"table":    t.Number,
			"round":    t.Round,
			"score":    fmt.Sprintf("%d-%d", t.Pairs[0].Score, t.Pairs[1].Score),
			"games":    fmt.Sprintf("%d-%d", t.Pairs[0].GamesWon, t.Pairs[1].GamesWon),
			"open":     t.OpenHand() >= 0,
			"finished": t.Finished(threshold),
		}).Debug("table")
	}
}

type tokenConfig struct {
	PrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required,notEmpty"`
	PublicKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required,notEmpty"`
	ExpireTime     string `env:"TOKEN_EXPIRE_TIME" envDefault:"72h"`
}

func runToken(args []string, stdout io.Writer) error {
	var cfg tokenConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	ttlFlag := fs.String("ttl", cfg.ExpireTime, `token lifetime, or "never"`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("token needs exactly one subject\n%s", usage)
	}

	ttl, err := auth.ParseExpireTime(*ttlFlag)
	if err != nil {
		return err
	}
	keys, err := auth.LoadKeys(cfg.PrivateKeyPath, cfg.PublicKeyPath, ttl)
	if err != nil {
		return err
	}
	token, err := keys.CreateJWT(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}
