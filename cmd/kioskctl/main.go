package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"vtokiosk/internal/auth"
	"vtokiosk/internal/gateway"
	"vtokiosk/internal/infra"
	"vtokiosk/internal/infra/credentials"
	"vtokiosk/internal/providers/vertex"
	"vtokiosk/internal/sqlinline"
	"vtokiosk/internal/store"
)

var version = "dev"

// SecretStore persists integration secrets in the operator database.
type SecretStore interface {
	SetFalKey(ctx context.Context, key string) error
	SetBridgeURL(ctx context.Context, url string) error
	List(ctx context.Context) ([]credentials.Secret, error)
	Delete(ctx context.Context, provider string) (bool, error)
}

// App holds the collaborators of every command. Tests replace the factories.
type App struct {
	Out io.Writer
	Err io.Writer
	In  io.Reader

	Config       func() (*infra.Config, error)
	OpenStore    func(ctx context.Context, cfg *infra.Config) (store.KV, error)
	OpenSecrets  func(ctx context.Context, cfg *infra.Config) (SecretStore, func(), error)
	NewGenerator func(cfg *infra.Config) (gateway.ContentGenerator, error)
	Session      func(ctx context.Context, cfg *infra.Config) (auth.Session, error)
	Now          func() time.Time
}

func DefaultApp() *App {
	return &App{
		Out:          os.Stdout,
		Err:          os.Stderr,
		In:           os.Stdin,
		Config:       infra.LoadConfig,
		OpenStore:    store.Open,
		OpenSecrets:  openSecrets,
		NewGenerator: newGenerator,
		Session:      googleSession,
		Now:          time.Now,
	}
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(DefaultApp()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kioskctl",
		Short: "Operate a virtual try-on kiosk",
		Long: `kioskctl manages the state a kiosk keeps between sessions: result history,
the usage counter, the grooming prompt override and integration secrets.
It reads the same environment as the kiosk (STORE_DRIVER, STORE_DSN,
DATABASE_URL, OPERATOR_SECRET, VERTEX_*).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)
	cmd.SetIn(app.In)

	cmd.AddCommand(
		newProbeCmd(app),
		newHistoryCmd(app),
		newUsageCmd(app),
		newPromptCmd(app),
		newCredentialsCmd(app),
		newTokenCmd(app),
	)
	return cmd
}

// withStore loads the configuration, opens the kiosk store and hands both
// to fn.
func (a *App) withStore(ctx context.Context, fn func(cfg *infra.Config, kv store.KV) error) error {
	cfg, err := a.Config()
	if err != nil {
		return err
	}
	kv, err := a.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer kv.Close()
	return fn(cfg, kv)
}

func openSecrets(ctx context.Context, cfg *infra.Config) (SecretStore, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	runner := infra.NewSQLRunner(pool, infra.NewLogger(cfg.AppEnv))
	if _, err := runner.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return credentials.NewStore(runner), closePool(pool), nil
}

func closePool(pool *pgxpool.Pool) func() {
	return func() { pool.Close() }
}

func newGenerator(cfg *infra.Config) (gateway.ContentGenerator, error) {
	return vertex.NewClient(vertex.Options{
		Project:   cfg.VertexProject,
		BaseURL:   cfg.VertexBaseURL,
		BridgeURL: cfg.BridgeURL,
	})
}

func googleSession(ctx context.Context, cfg *infra.Config) (auth.Session, error) {
	if !cfg.GoogleUseADC {
		return auth.Static(cfg.GoogleAccessToken), nil
	}
	return auth.New(auth.ADC()).Refresh(ctx)
}
