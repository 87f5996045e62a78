// Application wiring for CLI commands.
//
// Information Hiding:
// - Provider, store backend and persona catalog construction hidden
// - Settings overrides from command-line flags applied in one place
// - Backend resources released by Close

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/richinex/companion/chat"
	"github.com/richinex/companion/config"
	"github.com/richinex/companion/llm"
	"github.com/richinex/companion/persona"
	"github.com/richinex/companion/storage"
)

// ErrReported marks a failure already shown to the user.
var ErrReported = errors.New("error already reported")

// Options holds CLI execution options.
type Options struct {
	Provider  string
	Model     string
	Persona   string
	Store     string
	StorePath string
	Verbose   bool
	JSON      bool
}

// App is a wired orchestrator with one session and its terminal streams.
type App struct {
	Orchestrator *chat.Orchestrator
	Session      *chat.Session
	Logger       *slog.Logger

	In      io.Reader
	Out     io.Writer
	Err     io.Writer
	JSON    bool
	Verbose bool
	closers []func() error
}

// Setup builds an App from environment settings and flag overrides.
func Setup(ctx context.Context, opts Options) (*App, error) {
	settings, err := config.New()
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(&settings, opts); err != nil {
		return nil, err
	}

	logger := settings.Log.NewLogger(os.Stderr)
	app := &App{
		Logger:  logger,
		In:      os.Stdin,
		Out:     os.Stdout,
		Err:     os.Stderr,
		JSON:    opts.JSON,
		Verbose: opts.Verbose,
	}

	catalog, err := loadCatalog(settings.Persona)
	if err != nil {
		return nil, err
	}

	models, err := llm.NewModelRegistry(settings.LLM.Models)
	if err != nil {
		return nil, err
	}

	provider, err := createProvider(settings.LLM, models.Current())
	if err != nil {
		return nil, err
	}

	persister, err := app.openPersister(settings.Store)
	if err != nil {
		return nil, err
	}
	store := storage.Open(ctx, persister,
		storage.WithLogger(logger),
		storage.WithBackend(settings.Store.Backend),
	)

	orch, err := chat.New(llm.NewClient(provider, settings.LLM.Timeout), catalog, models, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Orchestrator = orch
	app.Session = orch.NewSession(store)

	if opts.Model != "" {
		if err := orch.SetModel(app.Session, opts.Model); err != nil {
			app.Close()
			return nil, fmt.Errorf("model %q: %w", opts.Model, err)
		}
	}
	if opts.Persona != "" {
		if err := orch.SetPersona(app.Session, opts.Persona); err != nil {
			app.Close()
			return nil, fmt.Errorf("persona %q: %w", opts.Persona, err)
		}
	}

	logger.Debug("companion ready",
		"provider", provider.Name(),
		"model", app.Session.Models.Current(),
		"persona", app.Session.Personas.Current(),
		"store", settings.Store.Backend)
	return app, nil
}

// Run sets up an App, runs fn against it and releases it.
func Run(ctx context.Context, opts Options, fn func(context.Context, *App) error) error {
	app, err := Setup(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := fn(ctx, app); err != nil {
		app.printError(err)
		return ErrReported
	}
	return nil
}

// NewApp wraps an existing orchestrator and session, mainly for tests.
func NewApp(orch *chat.Orchestrator, session *chat.Session, in io.Reader, out, errOut io.Writer) *App {
	return &App{
		Orchestrator: orch,
		Session:      session,
		Logger:       slog.Default(),
		In:           in,
		Out:          out,
		Err:          errOut,
	}
}

// Close releases backend resources.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func applyOverrides(settings *config.Settings, opts Options) error {
	if opts.Verbose {
		settings.Log.Level = slog.LevelDebug
	}
	if opts.Provider != "" {
		p, err := llm.ParseProviderType(opts.Provider)
		if err != nil {
			return fmt.Errorf("%w (supported: %s)", err, strings.Join(config.SupportedProviders(), ", "))
		}
		if p != settings.LLM.Provider {
			settings.LLM.Provider = p
			settings.LLM.Models = config.ModelsFor(p)
		}
	}
	if opts.Store != "" {
		switch opts.Store {
		case config.StoreFile, config.StoreSqlite:
		default:
			return fmt.Errorf("unknown store backend %q (want %s or %s)", opts.Store, config.StoreFile, config.StoreSqlite)
		}
		if opts.Store != settings.Store.Backend && opts.StorePath == "" && os.Getenv("COMPANION_STORE_PATH") == "" {
			settings.Store.Path = config.DefaultStorePath(opts.Store)
		}
		settings.Store.Backend = opts.Store
	}
	if opts.StorePath != "" {
		settings.Store.Path = opts.StorePath
	}
	return nil
}

func loadCatalog(cfg config.PersonaConfig) (*persona.Catalog, error) {
	if cfg.File != "" {
		return persona.LoadCatalogFile(cfg.File, cfg.Default)
	}
	return persona.NewCatalog(persona.BuiltinPersonas(), cfg.Default)
}

// createProvider creates an LLM provider from settings.
func createProvider(cfg config.LLMConfig, model string) (llm.Provider, error) {
	builder := llm.NewProviderBuilder(cfg.Provider).
		Model(model).
		MaxTokens(cfg.MaxTokens).
		Temperature(float32(cfg.Temperature)).
		BaseURL(cfg.BaseURL)

	if cfg.Provider == llm.ProviderOpenRouter {
		builder = builder.
			Header("HTTP-Referer", cfg.Referer).
			Header("X-Title", cfg.Title)
	}

	provider, err := builder.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	return provider, nil
}

func (a *App) openPersister(cfg config.StoreConfig) (storage.Persister, error) {
	switch cfg.Backend {
	case config.StoreSqlite:
		db, err := storage.OpenSqlite(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return db, nil
	default:
		fp := storage.NewFilePersister(cfg.Path)
		a.Logger.Debug("using file store", "path", fp.Path())
		return fp, nil
	}
}
