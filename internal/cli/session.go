package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/sourcechain/internal/cas"
	"github.com/roach88/sourcechain/internal/chain"
	"github.com/roach88/sourcechain/internal/config"
	"github.com/roach88/sourcechain/internal/engine"
)

// session is one CLI invocation's view of a chain: backend, actors,
// chain and, when a command dispatches actions, a running engine.
type session struct {
	cfg       config.Config
	backend   cas.Backend
	store     *cas.Actor
	head      *chain.HeadActor
	chain     *chain.SourceChain
	chainOpts []chain.Option

	engine    *engine.Engine
	engineCtx context.CancelFunc
}

// openBackend opens the configured CAS backend.
func openBackend(cfg config.StoreConfig) (cas.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return cas.NewMemoryBackend(), nil
	case config.BackendSQLite:
		return cas.OpenSQLite(cfg.Path)
	case config.BackendBadger:
		return cas.OpenBadger(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// chainOptions builds the chain options for cfg. Headers are signed only
// when a seed is configured.
func chainOptions(cfg config.Config) ([]chain.Option, error) {
	if cfg.Chain.SignerSeed == "" {
		return nil, nil
	}
	signer, err := chain.NewEd25519SignerFromSeed(cfg.Chain.SignerSeed)
	if err != nil {
		return nil, err
	}
	return []chain.Option{chain.WithSigner(signer)}, nil
}

func openSession(ctx context.Context, cfg config.Config) (*session, error) {
	opts, err := chainOptions(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig, "invalid signer seed", err)
	}

	backend, err := openBackend(cfg.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeStoreOpen, "failed to open store", err)
	}

	// Memory backends keep their head in the head actor only.
	var heads cas.HeadStore
	if hs, ok := backend.(cas.HeadStore); ok {
		heads = hs
	}

	store := cas.Start(backend)
	head, err := chain.NewHeadActor(ctx, heads, cfg.Chain.Name)
	if err != nil {
		store.Stop()
		_ = backend.Close()
		return nil, WrapExitError(ExitCommandError, ErrCodeStoreOpen, "failed to load chain head", err)
	}

	slog.Debug("session opened", "backend", backend.Name(), "chain", cfg.Chain.Name)
	return &session{
		cfg:       cfg,
		backend:   backend,
		store:     store,
		head:      head,
		chain:     chain.New(store, head, opts...),
		chainOpts: opts,
	}, nil
}

// dispatcher starts the engine on first use and returns it.
func (s *session) dispatcher() *engine.Engine {
	if s.engine != nil {
		return s.engine
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.engine = engine.New(s.chain,
		engine.WithDispatchTimeout(s.cfg.DispatchTimeout()),
		engine.WithMaxInFlight(s.cfg.Dispatch.MaxInFlight),
	)
	s.engineCtx = cancel
	go func() {
		if err := s.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("engine exited", "error", err)
		}
	}()
	return s.engine
}

// Close stops the engine and the actors, then closes the backend.
func (s *session) Close() error {
	if s.engine != nil {
		s.engine.Stop()
		<-s.engine.Done()
		s.engineCtx()
	}
	s.head.Stop()
	s.store.Stop()
	return s.backend.Close()
}

// withSession opens a session for the duration of fn.
func withSession(ctx context.Context, opts *RootOptions, fn func(*session) error) (err error) {
	s, err := openSession(ctx, opts.Config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = WrapExitError(ExitCommandError, ErrCodeStoreOpen, "failed to close store", cerr)
		}
	}()
	return fn(s)
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// chainError maps a chain failure to an ExitError.
func chainError(message string, err error) error {
	switch {
	case chain.IsConsistencyError(err):
		return WrapExitError(ExitFailure, ErrCodeConsistency, message, err)
	case errors.Is(err, cas.ErrStoreUnavailable), errors.Is(err, chain.ErrHeadUnavailable):
		return WrapExitError(ExitCommandError, ErrCodeStoreOpen, message, err)
	default:
		return WrapExitError(ExitFailure, ErrCodeGeneric, message, err)
	}
}

// dispatchError maps a bridge failure to an ExitError.
func dispatchError(message string, err error) error {
	if errors.Is(err, engine.ErrInvalidAction) {
		return WrapExitError(ExitCommandError, ErrCodeAction, message, err)
	}
	return WrapExitError(ExitFailure, ErrCodeDispatch, message, err)
}
