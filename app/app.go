// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app handles the low level concerns of running a server
// process: config reading, lifecycle hooks, OS signal propagation
// and panic containment. A Runtime stays focused on serving.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/harbornet/harbor/config"
	"github.com/harbornet/harbor/internal/try"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Runtime is the entry point for user specific code. A Runtime does
// not concern itself with OS interrupts or config parsing; App owns
// those and cancels the given context when the process should stop.
type Runtime interface {
	Run(context.Context) error
}

// RuntimeBuilder initializes a Runtime once config is available.
type RuntimeBuilder interface {
	Build(context.Context) (Runtime, error)
}

// RuntimeBuilderFunc is a functional implementation of RuntimeBuilder.
type RuntimeBuilderFunc func(context.Context) (Runtime, error)

// Build implements the RuntimeBuilder interface.
func (f RuntimeBuilderFunc) Build(ctx context.Context) (Runtime, error) {
	return f(ctx)
}

// Lifecycle hooks into fixed points of the App.Run process.
type Lifecycle struct {
	preRunHooks  []func(context.Context) error
	postRunHooks []func(context.Context) error
}

// PreRun registers hooks called after config is read and before any
// Runtime.Run is called.
func (l *Lifecycle) PreRun(hooks ...func(context.Context) error) {
	l.preRunHooks = append(l.preRunHooks, hooks...)
}

// PostRun registers hooks called after every Runtime.Run has
// completed, whether or not it returned an error.
func (l *Lifecycle) PostRun(hooks ...func(context.Context) error) {
	l.postRunHooks = append(l.postRunHooks, hooks...)
}

type contextKey string

var (
	configContextKey    = contextKey("configContextKey")
	lifecycleContextKey = contextKey("lifecycleContextKey")
)

// ConfigFromContext extracts the *config.Manager placed into the
// context by App before builders run.
func ConfigFromContext(ctx context.Context) *config.Manager {
	return ctx.Value(configContextKey).(*config.Manager)
}

// LifecycleFromContext extracts the *Lifecycle placed into the
// context by App before builders run.
func LifecycleFromContext(ctx context.Context) *Lifecycle {
	return ctx.Value(lifecycleContextKey).(*Lifecycle)
}

// Option configures an App.
type Option func(*App)

// Name configures the name of the application.
func Name(name string) Option {
	return func(a *App) {
		a.name = name
	}
}

// WithRuntimeBuilder registers the given RuntimeBuilder with the App.
func WithRuntimeBuilder(rb RuntimeBuilder) Option {
	return func(a *App) {
		a.rbs = append(a.rbs, rb)
	}
}

// WithRuntimeBuilderFunc registers the given function as a RuntimeBuilder.
func WithRuntimeBuilderFunc(f func(context.Context) (Runtime, error)) Option {
	return func(a *App) {
		a.rbs = append(a.rbs, RuntimeBuilderFunc(f))
	}
}

// Config registers a config source with the application. Sources are
// applied in registration order, later sources overriding earlier ones.
func Config(src config.Source) Option {
	return func(a *App) {
		a.cfgSrcs = append(a.cfgSrcs, src)
	}
}

// Hooks registers lifecycle hooks.
func Hooks(fs ...func(*Lifecycle)) Option {
	return func(a *App) {
		for _, f := range fs {
			f(&a.life)
		}
	}
}

// App runs one or more Runtimes. It is responsible for:
//   - reading and merging config sources
//   - calling lifecycle hooks at the appropriate times
//   - propagating OS interrupts via context cancellation
//   - containing panics from runtime code
type App struct {
	name    string
	cfgSrcs []config.Source
	rbs     []RuntimeBuilder
	life    Lifecycle
}

// New returns a fully initialized App.
func New(opts ...Option) *App {
	var name string
	if len(os.Args) > 0 {
		name = os.Args[0]
	}
	a := &App{
		name: name,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes the application, terminating when every Runtime has
// returned or an OS interrupt is received.
func (a *App) Run(args ...string) error {
	cmd := buildCmd(a)
	cmd.SetArgs(args)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancel()

	return cmd.ExecuteContext(ctx)
}

var errNilRuntime = errors.New("app: runtime builder returned nil runtime")

func buildCmd(a *App) *cobra.Command {
	var m *config.Manager

	rs := make([]Runtime, len(a.rbs))

	return &cobra.Command{
		Use:           a.name,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) (err error) {
			defer try.Recover(&err)

			m, err = config.Read(a.cfgSrcs...)
			if err != nil {
				return err
			}
			a.cfgSrcs = nil

			ctx := context.WithValue(cmd.Context(), configContextKey, m)
			ctx = context.WithValue(ctx, lifecycleContextKey, &a.life)

			for i, rb := range a.rbs {
				r, err := rb.Build(ctx)
				if err != nil {
					return err
				}
				if r == nil {
					return errNilRuntime
				}
				rs[i] = r

				a.rbs[i] = nil
			}
			a.rbs = nil

			var errs []error
			for _, f := range a.life.preRunHooks {
				err := f(ctx)
				if err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer try.Recover(&err)

			if len(rs) == 0 {
				return nil
			}
			if len(rs) == 1 {
				return rs[0].Run(cmd.Context())
			}

			g, gctx := errgroup.WithContext(cmd.Context())
			for _, rt := range rs {
				g.Go(func() (e error) {
					defer try.Recover(&e)
					return rt.Run(gctx)
				})
			}
			return g.Wait()
		},
		PostRunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.WithValue(cmd.Context(), configContextKey, m)
			ctx = context.WithValue(ctx, lifecycleContextKey, &a.life)

			var errs []error
			for _, f := range a.life.postRunHooks {
				err := f(ctx)
				if err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}
