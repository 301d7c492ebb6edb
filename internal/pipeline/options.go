package pipeline

import "github.com/Iron-Ham/botdas/internal/logging"

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for stage progress.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver registers an Observer notified around every stage.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithSessionIDs overrides how per-stage session ids are generated.
// The function is called once per stage for every run.
func WithSessionIDs(fn func(Stage) string) Option {
	return func(o *Orchestrator) {
		o.sessionID = fn
	}
}

// Observer receives stage lifecycle callbacks. Calls happen on the goroutine
// running the pipeline.
type Observer interface {
	StageStarted(stage Stage)
	// StageCompleted is called once per started stage. err is non-nil only
	// when the agent call itself failed.
	StageCompleted(stage Stage, variant Variant, err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnStart    func(stage Stage)
	OnComplete func(stage Stage, variant Variant, err error)
}

// StageStarted implements Observer.
func (f ObserverFuncs) StageStarted(stage Stage) {
	if f.OnStart != nil {
		f.OnStart(stage)
	}
}

// StageCompleted implements Observer.
func (f ObserverFuncs) StageCompleted(stage Stage, variant Variant, err error) {
	if f.OnComplete != nil {
		f.OnComplete(stage, variant, err)
	}
}

type nopObserver struct{}

func (nopObserver) StageStarted(Stage) {}

func (nopObserver) StageCompleted(Stage, Variant, error) {}
