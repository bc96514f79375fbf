package control

import "log/slog"

// Injector replays actions on the local machine. Implementations are
// best effort and return false when an action could not be performed.
type Injector interface {
	PerformControlAction(Action) bool
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(Action) bool

func (f InjectorFunc) PerformControlAction(a Action) bool {
	return f(a)
}

// LogInjector records actions instead of performing them.
type LogInjector struct {
	Logger *slog.Logger
}

func (l LogInjector) PerformControlAction(a Action) bool {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Control action", "action", a.String())
	return true
}
