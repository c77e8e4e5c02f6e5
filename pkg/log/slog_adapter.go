package log

import "log/slog"

// SlogAdapter bridges Events to a standard library slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates an adapter. Pass nil to use slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Log emits the event at a level derived from its category.
func (a *SlogAdapter) Log(event Event) {
	attrs := []any{
		slog.String("category", event.Category.String()),
	}
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn", event.ConnectionID))
	}
	if event.Frame != nil {
		attrs = append(attrs,
			slog.String("dir", event.Direction.String()),
			slog.Int("size", event.Frame.Size),
			slog.Any("relay_mask", event.Frame.RelayMask),
			slog.Bool("forced", event.Frame.Forced),
		)
	}
	if event.Command != nil {
		attrs = append(attrs,
			slog.String("type", event.Command.Type),
			slog.String("relay", event.Command.RelayID),
			slog.Bool("accepted", event.Command.Accepted),
		)
	}
	if event.Fault != nil {
		attrs = append(attrs,
			slog.String("kind", event.Fault.Kind),
			slog.Bool("tripped", event.Fault.Tripped),
		)
		if event.Fault.SuspectRelay >= 0 {
			attrs = append(attrs, slog.Int("suspect", event.Fault.SuspectRelay))
		}
	}
	if event.State != nil {
		attrs = append(attrs,
			slog.String("from", event.State.From),
			slog.String("to", event.State.To),
		)
	}
	if event.Error != nil {
		attrs = append(attrs, slog.String("err", event.Error.Err))
	}

	switch event.Category {
	case CategoryError:
		a.logger.Error(event.Message, attrs...)
	case CategoryFault:
		a.logger.Warn(event.Message, attrs...)
	default:
		a.logger.Info(event.Message, attrs...)
	}
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
