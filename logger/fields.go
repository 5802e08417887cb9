package logger

import (
	"log/slog"
	"time"
)

// Field helpers for structured logging
var (
	Duration = func(key string, d time.Duration) slog.Attr {
		return slog.String(key, d.String())
	}

	ErrorField = func(err error) slog.Attr {
		if err == nil {
			return slog.String("error", "<nil>")
		}
		return slog.String("error", err.Error())
	}

	Component = func(name string) slog.Attr {
		return slog.String("component", name)
	}

	LeaseID = func(id string) slog.Attr {
		return slog.String("lease_id", id)
	}
)
