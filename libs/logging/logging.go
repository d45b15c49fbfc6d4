package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the shared JSON logger with the service identity attached.
func NewLogger(level string, serviceName string, env string) *slog.Logger {
	lvl := parseLevel(level)
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(h)
	return logger.With(
		slog.String("service", serviceName),
		slog.String("env", env),
	)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedactCustomerID keeps enough of a customer id to correlate log lines
// without writing the full identifier.
func RedactCustomerID(customerID string) string {
	if len(customerID) <= 4 {
		return "***"
	}
	return customerID[:4] + "***"
}
