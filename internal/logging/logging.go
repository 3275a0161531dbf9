package logging

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// LogFilePath builds a per-session log file path using OS-appropriate path separators.
func LogFilePath(logsDir, serviceName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", serviceName, sessionStart.Format("20060102_150405")),
	)
}

// SceneAttrs returns a ContextProvider reporting the current role and scene
// readiness. The getters are called on every record and must not block.
func SceneAttrs(role func() string, ready func() bool) ContextProvider {
	return func() []slog.Attr {
		return []slog.Attr{
			slog.String("role", role()),
			slog.Bool("sceneReady", ready()),
		}
	}
}
