package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath names the log file of a run started at sessionStart.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}
