// Package fslog is fetchd's ambient debug logger: a lazily-opened,
// dated log file under the state directory, written to from every
// component.
package fslog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/relaypull/fetchd/internal/config"
)

var (
	once    sync.Once
	file    *os.File
	fileErr error
	mu      sync.Mutex
)

func open() {
	if err := config.EnsureDirs(); err != nil {
		fileErr = err
		return
	}
	name := fmt.Sprintf("debug-%s.log", time.Now().Format("2006-01-02"))
	path := filepath.Join(config.GetLogsDir(), name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fileErr = err
		return
	}
	file = f
}

// Debug appends a timestamped, formatted line to the daily debug log.
// Failures to open the log are swallowed; logging must never be able
// to take a download down.
func Debug(format string, args ...any) {
	once.Do(open)
	if fileErr != nil || file == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format(time.RFC3339Nano), fmt.Sprintf(format, args...))
	_, _ = file.WriteString(line)
}
