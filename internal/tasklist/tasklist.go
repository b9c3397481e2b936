// Package tasklist implements component J: a pull-iterator over a
// task file of (uri, fname) pairs.
package tasklist

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/relaypull/fetchd/internal/types"
)

// List is a pull-iterator over the parsed task file. It is not
// goroutine-safe; the orchestrator is its only caller and serializes
// its Next calls under its own mutex.
type List struct {
	scanner    *bufio.Scanner
	outputPath string
}

// Open reads a task file from r, UTF-8 text with one task
// per line: `<uri> <local-filename>`, extra tokens ignored, blank or
// malformed lines skipped. outputPath is prepended to every filename.
func Open(r io.Reader, outputPath string) *List {
	return &List{scanner: bufio.NewScanner(r), outputPath: outputPath}
}

// Next returns the next valid task, or ok=false once the file is
// exhausted.
func (l *List) Next() (types.Task, bool) {
	for l.scanner.Scan() {
		fields := strings.Fields(l.scanner.Text())
		if len(fields) < 2 {
			continue
		}
		uri, fname := fields[0], fields[1]
		return types.Task{
			URI:      uri,
			Filename: filepath.Join(l.outputPath, fname),
		}, true
	}
	return types.Task{}, false
}

// Err returns any error encountered while scanning (other than EOF).
func (l *List) Err() error {
	if err := l.scanner.Err(); err != nil {
		return fmt.Errorf("tasklist: %w", err)
	}
	return nil
}
