package alerting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink appends alert lines to a file.
// The file is opened for every alert, so external log rotation is picked up.
type FileSink struct {
	path string
	lock sync.Mutex
}

// NewFileSink returns a sink appending to the file at path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Name implements Sink.
func (fs *FileSink) Name() string {
	return "file"
}

// Path returns the path of the log file.
func (fs *FileSink) Path() string {
	return fs.path
}

// Send appends the alert line to the file, creating it and its directory if
// needed.
func (fs *FileSink) Send(_ context.Context, alert Alert) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if dir := filepath.Dir(fs.path); dir != "." {
		if err := os.MkdirAll(dir, 0o0755); err != nil { //nolint:gosec
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o0644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("failed to open log file %q: %w", fs.path, err)
	}

	_, err = fmt.Fprintln(f, alert.Line())
	closeErr := f.Close()
	switch {
	case err != nil:
		return fmt.Errorf("failed to write to log file %q: %w", fs.path, err)
	case closeErr != nil:
		return fmt.Errorf("failed to close log file %q: %w", fs.path, closeErr)
	}
	return nil
}

// Close implements Sink.
func (fs *FileSink) Close() error {
	return nil
}
