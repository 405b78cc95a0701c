package cmdbase

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeInstance struct {
	startErr   error
	runErr     error
	shutdownOK bool

	stopped  chan struct{}
	shutdown bool
}

func newFakeInstance() *fakeInstance {
	return &fakeInstance{
		stopped:    make(chan struct{}),
		shutdownOK: true,
	}
}

func (fi *fakeInstance) Start() error {
	if fi.startErr == nil {
		close(fi.stopped)
	}
	return fi.startErr
}

func (fi *fakeInstance) Shutdown() bool {
	fi.shutdown = true
	return fi.shutdownOK
}

func (fi *fakeInstance) Stopped() <-chan struct{} { return fi.stopped }

func (fi *fakeInstance) Err() error { return fi.runErr }

func (fi *fakeInstance) ExitCode() int {
	if fi.runErr != nil {
		return 1
	}
	return 0
}

func TestRunService(t *testing.T) {
	t.Parallel()

	clean := newFakeInstance()
	assert.Equal(t, 0, RunService(clean))
	assert.True(t, clean.shutdown)

	failed := newFakeInstance()
	failed.runErr = errors.New("device gone")
	assert.Equal(t, 1, RunService(failed))
	assert.True(t, failed.shutdown)

	noStart := newFakeInstance()
	noStart.startErr = errors.New("no permission")
	assert.Equal(t, 1, RunService(noStart))
	assert.False(t, noStart.shutdown)

	unclean := newFakeInstance()
	unclean.shutdownOK = false
	assert.Equal(t, 1, RunService(unclean))
}

func TestPrintGoroutines(t *testing.T) {
	t.Parallel()

	// Works without a running logger.
	buf := new(bytes.Buffer)
	printGoroutinesTo(buf, "ON REQUEST")
	assert.True(t, strings.HasPrefix(buf.String(), "===== ON REQUEST =====\n"), buf.String())
}
