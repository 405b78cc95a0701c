package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoroutineSummary(t *testing.T) {
	t.Parallel()

	// Park a goroutine in our own code.
	stop := make(chan struct{})
	started := make(chan struct{})
	go func() {
		close(started)
		<-stop
	}()
	<-started
	defer close(stop)
	time.Sleep(10 * time.Millisecond)

	summary, err := GetGoroutineSummary()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, summary.Total, 2)
	assert.NotEmpty(t, summary.Own)
	assert.Contains(t, summary.Format(), "goroutines")
}
