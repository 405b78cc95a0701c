package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"

	"github.com/maruel/panicparse/v2/stack"
)

const ownImportPath = "github.com/safing/scanguard"

// GoroutineSummary is a condensed view of the running goroutines.
type GoroutineSummary struct {
	Total   int
	ByState map[string]int
	// Own lists the current line of all goroutines that run scanguard code.
	Own []string
}

// GetGoroutineSummary returns a summary of all running goroutines.
func GetGoroutineSummary() (*GoroutineSummary, error) {
	snapshot, _, err := stack.ScanSnapshot(bytes.NewReader(fullStack()), io.Discard, stack.DefaultOpts())
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("get stack: %w", err)
	}
	if snapshot == nil {
		return nil, errors.New("get stack: no goroutines found")
	}

	summary := &GoroutineSummary{
		Total:   len(snapshot.Goroutines),
		ByState: make(map[string]int),
	}
	for _, gr := range snapshot.Goroutines {
		summary.ByState[gr.State]++

		// Find the innermost call in our own code.
		for _, call := range gr.Stack.Calls {
			if strings.HasPrefix(call.ImportPath, ownImportPath) {
				summary.Own = append(summary.Own, fmt.Sprintf(
					"#%d [%s] %s/%s:%d",
					gr.ID, gr.State, call.ImportPath, call.SrcName, call.Line,
				))
				break
			}
		}
	}
	sort.Strings(summary.Own)

	return summary, nil
}

// Format returns the summary as text.
func (gs *GoroutineSummary) Format() string {
	builder := new(strings.Builder)
	fmt.Fprintf(builder, "%d goroutines\n", gs.Total)

	states := make([]string, 0, len(gs.ByState))
	for state := range gs.ByState {
		states = append(states, state)
	}
	sort.Strings(states)
	for _, state := range states {
		fmt.Fprintf(builder, "  %s: %d\n", state, gs.ByState[state])
	}

	for _, line := range gs.Own {
		fmt.Fprintf(builder, "%s\n", line)
	}
	return builder.String()
}

func fullStack() []byte {
	buf := make([]byte, 8096)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, 2*len(buf))
	}
}
