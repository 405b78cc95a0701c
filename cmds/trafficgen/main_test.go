package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortRange(t *testing.T) {
	t.Parallel()

	first, last, err := parsePortRange("20-40")
	require.NoError(t, err)
	assert.Equal(t, uint16(20), first)
	assert.Equal(t, uint16(40), last)

	first, last, err = parsePortRange("443")
	require.NoError(t, err)
	assert.Equal(t, first, last)

	for _, bad := range []string{"", "0-10", "40-20", "1-70000", "a-b"} {
		_, _, err := parsePortRange(bad)
		assert.Error(t, err, bad)
	}
}
