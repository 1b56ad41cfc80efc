package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGraphCommandPrintsTopology(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "graph")
	require.NoError(t, err)

	require.Contains(t, output, "flow penguins: 10 steps")
	require.Contains(t, output, `foreach over "folds"`)
	require.Contains(t, output, "join of cross_validation")
	require.Contains(t, output, "-> end")
}
