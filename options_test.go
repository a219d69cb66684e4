package tristore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueryOptionsDefaults(t *testing.T) {
	o := QueryOptions{}.withDefaults()
	require.Equal(t, defaultDeadline, o.Deadline)
	require.Equal(t, defaultMaxIterations, o.MaxIterations)
}

func TestQueryOptionsPreservesExplicitValues(t *testing.T) {
	o := QueryOptions{Deadline: time.Second, MaxIterations: 5}.withDefaults()
	require.Equal(t, time.Second, o.Deadline)
	require.Equal(t, 5, o.MaxIterations)
}
