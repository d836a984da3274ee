package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeScheduleAtMostOnce(t *testing.T) {
	n := NewNode(1, NewFuncTask("t", func(int, uint64) (bool, error) { return true, nil }), false)

	var enqueued int
	enqueue := func(*Node) { enqueued++ }

	require.True(t, n.Schedule(enqueue))
	require.False(t, n.Schedule(enqueue))
	require.Equal(t, 1, enqueued)
}

func TestNodeExecuteSetsCompleted(t *testing.T) {
	n := NewNode(1, NewFuncTask("t", func(int, uint64) (bool, error) { return true, nil }), false)
	ok, err := n.Execute(0)
	require.True(t, ok)
	require.NoError(t, err)
	require.True(t, n.Completed())
}

func TestNodeExecuteRescheduleDoesNotComplete(t *testing.T) {
	n := NewNode(1, NewFuncTask("t", func(int, uint64) (bool, error) { return false, nil }), false)
	ok, err := n.Execute(0)
	require.False(t, ok)
	require.NoError(t, err)
	require.False(t, n.Completed())
}

func TestRootForbidsDependency(t *testing.T) {
	root := NewNode(1, NewFuncTask("root", func(int, uint64) (bool, error) { return true, nil }), true)
	other := NewNode(2, NewFuncTask("other", func(int, uint64) (bool, error) { return true, nil }), false)
	err := root.AddDependency(other)
	require.Error(t, err)
}

func TestIsReadyToLaunch(t *testing.T) {
	a := NewNode(1, NewFuncTask("a", func(int, uint64) (bool, error) { return true, nil }), true)
	b := NewNode(2, NewFuncTask("b", func(int, uint64) (bool, error) { return true, nil }), false)
	require.NoError(t, b.AddDependency(a))

	require.False(t, IsReadyToLaunch(b.Dependencies))
	a.Execute(0)
	require.True(t, IsReadyToLaunch(b.Dependencies))
}
