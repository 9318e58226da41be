package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestIDElements(t *testing.T) {
	id := TestID("pkg/Suite/testFoo(x:)")
	assert.Equal(t, []string{"pkg", "Suite", "testFoo(x:)"}, id.Elements())
	assert.Equal(t, 2, id.Depth())
	assert.Equal(t, "testFoo(x:)", id.Name())
}

func TestTestIDTopLevel(t *testing.T) {
	id := TestID("testBar")
	assert.Equal(t, []string{"testBar"}, id.Elements())
	assert.Equal(t, 0, id.Depth())
	assert.Equal(t, "testBar", id.Name())
}

func TestTestIDValidate(t *testing.T) {
	assert.NoError(t, TestID("a/b").Validate())
	assert.Error(t, TestID("").Validate())
	assert.Error(t, TestID("a//b").Validate())
	assert.Error(t, TestID("/a").Validate())
}

func TestJoinID(t *testing.T) {
	assert.Equal(t, TestID("a/b/c"), JoinID("a", "b", "c"))
	assert.Equal(t, TestID("a/c"), JoinID("a", "", "c"))
}

func TestCombineStatus(t *testing.T) {
	tests := []struct {
		a, b, want TestStatus
	}{
		{TestStatusPass, TestStatusPass, TestStatusPass},
		{TestStatusPass, TestStatusFail, TestStatusFail},
		{TestStatusFail, TestStatusPass, TestStatusFail},
		{TestStatusSkip, TestStatusPass, TestStatusPass},
		{TestStatusPass, TestStatusSkip, TestStatusPass},
		{TestStatusSkip, TestStatusSkip, TestStatusSkip},
		{TestStatusFail, TestStatusTimeout, TestStatusTimeout},
		{TestStatusTimeout, TestStatusPass, TestStatusTimeout},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CombineStatus(tt.a, tt.b), "combine(%s, %s)", tt.a, tt.b)
	}
}

func TestArgumentsDescribe(t *testing.T) {
	assert.Equal(t, "", Arguments(nil).Describe())
	assert.Equal(t, "1, two", Arguments{1, "two"}.Describe())
}

func TestParametersSourceIsRestartable(t *testing.T) {
	src := Parameters(Arguments{1}, Arguments{2})

	counted, ok := src.(Counted)
	require.True(t, ok)
	assert.Equal(t, 2, counted.Len())

	for range 2 {
		var seen []Arguments
		for args := range src.Cases() {
			seen = append(seen, args)
		}
		require.Len(t, seen, 2)
		assert.Equal(t, Arguments{1}, seen[0])
		assert.Equal(t, Arguments{2}, seen[1])
	}
}

func TestExitStatus(t *testing.T) {
	assert.True(t, ExitStatus{}.Success())
	assert.False(t, ExitStatus{Code: 1}.Success())
	assert.False(t, ExitStatus{Signal: 9}.Success())
	assert.Equal(t, "exit code 1", ExitStatus{Code: 1}.String())
	assert.Equal(t, "signal 9", ExitStatus{Signal: 9}.String())
}
