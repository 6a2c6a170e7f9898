package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassLabel(t *testing.T) {
	c, err := ParseClassLabel("healthy")
	require.NoError(t, err)
	assert.Equal(t, ClassHealthy, c)

	c, err = ParseClassLabel("unhealthy")
	require.NoError(t, err)
	assert.Equal(t, ClassUnhealthy, c)

	_, err = ParseClassLabel("diseased")
	assert.Error(t, err)

	_, err = ParseClassLabel("")
	assert.Error(t, err)
}

func TestClassLabelsStableOrder(t *testing.T) {
	assert.Equal(t, []ClassLabel{ClassHealthy, ClassUnhealthy}, ClassLabels())
}
