package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobState_TrainingNames(t *testing.T) {
	state := JobState{Training: map[string]interface{}{
		"stress-model-2": map[string]interface{}{},
		"stress-model-0": map[string]interface{}{},
		"stress-model-1": nil,
	}}

	assert.True(t, state.IsTraining())
	assert.Equal(t, []string{"stress-model-0", "stress-model-1", "stress-model-2"}, state.TrainingNames())
	assert.Empty(t, JobState{}.TrainingNames())
	assert.False(t, JobState{}.IsTraining())
}
