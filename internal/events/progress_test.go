package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressFor_IsMonotonicAcrossStageOrder(t *testing.T) {
	order := []string{
		"accepted",
		"analysis",
		"validation",
		"dockerfile_generation",
		"terraform_generation",
		"quality_check",
		"delivery",
		"completed",
	}
	prev := -1
	for _, stage := range order {
		p := ProgressFor(stage)
		assert.Greater(t, p, prev, "stage %s regressed", stage)
		prev = p
	}
	assert.Equal(t, 100, ProgressFor("completed"))
}

func TestProgressFor_UnknownStage(t *testing.T) {
	assert.Equal(t, 0, ProgressFor("rollback"))
	assert.Equal(t, 0, ProgressFor(""))
}

func TestEventConstructors(t *testing.T) {
	st := NewStatus("analysis", "analyzing", "starting analysis")
	assert.Equal(t, KindStatus, st.Kind)
	assert.Equal(t, 15, st.Progress)
	assert.NotEmpty(t, st.ID)

	lg := NewLog("terraform_generator", "generated 3 files", "")
	assert.Equal(t, KindLog, lg.Kind)
	assert.Equal(t, LevelInfo, lg.Level)

	done := NewComplete("completed", map[string]string{"Dockerfile": "FROM alpine"}, "")
	assert.Equal(t, KindComplete, done.Kind)
	assert.Equal(t, 100, done.Progress)
}
