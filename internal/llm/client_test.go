package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFence_PassesPlainTextThrough(t *testing.T) {
	assert.Equal(t, "FROM alpine", StripCodeFence("  FROM alpine  "))
}

func TestStripCodeFence_RemovesFenceWithLanguageTag(t *testing.T) {
	in := "```dockerfile\nFROM alpine\nCMD [\"/app\"]\n```"
	assert.Equal(t, "FROM alpine\nCMD [\"/app\"]", StripCodeFence(in))
}

func TestStripCodeFence_RemovesBareFence(t *testing.T) {
	in := "```\n{\"main.tf\": \"resource {}\"}\n```"
	assert.Equal(t, "{\"main.tf\": \"resource {}\"}", StripCodeFence(in))
}

func TestStripCodeFence_KeepsInteriorFences(t *testing.T) {
	in := "```markdown\nbefore\n```\nafter"
	// only the last closing fence is removed
	assert.Equal(t, "before\nafter", StripCodeFence(in))
}
