package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseArguments(t *testing.T) {
	args := ParseArguments(`{"designation":["CTO"],"limit":5}`)
	assert.Equal(t, []any{"CTO"}, args["designation"])
	assert.Equal(t, float64(5), args["limit"])
}

func TestParseArgumentsEmpty(t *testing.T) {
	assert.Empty(t, ParseArguments(""))
}

func TestParseArgumentsMalformedKeepsRaw(t *testing.T) {
	args := ParseArguments(`not-json`)
	assert.Equal(t, "not-json", args["raw"])
}
