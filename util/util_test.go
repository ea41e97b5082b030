package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLastNonEmptyLine(t *testing.T) {
	assert.Equal(t, "", LastNonEmptyLine(nil))
	assert.Equal(t, "", LastNonEmptyLine([]byte("\n  \n")))
	assert.Equal(t, "b", LastNonEmptyLine([]byte("a\nb\n\n")))
	assert.Equal(t, "only", LastNonEmptyLine([]byte("only")))
}

func TestRandstring(t *testing.T) {
	s := Randstring(12)
	assert.Len(t, s, 12)
	for _, r := range s {
		assert.Contains(t, string(letterRunes), string(r))
	}
}

func TestExplainNames(t *testing.T) {
	assert.Equal(t, `"a", "b", "c"`, ExplainNames([]string{"c", "a", "b"}))
	assert.Equal(t, "", ExplainNames([]string{}))
}
