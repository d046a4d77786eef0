package modscript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modhost/internal/value"
)

func TestParseScript_StepOperands(t *testing.T) {
	c, err := parseScript(`
body:
  - log: starting
  - log: {join: [a, b]}
  - set: count
    value: 3
  - set: empty
  - microtask: m1
    then:
      - log: nested
  - await: never
  - await: {timeout: 5ms}
  - await: {io: read, delay: 1ms}
    as: data
`)
	require.NoError(t, err)
	require.Len(t, c.body, 8)

	ops := make([]opKind, len(c.body))
	for i, s := range c.body {
		ops[i] = s.op
	}
	assert.Equal(t, []opKind{opLog, opLog, opSet, opSet, opMicrotask, opAwait, opAwait, opAwait}, ops)

	assert.NotNil(t, c.body[0].expr)
	assert.Equal(t, "count", c.body[2].name)
	assert.Equal(t, literalExpr{v: value.Null{}}, c.body[3].expr)

	require.Len(t, c.body[4].then, 1)
	assert.Equal(t, opLog, c.body[4].then[0].op)

	assert.Equal(t, awaitNever, c.body[5].await)
	assert.Equal(t, awaitTimeout, c.body[6].await)
	assert.Equal(t, 5*time.Millisecond, c.body[6].delay)
	assert.Equal(t, awaitIO, c.body[7].await)
	assert.Equal(t, "data", c.body[7].as)
}

func TestParseScript_RejectsUnknownAwait(t *testing.T) {
	_, err := parseScript("body:\n  - await: soon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown await "soon"`)
}
