package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafePathBasic(t *testing.T) {
	sp := NewSafePath()
	scope := map[string]any{
		"user": map[string]any{"name": "ada", "address": map[string]any{"city": "london"}},
	}
	assert.Equal(t, "ada", sp.Evaluate("user.name", scope))
	assert.Equal(t, "london", sp.Evaluate("user.address.city", scope))
	assert.Nil(t, sp.Evaluate("user.missing", scope))
	assert.Nil(t, sp.Evaluate("user.name.nested", scope)) // "ada" isn't a map
}

func TestSafePathRejectsNonPathExpressions(t *testing.T) {
	sp := NewSafePath()
	scope := map[string]any{"a": 1}
	assert.Nil(t, sp.Evaluate("a + 1", scope))
	assert.Nil(t, sp.Evaluate("a()", scope))
	assert.Nil(t, sp.Evaluate("a[0]", scope))
	assert.Nil(t, sp.Evaluate("", scope))
}

func TestSandboxedBasic(t *testing.T) {
	sb := NewSandboxed()
	scope := map[string]any{"status": 200, "ok": true}
	assert.Equal(t, true, sb.Evaluate("status == 200", scope))
	assert.Equal(t, true, sb.Evaluate("ok", scope))
	assert.Equal(t, false, sb.Evaluate("status == 404", scope))
}

func TestSandboxedUndefinedOnFailure(t *testing.T) {
	sb := NewSandboxed()
	scope := map[string]any{"a": 1}
	assert.Nil(t, sb.Evaluate("this is not valid expr !!", scope))
}

func TestSandboxedCachesCompiledProgram(t *testing.T) {
	sb := NewSandboxed()
	scope := map[string]any{"n": 1}
	first := sb.Evaluate("n + 1", scope)
	second := sb.Evaluate("n + 1", map[string]any{"n": 2})
	assert.Equal(t, 2, first)
	assert.Equal(t, 3, second)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(false))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(0))
	assert.False(t, Truthy([]any{}))
	assert.True(t, Truthy("x"))
	assert.True(t, Truthy(1))
	assert.True(t, Truthy(true))
}
