package opcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringKnownOpcodes(t *testing.T) {
	assert.Equal(t, "PUSH", PUSH.String())
	assert.Equal(t, "CALLGLOBALTAIL", CALLGLOBALTAIL.String())
	assert.Equal(t, "BINOPADD", BINOPADD.String())
}

func TestStringUnknownOpcode(t *testing.T) {
	assert.Equal(t, "UNKNOWN", OpCode(255).String())
}

func TestEffectKnownOpcodes(t *testing.T) {
	e, ok := Effect(BIND)
	assert.True(t, ok)
	assert.Equal(t, StackEffect{Pops: 1, Pushes: 0}, e)
}

func TestEffectArityDependentOpcodesReportSentinel(t *testing.T) {
	e, ok := Effect(FUNC)
	assert.True(t, ok)
	assert.Equal(t, -1, e.Pops)
}

func TestEveryDeclaredOpcodeHasAnEffect(t *testing.T) {
	for op := PUSH; op < opCodeCount; op++ {
		_, ok := Effect(op)
		assert.True(t, ok, "opcode %s missing a stack effect entry", op)
	}
}

func TestTypeHintString(t *testing.T) {
	assert.Equal(t, "Int", HintInt.String())
	assert.Equal(t, "None", HintNone.String())
}
