package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryCoversEveryDeclaredCode(t *testing.T) {
	codes := []string{
		PAR001, PAR002,
		MOD001, MOD002, MOD003, MOD004, MOD005,
		EXP001, EXP002, EXP003, EXP004,
		SEM001, SEM002,
		OPT001, OPT002,
		GEN001,
		PEEP001,
		INT001, INT002,
		GEN999,
	}
	for _, code := range codes {
		info, ok := Info(code)
		assert.True(t, ok, "code %s must be registered", code)
		assert.Equal(t, code, info.Code)
		assert.NotEmpty(t, info.Phase)
		assert.NotEmpty(t, info.Description)
	}
}

func TestIsKindMatchesRegistry(t *testing.T) {
	tests := []struct {
		code string
		kind Kind
	}{
		{PAR001, KindParse},
		{MOD001, KindBadSyntax},
		{MOD002, KindIo},
		{EXP002, KindFreeIdent},
		{SEM001, KindFreeIdent},
		{OPT001, KindTypeMismatch},
		{OPT002, KindArityMismatch},
		{INT001, KindFreeIdent},
		{GEN999, KindGeneric},
	}
	for _, tt := range tests {
		assert.True(t, IsKind(tt.code, tt.kind), "%s should be kind %s", tt.code, tt.kind)
	}
}

func TestIsKindRejectsMismatch(t *testing.T) {
	assert.False(t, IsKind(PAR001, KindGeneric))
}

func TestInfoUnknownCode(t *testing.T) {
	_, ok := Info("NOPE999")
	assert.False(t, ok)
}
