package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetErrorChain(t *testing.T) {
	root := errors.New("no such file")
	inner := NewIOError(ErrCodeReadFailed, "read resources/a.txt", root)
	outer := Wrap(inner, ErrorTypeTemplate, ErrCodeTemplateSyntax, "compile /a.txt")
	wrapped := fmt.Errorf("pass: %w", outer)

	chain := GetErrorChain(wrapped)
	assert.Len(t, chain, 4)
	assert.Same(t, root, GetRootCause(wrapped))
	assert.Nil(t, GetRootCause(nil))
}

func TestHasErrorCodeAndType(t *testing.T) {
	inner := ErrMissingManifestEntry("/js/app.js")
	outer := Wrap(inner, ErrorTypeConfig, ErrCodeConfigInvalid, "entries[0]")

	assert.True(t, HasErrorCode(outer, ErrCodeMissingManifestEntry))
	assert.True(t, HasErrorCode(outer, ErrCodeConfigInvalid))
	assert.False(t, HasErrorCode(outer, ErrCodeCycleDetected))

	assert.True(t, HasErrorType(outer, ErrorTypeReference))
	assert.False(t, IsReference(outer), "predicates stop at the outermost error")
	assert.False(t, HasErrorType(errors.New("plain"), ErrorTypeIO))
}

func TestWithOperation(t *testing.T) {
	assert.Nil(t, WithOperation(nil, "noop"))

	err := WithOperation(ErrUnknownNode("/a"), "dependants")
	var me *Error
	assert.True(t, errors.As(err, &me))
	assert.Equal(t, "dependants", me.Context["operation"])

	plain := WithOperation(errors.New("boom"), "load manifest")
	assert.True(t, HasErrorType(plain, ErrorTypeIO))
	assert.Contains(t, plain.Error(), "load manifest: boom")
}
