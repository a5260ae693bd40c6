package errors

import "errors"

// Error Chain Utilities

// GetErrorChain returns all errors in the chain from outermost to innermost
func GetErrorChain(err error) []error {
	var chain []error
	for err != nil {
		chain = append(chain, err)
		err = errors.Unwrap(err)
	}

	return chain
}

// GetRootCause returns the deepest underlying error in the chain
func GetRootCause(err error) error {
	chain := GetErrorChain(err)
	if len(chain) == 0 {
		return nil
	}

	return chain[len(chain)-1]
}

// HasErrorCode checks if any error in the chain has the specified code
func HasErrorCode(err error, code string) bool {
	for _, e := range GetErrorChain(err) {
		if me, ok := e.(*Error); ok && me.Code == code {
			return true
		}
	}

	return false
}

// HasErrorType checks if any error in the chain has the specified type.
// Unlike the Is* predicates, which look at the outermost *Error only, this
// also finds causes wrapped by another *Error.
func HasErrorType(err error, errType ErrorType) bool {
	for _, e := range GetErrorChain(err) {
		if me, ok := e.(*Error); ok && me.Type == errType {
			return true
		}
	}

	return false
}

// WithOperation records the operation that failed on err. Errors that are
// not *Error are wrapped as I/O errors.
func WithOperation(err error, operation string) error {
	if err == nil {
		return nil
	}

	var me *Error
	if errors.As(err, &me) {
		return me.WithContext("operation", operation)
	}

	return NewIOError(ErrCodeReadFailed, operation, err).WithContext("operation", operation)
}
