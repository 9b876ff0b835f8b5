package deposit

import (
	"errors"
	"fmt"
)

// Error classes returned by Store operations.
var (
	ErrValidation      = errors.New("validation failed")
	ErrStorage         = errors.New("storage failure")
	ErrDeserialization = errors.New("deserialization failure")
)

// Field-level error values; each validation failure also matches ErrValidation.
var (
	ErrInvalidDepositID    = errors.New("invalid deposit id")
	ErrInvalidItem         = errors.New("invalid item")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidStore        = errors.New("invalid store")
	ErrInvalidRedeemMethod = errors.New("invalid redeem method")
	ErrInvalidExpiryDate   = errors.New("invalid expiry date")
	ErrInvalidCreatedAt    = errors.New("invalid created at")
	ErrInvalidStoreConfig  = errors.New("invalid store config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

func validationError(fieldErr error, detail string) error {
	return fmt.Errorf("%w: %w: %s", ErrValidation, fieldErr, detail)
}

func storageError(code string, err error) error {
	return WrapError(errorOperationDeposit, errorSubjectStorage, code, fmt.Errorf("%w: %w", ErrStorage, err))
}

func deserializationError(code string, err error) error {
	return WrapError(errorOperationDeposit, errorSubjectRecord, code, fmt.Errorf("%w: %w", ErrDeserialization, err))
}
