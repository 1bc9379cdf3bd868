// Copyright (c) 2022 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by every cache operation before
	// the first call to Init.
	ErrNotInitialized = errors.New("blockchain cache not initialized")

	// ErrNotFound is returned when a block, transaction, receipt or
	// state item is not present.
	ErrNotFound = errors.New("not found")

	// ErrIterationUnsupported is reported by iterators over the content
	// store adapter. The content store cannot enumerate its keys.
	ErrIterationUnsupported = errors.New("iteration is not supported by the content store adapter")

	// ErrBlockSealed is returned when an open block is used after Seal.
	ErrBlockSealed = errors.New("block is already sealed")
)

// AssertError identifies an error that indicates an internal code consistency
// issue and should be treated as a critical and unrecoverable error.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

type ErrorCode int

const (
	ErrDuplicateBlock ErrorCode = iota
	ErrDoesNotConnect
	ErrInvalidHeight
	ErrInvalidGenesis
	ErrInvalidTx
	ErrDuplicateTx
	ErrBlockGasLimit
	ErrGasPriceTooLow
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicateBlock: "ErrDuplicateBlock",
	ErrDoesNotConnect: "ErrDoesNotConnect",
	ErrInvalidHeight:  "ErrInvalidHeight",
	ErrInvalidGenesis: "ErrInvalidGenesis",
	ErrInvalidTx:      "ErrInvalidTx",
	ErrDuplicateTx:    "ErrDuplicateTx",
	ErrBlockGasLimit:  "ErrBlockGasLimit",
	ErrGasPriceTooLow: "ErrGasPriceTooLow",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a block or transaction failed due to one of the many validation
// rules.  The caller can use type assertions to determine if a failure was
// specifically due to a rule violation and access the ErrorCode field to
// ascertain the specific reason for the rule violation.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human-readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates an RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// NewRuleError creates a RuleError for callers outside the package that
// enforce transaction admission rules.
func NewRuleError(c ErrorCode, desc string) RuleError {
	return ruleError(c, desc)
}

// ErrorIs reports whether err is, or wraps, a RuleError with the code.
func ErrorIs(err error, code ErrorCode) bool {
	var ruleErr RuleError
	if errors.As(err, &ruleErr) && ruleErr.ErrorCode == code {
		return true
	}
	return false
}
