// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ata

import "fmt"

// ValidationError is returned by NewCommand when a register value or a
// combination of values cannot describe a valid command.
type ValidationError struct {
	Field  string
	Value  uint64
	Max    uint64 // valid bound, meaningful when Reason is empty
	Width  Width
	Reason string
}

// RangeError is the ValidationError raised for a field outside its bound.
type RangeError = ValidationError

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s (%s): %s", e.Field, e.Width, e.Reason)
	}
	return fmt.Sprintf("%s %#x out of range for %s command, must be <= %#x",
		e.Field, e.Value, e.Width, e.Max)
}

func rangeError(field string, v, max uint64, w Width) error {
	return &ValidationError{Field: field, Value: v, Max: max, Width: w}
}

func invalid(field string, v uint64, w Width, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Value: v, Width: w, Reason: fmt.Sprintf(format, args...)}
}
