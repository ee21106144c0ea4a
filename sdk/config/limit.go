// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
)

// PayloadTooLargeError reports that a body exceeded the in-memory limit.
type PayloadTooLargeError struct {
	Limit int64
}

func (e PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload exceeded in-memory limit of %d bytes", e.Limit)
}

// IsPayloadTooLarge reports whether err carries a PayloadTooLargeError.
func IsPayloadTooLarge(err error) bool {
	var limitErr PayloadTooLargeError
	return errors.As(err, &limitErr)
}

// ReadAllWithLimit reads r up to limit bytes.
// If limit <= 0, it behaves like io.ReadAll.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, PayloadTooLargeError{Limit: limit}
	}
	return data, nil
}
