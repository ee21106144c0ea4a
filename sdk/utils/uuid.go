// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"strings"

	"github.com/google/uuid"
)

func UUIDv4NoDash() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// PartialPath returns a sibling temp name for target, unique per call.
func PartialPath(target string) string {
	return target + "." + UUIDv4NoDash()[:12] + ".part"
}
