// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package answers holds in-progress answers for a form, validates them for
// completeness and converts them to the submission wire format.
package answers
