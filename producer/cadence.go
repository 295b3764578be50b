// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package producer

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/tomtom215/replicate/wire"
)

var tagPattern = regexp.MustCompile(`^(\d+)(ms|s)$`)

// FormatTag renders a cadence as its wire tag: "{n}ms" if d is under one
// second, "{n}s" otherwise, n rounded to the nearest integer (§4.5, §6.3).
func FormatTag(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", roundDiv(d.Nanoseconds(), int64(time.Millisecond)))
	}
	return fmt.Sprintf("%ds", roundDiv(d.Nanoseconds(), int64(time.Second)))
}

func roundDiv(a, b int64) int64 {
	return (a + b/2) / b
}

// ParseTag parses a cadence tag of the form "{n}ms" or "{n}s" into a
// duration. Intervals under 100ms are rejected, matching the Pulse's own
// minimum (§6.3).
func ParseTag(tag string) (time.Duration, error) {
	m := tagPattern.FindStringSubmatch(tag)
	if m == nil {
		return 0, fmt.Errorf("%w: %q is not a valid cadence tag", wire.ErrInvalidArgument, tag)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a valid cadence tag", wire.ErrInvalidArgument, tag)
	}
	var d time.Duration
	if m[2] == "ms" {
		d = time.Duration(n) * time.Millisecond
	} else {
		d = time.Duration(n) * time.Second
	}
	if d < 100*time.Millisecond {
		return 0, fmt.Errorf("%w: cadence %s is below the 100ms minimum", wire.ErrInvalidArgument, tag)
	}
	return d, nil
}
