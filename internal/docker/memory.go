package docker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var memorySizeRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)(MB?|GB?)$`)

// ParseMemorySize converts a human-readable memory size to bytes. Only MB
// and GB units are supported, with or without the trailing B.
func ParseMemorySize(s string) (int64, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if normalized == "" {
		return 0, fmt.Errorf("memory size is empty")
	}

	m := memorySizeRe.FindStringSubmatch(normalized)
	if m == nil {
		return 0, fmt.Errorf("invalid memory size %q: expected formats like 500MB/500M or 4GB/4G", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory size %q: %w", s, err)
	}

	switch m[2][:1] {
	case "M":
		return int64(value * 1024 * 1024), nil
	default: // "G"
		return int64(value * 1024 * 1024 * 1024), nil
	}
}
