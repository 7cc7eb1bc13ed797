package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseByte parses a byte written in decimal, hex (0x), octal (0o) or
// binary (0b) notation.
func ParseByte(s string) (byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("parse byte %q: %w", s, err)
	}
	return byte(n), nil
}
