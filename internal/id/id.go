package id

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatEntryRef returns a journal entry reference like "JE-2026-08-0001".
func FormatEntryRef(year, month, seq int) string {
	return fmt.Sprintf("JE-%04d-%02d-%04d", year, month, seq)
}

// ParseEntryRef parses "JE-2026-08-0001" into year, month, seq.
func ParseEntryRef(ref string) (year, month, seq int, err error) {
	parts := strings.SplitN(ref, "-", 4)
	if len(parts) != 4 || parts[0] != "JE" {
		return 0, 0, 0, fmt.Errorf("invalid entry reference format: %q", ref)
	}

	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid year in entry reference %q: %w", ref, err)
	}

	month, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid month in entry reference %q: %w", ref, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, 0, fmt.Errorf("invalid month %d in entry reference %q", month, ref)
	}

	seq, err = strconv.Atoi(parts[3])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid sequence in entry reference %q: %w", ref, err)
	}

	return year, month, seq, nil
}

// FormatLoanRef returns a loan reference like "LN-000042".
func FormatLoanRef(seq int) string {
	return fmt.Sprintf("LN-%06d", seq)
}
