package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatEntryRef(t *testing.T) {
	assert.Equal(t, "JE-2025-01-0001", FormatEntryRef(2025, 1, 1))
	assert.Equal(t, "JE-2025-12-0342", FormatEntryRef(2025, 12, 342))
}

func TestParseEntryRef(t *testing.T) {
	year, month, seq, err := ParseEntryRef("JE-2025-03-0017")
	require.NoError(t, err)
	assert.Equal(t, 2025, year)
	assert.Equal(t, 3, month)
	assert.Equal(t, 17, seq)
}

func TestParseEntryRef_Roundtrip(t *testing.T) {
	year, month, seq, err := ParseEntryRef(FormatEntryRef(2026, 8, 9999))
	require.NoError(t, err)
	assert.Equal(t, 2026, year)
	assert.Equal(t, 8, month)
	assert.Equal(t, 9999, seq)
}

func TestParseEntryRef_Invalid(t *testing.T) {
	for _, ref := range []string{
		"",
		"JE-2025-03",
		"LN-2025-03-0001",
		"JE-xxxx-03-0001",
		"JE-2025-13-0001",
		"JE-2025-00-0001",
		"JE-2025-03-abcd",
	} {
		_, _, _, err := ParseEntryRef(ref)
		assert.Error(t, err, "ref %q", ref)
	}
}

func TestFormatLoanRef(t *testing.T) {
	assert.Equal(t, "LN-000001", FormatLoanRef(1))
	assert.Equal(t, "LN-000042", FormatLoanRef(42))
	assert.Equal(t, "LN-1000000", FormatLoanRef(1000000))
}
