package bankreturn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

func TestStripCheckDigit(t *testing.T) {
	decode := stripCheckDigit(1)

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "padded with check digit", raw: "000000010019", want: "1001"},
		{name: "surrounding spaces", raw: "  000001239 ", want: "123"},
		{name: "no padding", raw: "12345678", want: "1234567"},
		{name: "non numeric", raw: "00ABC123X", wantErr: true},
		{name: "too short", raw: "7", wantErr: true},
		{name: "all zeros", raw: "000000000000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decode(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFileDate(t *testing.T) {
	d, ok, err := parseFileDate("250326")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, timeutil.Date(2026, time.March, 25), d)

	_, ok, err = parseFileDate("000000")
	require.NoError(t, err)
	assert.False(t, ok, "all zeros means no occurrence date")

	_, ok, err = parseFileDate("")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = parseFileDate("999999")
	require.Error(t, err)
}

func TestParseCents(t *testing.T) {
	v, err := parseCents("0000000009500")
	require.NoError(t, err)
	assert.Equal(t, int64(9500), v)

	v, err = parseCents("0000000000000")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	_, err = parseCents("00000000X9500")
	require.Error(t, err)
}

func TestParseSequence(t *testing.T) {
	v, err := parseSequence("00042")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = parseSequence("00000")
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestMatchesAgreement(t *testing.T) {
	assert.True(t, matchesAgreement("00000000000000012345", "12345"))
	assert.True(t, matchesAgreement(" 012345", "12345"))
	assert.False(t, matchesAgreement("00000000000000012345", "54321"))
	// an empty header field never matches anything
	assert.False(t, matchesAgreement("00000000000000000000", ""))
	assert.False(t, matchesAgreement("          ", ""))
}

func TestFieldExtract_OutOfBounds(t *testing.T) {
	f := field{start: 390, length: 20}
	assert.Equal(t, "", f.extract("short line"))
}

func TestDefaultLayouts_CoverSupportedBanks(t *testing.T) {
	layouts := DefaultLayouts()
	for _, code := range []string{"001", "237", "341"} {
		layout, ok := layouts[code]
		require.True(t, ok, "missing layout for bank %s", code)
		assert.NotEmpty(t, layout.BankName)
		assert.NotEmpty(t, layout.occurrences)
		assert.NotNil(t, layout.decodeReference)
	}
}
