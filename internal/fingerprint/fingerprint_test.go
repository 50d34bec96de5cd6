package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Deterministic(t *testing.T) {
	content := "Tenant: John Smith\nMonthly Rent: 1250.00"

	first, err := Fingerprint(content)
	require.NoError(t, err)
	second, err := Fingerprint(content)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestFingerprint_WhitespaceInsensitive(t *testing.T) {
	a, err := Fingerprint("Monthly Rent:   1250.00\n\nUnit:\t4B")
	require.NoError(t, err)
	b, err := Fingerprint("Monthly Rent: 1250.00 Unit: 4B")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFingerprint_MarkupInsensitive(t *testing.T) {
	html := `<html><body><div class="row"><span>Monthly Rent:</span> <b>1250.00</b></div><script>track();</script></body></html>`
	plain := "Monthly Rent: 1250.00"

	a, err := Fingerprint(html)
	require.NoError(t, err)
	b, err := Fingerprint(plain)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFingerprint_DifferentContentDiffers(t *testing.T) {
	a, err := Fingerprint("Monthly Rent: 1250.00")
	require.NoError(t, err)
	b, err := Fingerprint("Monthly Rent: 1300.00")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestFingerprint_MalformedContent(t *testing.T) {
	for _, content := range []string{"", "   \n\t  ", "\u200b\u00a0"} {
		_, err := Fingerprint(content)
		assert.ErrorIs(t, err, ErrMalformedContent, "content %q", content)
	}
}

func TestCanonicalize_StripsZeroWidthAndNBSP(t *testing.T) {
	got, err := Canonicalize("\ufeffRent:\u00a01250\u200b.00\u200c\u200d")
	require.NoError(t, err)
	assert.Equal(t, "Rent: 1250.00", got)
}
