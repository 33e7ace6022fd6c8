package entity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsboard/entity"
)

func TestCentsFromDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"49.99", 4999},
		{"49", 4900},
		{"49.9", 4990},
		{"0.01", 1},
		{"0", 0},
		{".50", 50},
		{"100.005", 10001},
		{"100.004", 10000},
		{" 12.34 ", 1234},
	}

	for _, c := range cases {
		got, err := entity.CentsFromDecimal(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestCentsFromDecimalRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "-1", "-0.01", "abc", "1.2x"} {
		_, err := entity.CentsFromDecimal(in)
		assert.Error(t, err, in)
	}
}

func TestFormatCentsRoundTrips(t *testing.T) {
	for _, in := range []string{"49.99", "0.01", "123.00", "7.50"} {
		cents, err := entity.CentsFromDecimal(in)
		require.NoError(t, err)

		back, err := entity.CentsFromDecimal(entity.FormatCents(cents))
		require.NoError(t, err)
		assert.Equal(t, cents, back)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "usd", entity.NormalizeCurrency(""))
	assert.Equal(t, "eur", entity.NormalizeCurrency("EUR"))
}
