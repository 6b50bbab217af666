package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSeconds(t *testing.T) {
	d, err := ParseSeconds("1.5")
	require.NoError(t, err)
	require.Equal(t, 1500*time.Millisecond, d)

	d, err = ParseSeconds(" 0 ")
	require.NoError(t, err)
	require.Zero(t, d)

	for _, s := range []string{"", "-1", "abc", "NaN", "1e300"} {
		_, err = ParseSeconds(s)
		require.Error(t, err, s)
	}
	require.Equal(t, "2.25", FormatSeconds(2250*time.Millisecond))
	require.Equal(t, "", FormatTime(time.Time{}))
}
