package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsBuild(t *testing.T) {
	r, err := New(Defaults()...)
	require.NoError(t, err)
	require.Len(t, r.All(), 6)

	fc, ok := r.Lookup(FlightClub)
	require.True(t, ok)
	require.Equal(t, KindRenderedPage, fc.Kind)
	require.Equal(t, 45*time.Second, fc.Deadline())
	require.Equal(t, FallbackReport, fc.Fallback)

	sx, _ := r.Lookup(StockX)
	require.Equal(t, 15*time.Second, sx.Deadline())
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New(Source{ID: "a"}, Source{ID: "a"})
	require.Error(t, err)

	_, err = New(Source{Name: "nameless"})
	require.Error(t, err)
}

func TestEnabled(t *testing.T) {
	r, err := New(
		Source{ID: "b", Enabled: true},
		Source{ID: "a", Enabled: true},
		Source{ID: "c"},
	)
	require.NoError(t, err)

	enabled := r.Enabled()
	require.Len(t, enabled, 2)
	require.Equal(t, "a", enabled[0].ID)
	require.Equal(t, "b", enabled[1].ID)

	_, ok := r.Lookup("missing")
	require.False(t, ok)
}
