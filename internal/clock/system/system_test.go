package system_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contact-intake/internal/clock/system"
	"github.com/JakeFAU/contact-intake/internal/intake"
)

var _ intake.Clock = (*system.Clock)(nil)

func TestClockNowIsUTCAndCurrent(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	got := system.New().Now()
	after := time.Now().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after), "clock returned %v", got)
}

func TestClockNeverRunsBackwards(t *testing.T) {
	t.Parallel()

	clk := system.New()
	first := clk.Now()
	require.False(t, clk.Now().Before(first))
}
