package cli

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/gpufleet/internal/errors"
)

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty string returns zero", flag: "", want: 0},
		{name: "valid seconds", flag: "5s", want: 5 * time.Second},
		{name: "valid minutes", flag: "2m", want: 2 * time.Minute},
		{name: "valid milliseconds", flag: "500ms", want: 500 * time.Millisecond},
		{name: "valid complex duration", flag: "1m30s", want: 90 * time.Second},
		{name: "invalid format returns error", flag: "5", wantErr: true},
		{name: "invalid string returns error", flag: "fast", wantErr: true},
		{name: "negative duration", flag: "-5s", wantErr: true},
		{name: "zero duration", flag: "0s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeout(tt.flag)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddTimeoutFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	flags := &TimeoutFlags{}

	AddTimeoutFlags(cmd, flags)

	connect := cmd.Flags().Lookup("connect-timeout")
	require.NotNil(t, connect, "connect-timeout flag should be registered")
	assert.Equal(t, "", connect.DefValue)

	require.NoError(t, cmd.Flags().Set("connect-timeout", "3s"))
	require.NoError(t, cmd.Flags().Set("command-timeout", "10s"))
	assert.Equal(t, "3s", flags.Connect)
	assert.Equal(t, "10s", flags.Command)
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"gpu25", []string{"gpu25"}},
		{"gpu25, gpu30 ,", []string{"gpu25", "gpu30"}},
		{" , ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, splitList(tt.in))
		})
	}
}
