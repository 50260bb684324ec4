package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlayEntries(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		albumIDs []int
		trackIDs []int
		wantErr  bool
	}{
		{
			name:     "albums and tracks mixed",
			args:     []string{"a:3", "t:7", "a:5"},
			albumIDs: []int{3, 5},
			trackIDs: []int{7},
		},
		{
			name:     "semicolon separated list",
			args:     []string{"a:1;t:2;t:4"},
			albumIDs: []int{1},
			trackIDs: []int{2, 4},
		},
		{
			name:     "bare numbers are track ids",
			args:     []string{"10", "11"},
			trackIDs: []int{10, 11},
		},
		{name: "garbage entry", args: []string{"a:x"}, wantErr: true},
		{name: "empty input", args: []string{";"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			albumIDs, trackIDs, err := parsePlayEntries(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.albumIDs, albumIDs)
			assert.Equal(t, tt.trackIDs, trackIDs)
		})
	}
}
