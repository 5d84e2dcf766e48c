package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: `"3s"`, want: 3 * time.Second},
		{in: `"1m30s"`, want: 90 * time.Second},
		{in: `5000000000`, want: 5 * time.Second},
		{in: `"soon"`, wantErr: true},
		{in: `true`, wantErr: true},
		{in: `{`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.in), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDuration_InvalidIsSentinel(t *testing.T) {
	var d Duration
	err := json.Unmarshal([]byte(`"later"`), &d)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Duration{Duration: 2500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, `"2.5s"`, string(b))
}
