package interceptor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimestampUnwrapper(t *testing.T) {
	tests := []struct {
		name string
		in   []uint32
		want []int64
	}{
		{
			name: "monotonic",
			in:   []uint32{1000, 4000, 7000},
			want: []int64{1000, 4000, 7000},
		},
		{
			name: "forward wrap",
			in:   []uint32{0xFFFFF000, 0x00000800},
			want: []int64{0xFFFFF000, 0x100000800},
		},
		{
			name: "reordered",
			in:   []uint32{9000, 6000, 12000},
			want: []int64{9000, 6000, 12000},
		},
		{
			name: "backwards across wrap",
			in:   []uint32{0x00000100, 0xFFFFFF00},
			want: []int64{0x100, -0x100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u TimestampUnwrapper
			for k, ts := range tt.in {
				assert.Equal(t, tt.want[k], u.Unwrap(ts), "timestamp %d", k)
			}
		})
	}
}

func TestTimestampUnwrapper_Reset(t *testing.T) {
	var u TimestampUnwrapper
	u.Unwrap(0xFFFFFFF0)
	u.Unwrap(0x10)
	u.Reset()
	assert.Equal(t, int64(5), u.Unwrap(5))
}

func TestRTPToDuration(t *testing.T) {
	assert.Equal(t, time.Second, RTPToDuration(90000))
	assert.Equal(t, 40*time.Millisecond, RTPToDuration(3600))
	assert.Equal(t, 11111*time.Nanosecond, RTPToDuration(1))
	assert.Equal(t, -time.Second, RTPToDuration(-90000))
}

func TestDurationToRTP_InvertsRTPToDuration(t *testing.T) {
	for _, ticks := range []int64{0, 1, 2, 3, 4, 3000, 3003, 89999, 90001, 0xFFFFFFFF, 0x1_0000_0BB8, 1 << 40} {
		assert.Equal(t, ticks, DurationToRTP(RTPToDuration(ticks)), "ticks %d", ticks)
	}
	assert.Equal(t, int64(3000), DurationToRTP(time.Second/30))
}
