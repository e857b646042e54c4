package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want struct {
			error bool
			addr  string
		}
	}{
		{
			name: "valid url",
			url:  "redis://localhost:6380/1",
			want: struct {
				error bool
				addr  string
			}{addr: "localhost:6380"},
		},
		{
			name: "unsupported scheme",
			url:  "http://localhost:6379",
			want: struct {
				error bool
				addr  string
			}{error: true},
		},
		{
			name: "garbage",
			url:  "::not a url::",
			want: struct {
				error bool
				addr  string
			}{error: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.url)
			if tt.want.error {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			defer c.Close()
			assert.Equal(t, tt.want.addr, c.Addr())
		})
	}
}

func TestClientPingUnreachable(t *testing.T) {
	c, err := NewClient("redis://127.0.0.1:1/0")
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	assert.Error(t, c.Ping(ctx))
}
