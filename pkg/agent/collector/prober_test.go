package collector

import (
	"context"
	"net"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProbeAll(t *testing.T) {
	p := NewProber(ProbeConfig{Workers: 2}, zap.NewNop())

	var calls atomic.Int32
	p.probe = func(ctx context.Context, address string) ProbeResult {
		calls.Add(1)
		return ProbeResult{Address: address, Alive: address != "10.0.0.2", Detail: "fake"}
	}

	alive := p.ProbeAll(context.Background(), []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"})
	sort.Strings(alive)

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.3"}, alive)
	assert.Equal(t, int32(3), calls.Load())
}

func TestProbeAllEmpty(t *testing.T) {
	p := NewProber(ProbeConfig{}, zap.NewNop())
	p.probe = func(ctx context.Context, address string) ProbeResult {
		t.Fatalf("不应探测任何地址，收到 %s", address)
		return ProbeResult{}
	}
	assert.Empty(t, p.ProbeAll(context.Background(), nil))
}

func TestProbeTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	p := NewProber(ProbeConfig{Mode: ProbeTCP, Port: port, Timeout: time.Second}, zap.NewNop())
	result := p.Probe(context.Background(), "127.0.0.1")
	assert.True(t, result.Alive, result.Detail)
	assert.Contains(t, result.Detail, "TCP connected")
}

func TestProbeTCPRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	p := NewProber(ProbeConfig{Mode: ProbeTCP, Port: port, Timeout: time.Second}, zap.NewNop())
	result := p.Probe(context.Background(), "127.0.0.1")
	assert.False(t, result.Alive)
	assert.Contains(t, result.Detail, "connection failed")
}
