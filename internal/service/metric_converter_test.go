package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dushixiang/quanterra/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSink struct {
	batches [][]metric.Sample
	err     error
}

func (f *fakeSink) Send(ctx context.Context, samples []metric.Sample) (int, error) {
	f.batches = append(f.batches, samples)
	if f.err != nil {
		return 0, f.err
	}
	return len(samples), nil
}

func TestBuildBatch(t *testing.T) {
	voltage := 12.1
	records := map[string]metric.Record{
		"STA2": code("PULU"),
		"STA1": {StationCode: ptrString("QUIL"), InputVoltage: &voltage},
		"STA3": {},
	}

	assert.Equal(t, []metric.Sample{
		{Identity: "STA1", Name: metric.StationCode, Value: "QUIL"},
		{Identity: "STA1", Name: metric.InputVoltage, Value: "12.1"},
		{Identity: "STA2", Name: metric.StationCode, Value: "PULU"},
	}, BuildBatch(records))
}

func TestBuildBatchEmpty(t *testing.T) {
	assert.Empty(t, BuildBatch(nil))
	assert.Empty(t, BuildBatch(map[string]metric.Record{"STA1": {}}))
}

func TestDispatch(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	samples, acked, err := d.Dispatch(context.Background(), map[string]metric.Record{"STA1": code("QUIL")})
	require.NoError(t, err)
	assert.Equal(t, 1, samples)
	assert.Equal(t, 1, acked)
	require.Len(t, sink.batches, 1)
}

func TestDispatchEmptyIsNoop(t *testing.T) {
	sink := &fakeSink{}
	samples, acked, err := NewDispatcher(sink, zap.NewNop()).Dispatch(context.Background(), map[string]metric.Record{})
	require.NoError(t, err)
	assert.Zero(t, samples)
	assert.Zero(t, acked)
	assert.Empty(t, sink.batches)
}

func TestDispatchSinkError(t *testing.T) {
	sink := &fakeSink{err: errors.New("connection refused")}
	_, _, err := NewDispatcher(sink, zap.NewNop()).Dispatch(context.Background(), map[string]metric.Record{"STA1": code("QUIL")})
	require.Error(t, err)

	var dispatchErr *SinkDispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, 1, dispatchErr.Samples)
	assert.EqualError(t, errors.Unwrap(err), "connection refused")
}

func ptrString(s string) *string {
	return &s
}
