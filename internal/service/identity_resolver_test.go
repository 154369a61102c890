package service

import (
	"errors"
	"testing"

	"github.com/dushixiang/quanterra/internal/metric"
	"github.com/dushixiang/quanterra/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func code(s string) metric.Record {
	return metric.Record{StationCode: &s}
}

func TestResolveIdentities(t *testing.T) {
	records := map[string]metric.Record{
		"10.0.0.5": code("QUIL"),
		"10.0.0.6": code("PULU"),
		"10.0.0.9": code("LOST"),
	}
	table := map[string]string{
		"10.0.0.5": "STA1",
		"10.0.0.6": "STA2",
		"10.0.0.7": "STA3",
	}

	res, err := ResolveIdentities(records, table)
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, "QUIL", *res.Records["STA1"].StationCode)
	assert.Equal(t, "PULU", *res.Records["STA2"].StationCode)
	assert.Equal(t, []string{"10.0.0.9"}, res.Unmapped)
}

func TestResolveIdentitiesAllMapped(t *testing.T) {
	records := map[string]metric.Record{"a": code("A"), "b": code("B")}
	res, err := ResolveIdentities(records, map[string]string{"a": "X", "b": "Y"})
	require.NoError(t, err)
	assert.Len(t, res.Records, len(records))
	assert.Empty(t, res.Unmapped)
}

func TestResolveIdentitiesEmptyIdentityIsUnmapped(t *testing.T) {
	res, err := ResolveIdentities(map[string]metric.Record{"a": code("A")}, map[string]string{"a": ""})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, []string{"a"}, res.Unmapped)
}

func TestResolveIdentitiesConflict(t *testing.T) {
	records := map[string]metric.Record{
		"10.0.0.5": code("QUIL"),
		"10.0.0.6": code("PULU"),
	}
	table := map[string]string{
		"10.0.0.5": "STA1",
		"10.0.0.6": "STA1",
	}

	res, err := ResolveIdentities(records, table)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrMappingConflict))

	var conflict *MappingConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "STA1", conflict.Identity)
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.6"}, conflict.Addresses)
}

func TestBuildIdentityTable(t *testing.T) {
	t.Run("正常清单", func(t *testing.T) {
		table, err := BuildIdentityTable([]protocol.Device{
			{Address: "10.0.0.5", Identity: "STA1"},
			{Address: "10.0.0.6", Identity: "STA2"},
			{Address: "10.0.0.5", Identity: "STA1"},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"10.0.0.5": "STA1", "10.0.0.6": "STA2"}, table)
	})

	t.Run("同一地址两个标识", func(t *testing.T) {
		_, err := BuildIdentityTable([]protocol.Device{
			{Address: "10.0.0.5", Identity: "STA1"},
			{Address: "10.0.0.5", Identity: "STA2"},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMappingConflict))
		assert.Contains(t, err.Error(), "10.0.0.5")
	})

	t.Run("同一标识两个地址", func(t *testing.T) {
		_, err := BuildIdentityTable([]protocol.Device{
			{Address: "10.0.0.5", Identity: "STA1"},
			{Address: "10.0.0.6", Identity: "STA1"},
		})
		assert.True(t, errors.Is(err, ErrMappingConflict))
	})

	t.Run("空清单", func(t *testing.T) {
		table, err := BuildIdentityTable(nil)
		require.NoError(t, err)
		assert.Empty(t, table)
	})
}
