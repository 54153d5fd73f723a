package qdrant

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfig_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name   string
		config *ClientConfig
		check  func(t *testing.T, cfg *ClientConfig)
	}{
		{
			name:   "empty config gets all defaults",
			config: &ClientConfig{},
			check: func(t *testing.T, cfg *ClientConfig) {
				assert.Equal(t, "localhost", cfg.Host)
				assert.Equal(t, 6334, cfg.Port)
				assert.False(t, cfg.UseTLS)
				assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
				assert.Equal(t, 5*time.Second, cfg.DialTimeout)
				assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
			},
		},
		{
			name: "partial config preserves set values",
			config: &ClientConfig{
				Host:           "qdrant.example.com",
				Port:           6335,
				RequestTimeout: time.Second,
			},
			check: func(t *testing.T, cfg *ClientConfig) {
				assert.Equal(t, "qdrant.example.com", cfg.Host)
				assert.Equal(t, 6335, cfg.Port)
				assert.Equal(t, time.Second, cfg.RequestTimeout)
				assert.Equal(t, 5*time.Second, cfg.DialTimeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.ApplyDefaults()
			tt.check(t, tt.config)
		})
	}
}

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *ClientConfig
		wantErr string
	}{
		{"valid", &ClientConfig{Host: "localhost", Port: 6334, MaxMessageSize: 1024}, ""},
		{"missing host", &ClientConfig{Port: 6334, MaxMessageSize: 1024}, "host is required"},
		{"zero port", &ClientConfig{Host: "localhost", MaxMessageSize: 1024}, "invalid port"},
		{"port too large", &ClientConfig{Host: "localhost", Port: 65536, MaxMessageSize: 1024}, "invalid port"},
		{"zero message size", &ClientConfig{Host: "localhost", Port: 6334}, "invalid max message size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewGRPCClient_RequiresLogger(t *testing.T) {
	_, err := NewGRPCClient(DefaultClientConfig(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger is required")
}

func TestNewGRPCClient_SkipHealthCheck(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.SkipHealthCheck = true

	c, err := NewGRPCClient(cfg, logging.NewNop())
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestDeleteByFilter_RejectsEmptyFilter(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.SkipHealthCheck = true
	c, err := NewGRPCClient(cfg, logging.NewNop())
	require.NoError(t, err)
	defer c.Close()

	assert.Error(t, c.DeleteByFilter(context.Background(), "chunks", nil))
	assert.Error(t, c.DeleteByFilter(context.Background(), "chunks", &Filter{}))
}

func TestMatchAll(t *testing.T) {
	f := MatchAll("user_id", "u1", "project_id", "p1", "dangling")
	require.Len(t, f.Must, 2)
	assert.Equal(t, Condition{Field: "user_id", Match: "u1"}, f.Must[0])
	assert.Equal(t, Condition{Field: "project_id", Match: "p1"}, f.Must[1])
}

func TestConvertToQdrantPoint(t *testing.T) {
	p := &Point{
		ID:     "5f0c7e1a-8a4b-4a7e-9b52-0d6c2f0f9a11",
		Vector: []float32{0.1, 0.2, 0.3},
		Payload: map[string]interface{}{
			"text":    "hello",
			"page":    3,
			"count":   int64(100),
			"score":   0.5,
			"flag":    true,
			"unknown": struct{}{},
		},
	}

	qp := convertToQdrantPoint(p)
	require.NotNil(t, qp)
	assert.Equal(t, p.ID, qp.Id.GetUuid())
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, qp.Vectors.GetVector().GetDense().GetData())
	assert.Len(t, qp.Payload, 6)
	assert.Equal(t, "hello", qp.Payload["text"].GetStringValue())
	assert.Equal(t, int64(3), qp.Payload["page"].GetIntegerValue())
	assert.Equal(t, int64(100), qp.Payload["count"].GetIntegerValue())
	assert.Equal(t, 0.5, qp.Payload["score"].GetDoubleValue())
	assert.True(t, qp.Payload["flag"].GetBoolValue())
	assert.Contains(t, qp.Payload["unknown"].GetStringValue(), "{}")
}

func TestConvertToQdrantFilter(t *testing.T) {
	assert.Nil(t, convertToQdrantFilter(nil))
	assert.Nil(t, convertToQdrantFilter(&Filter{}))

	qf := convertToQdrantFilter(MatchAll("user_id", "u1", "document_id", "d1"))
	require.NotNil(t, qf)
	require.Len(t, qf.Must, 2)

	first := qf.Must[0].GetField()
	require.NotNil(t, first)
	assert.Equal(t, "user_id", first.Key)
	assert.Equal(t, "u1", first.Match.GetKeyword())

	second := qf.Must[1].GetField()
	assert.Equal(t, "document_id", second.Key)
	assert.Equal(t, "d1", second.Match.GetKeyword())
}

func TestExtractPayload(t *testing.T) {
	assert.Nil(t, extractPayload(nil))

	got := extractPayload(map[string]*qdrant.Value{
		"string": {Kind: &qdrant.Value_StringValue{StringValue: "test"}},
		"int":    {Kind: &qdrant.Value_IntegerValue{IntegerValue: 42}},
		"float":  {Kind: &qdrant.Value_DoubleValue{DoubleValue: 3.14}},
		"bool":   {Kind: &qdrant.Value_BoolValue{BoolValue: true}},
		"null":   nil,
	})
	assert.Equal(t, map[string]interface{}{
		"string": "test",
		"int":    int64(42),
		"float":  3.14,
		"bool":   true,
		"null":   nil,
	}, got)
}

func TestExtractPointID(t *testing.T) {
	assert.Equal(t, "", extractPointID(nil))
	assert.Equal(t, "abc", extractPointID(qdrant.NewIDUUID("abc")))
	assert.Equal(t, "42", extractPointID(qdrant.NewIDNum(42)))
}

func TestCollectionSize(t *testing.T) {
	info := &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     384,
					Distance: qdrant.Distance_Cosine,
				}),
			},
		},
	}
	assert.Equal(t, uint64(384), collectionSize(info))
	assert.Equal(t, uint64(0), collectionSize(nil))
}
