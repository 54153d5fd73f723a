package logging

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/insightflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encodeWithRedaction(t *testing.T, fields ...zap.Field) string {
	t.Helper()
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Time: time.Unix(0, 0), Message: "m"}, fields)
	require.NoError(t, err)
	return buf.String()
}

func TestRedactingEncoder_SensitiveKeys(t *testing.T) {
	out := encodeWithRedaction(t,
		zap.String("api_key", "abc123"),
		zap.String("Authorization", "xyz"),
		zap.String("document_id", "doc-1"),
	)

	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "xyz")
	assert.Contains(t, out, "doc-1")
}

func TestRedactingEncoder_Patterns(t *testing.T) {
	out := encodeWithRedaction(t,
		zap.String("header", "Bearer eyJhbGciOi"),
		zap.String("note", "key is sk-abcdefghijklmnopqrstu"),
	)

	assert.NotContains(t, out, "eyJhbGciOi")
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstu")
	assert.Contains(t, out, "[REDACTED:pattern]")
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, NewDefaultConfig().Redaction)
	require.NoError(t, err)

	child := enc.Clone()
	child.AddString("password", "hunter2")
	buf, err := child.EncodeEntry(zapcore.Entry{Message: "m"}, nil)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, RedactionConfig{Enabled: false})
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, []zap.Field{zap.String("api_key", "visible")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "visible")
}

func TestSecretField(t *testing.T) {
	f := Secret("openai_api_key", config.Secret("sk-123456"))
	assert.Equal(t, "[REDACTED:9]", f.String)

	tl := NewTestLogger()
	tl.Info(t.Context(), "provider configured", f)
	tl.AssertNoSecrets(t)
}

func TestNewRedactingEncoder_RejectsLongPattern(t *testing.T) {
	long := make([]byte, maxPatternLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), RedactionConfig{
		Enabled:  true,
		Patterns: []string{string(long)},
	})
	assert.Error(t, err)
}
