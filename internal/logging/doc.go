// Package logging provides structured logging with OpenTelemetry integration.
//
// The package wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stdout and OpenTelemetry outputs
//   - automatic context fields (trace ids, document scope, session, request)
//   - secret redaction at the encoder
//   - level-aware sampling (errors are never sampled)
//   - a runtime-adjustable level for config reloads
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithScope(ctx, "user-1", "proj-1", "doc-1")
//	logger.Info(ctx, "document ingested", zap.Int("chunks", n))
//
// Output carries the correlation fields:
//
//	{
//	  "ts": "2026-03-02T10:15:30Z",
//	  "level": "info",
//	  "msg": "document ingested",
//	  "scope.owner": "user-1",
//	  "scope.project": "proj-1",
//	  "scope.document": "doc-1",
//	  "chunks": 12
//	}
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//	tl.AssertNoSecrets(t)
package logging
