// Package logging provides structured logging for commcare-forge.
//
// It wraps zap with:
//   - a Trace level below Debug
//   - console output on stderr and an optional OpenTelemetry bridge
//   - context fields for trace, pipeline run, attempt and request
//   - redaction of sensitive keys plus secret scrubbing of messages and values
//   - sampling below error level
//
// # Usage
//
//	cfg, err := logging.FromSettings(appCfg.Logging)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, tel.LoggerProvider(), logging.WithScrubber(scrubber))
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithAttempt(ctx, 2)
//	logger.Info(ctx, "validation finished", zap.Bool("success", ok))
//
// Components that take a *zap.Logger receive Logger.Underlying().
//
// # Testing
//
//	logger := logging.NewTestLogger()
//	svc := NewService(logger.Underlying())
//	logger.AssertLogged(t, zapcore.InfoLevel, "validation finished")
package logging
