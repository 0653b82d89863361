// Package logger constructs the zap sugared logger shared by every
// subsystem. All components receive their logger through their Config
// structs; nothing in the archive logs through a package-level default.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-encoded sugared logger tagged with the given
// service name. Output goes to stderr so the tst CLI's exit status stays the
// only thing on stdout.
func New(service string) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		zapcore.InfoLevel,
	)

	return zap.New(core).Sugar().With("service", service)
}

// NewNop returns a logger that discards everything. Used by tests and
// benchmarks that don't inspect log output.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
