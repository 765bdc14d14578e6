// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"sitetrack/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger once at startup.
//
//   - LOG_PRETTY=true renders a colored console writer for local work;
//     otherwise raw JSON goes to stdout for log shippers.
//   - Every line carries the service name and instance ID so logs from
//     multiple replicas stay attributable.
//   - With LOG_SAMPLE_N > 1, Debug/Info lines are sampled 1/N.
//     Warn/Error are never sampled; drop accounting must stay complete.
//   - The stdlib logger is routed into zerolog so startup fail-fast
//     paths (config, AWS client) land in the same stream.
func Init(cfg config.Config) {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	} else {
		w = os.Stdout
	}

	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	logger := base
	if cfg.LogSampleN > 1 {
		logger = base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}

	zlog.Logger = logger

	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}
