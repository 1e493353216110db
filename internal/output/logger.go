package output

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/telsin/riptide/internal/utils"
)

// InitLogger configures the global logger. Debug mode lowers the level and
// additionally writes JSON lines to a rotating file next to the working
// directory, so verbose runs stay inspectable after the fact.
func InitLogger(debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}
	var sink io.Writer = console
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		sink = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   utils.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
		})
	}
	log.Logger = zerolog.New(sink).With().Timestamp().Logger()
}

func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func SetLogOutput(w io.Writer) {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}
