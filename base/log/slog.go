package log

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

func setupSLog(level Severity) {
	handlerLogLevel := level.toSLogLevel()

	var out io.Writer = os.Stderr
	noColor := true
	if GlobalWriter != nil {
		out = GlobalWriter
		noColor = !GlobalWriter.UseColor()
	}

	logHandler := tint.NewHandler(out, &tint.Options{
		AddSource:  true,
		Level:      handlerLogLevel,
		TimeFormat: timeFormat,
		NoColor:    noColor,
	})

	// Set as default logger.
	slog.SetDefault(slog.New(logHandler))
	// Set actual log level.
	slog.SetLogLoggerLevel(handlerLogLevel)
}
