//go:build dev
// +build dev

package logging

import (
	"os"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	dim  = color.New(color.FgHiBlack).SprintFunc()
	inf  = color.New(color.FgGreen, color.Bold).SprintFunc()
	dbg  = color.New(color.FgCyan, color.Bold).SprintFunc()
	wrn  = color.New(color.FgMagenta, color.Bold).SprintFunc()
	errC = color.New(color.FgRed, color.Bold).SprintFunc()
	fat  = color.New(color.FgHiRed, color.Bold, color.BgBlack).SprintFunc()
	msgC = color.New(color.FgWhite, color.Bold).SprintFunc()
)

// InitLogger tees a coloured console core (debug and up) with the JSON file core.
func InitLogger(logFilePath string) (*os.File, error) {
	file, err := openLogFile(logFilePath)
	if err != nil {
		return nil, err
	}

	consoleCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		MessageKey:    "msg",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(dim(t.Format("15:04:05")))
		},
		EncodeLevel:    colorLevel,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     func(n string, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(msgC(n)) },
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), zapcore.DebugLevel),
		zapcore.NewCore(jsonEncoder(), zapcore.AddSync(file), zapcore.DebugLevel),
	)
	SetLogger(zap.New(core, zap.AddCaller(), zap.Development()))

	return file, nil
}

func colorLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapcore.DebugLevel:
		enc.AppendString(dbg("DBG"))
	case zapcore.InfoLevel:
		enc.AppendString(inf("INF"))
	case zapcore.WarnLevel:
		enc.AppendString(wrn("WRN"))
	case zapcore.ErrorLevel:
		enc.AppendString(errC("ERR"))
	case zapcore.FatalLevel, zapcore.PanicLevel, zapcore.DPanicLevel:
		enc.AppendString(fat("FTL"))
	default:
		enc.AppendString(l.CapitalString())
	}
}
