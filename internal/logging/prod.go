//go:build !dev
// +build !dev

package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger installs a JSON logger writing to logFilePath at info level.
// The caller owns the returned file.
func InitLogger(logFilePath string) (*os.File, error) {
	file, err := openLogFile(logFilePath)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(jsonEncoder(), zapcore.AddSync(file), zapcore.InfoLevel)
	SetLogger(zap.New(core, zap.AddCaller()))

	return file, nil
}
