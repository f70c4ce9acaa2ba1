package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/qs3c/codeforge_server/config"
)

var levels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// ParseLevel 未知级别按 info 处理
func ParseLevel(level string) zapcore.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l
	}
	return zapcore.InfoLevel
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// FileName 按日期命名的日志文件
func FileName(dir, name string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", name, now.Format("20060102")))
}

// New 创建 JSON logger，配置了目录时同时写入滚动文件
func New(cfg config.LogConfig, name string) *zap.Logger {
	level := ParseLevel(cfg.Level)
	encoder := zapcore.NewJSONEncoder(encoderConfig())

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
	}
	if cfg.Dir != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:  FileName(cfg.Dir, name, time.Now()),
			MaxSize:   100, // MB
			MaxAge:    5,   // days
			Compress:  true,
			LocalTime: true,
		})
		cores = append(cores, zapcore.NewCore(encoder, fileWriter, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Named(name)
}
