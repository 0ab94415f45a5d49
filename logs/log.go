package logs

import (
	"log"
	"os"
)

// 定义日志级别常量（数值越大，级别越高）
const (
	LevelTrace   = iota // 0（最低，最详细）
	LevelDebug          // 1
	LevelVerbose        // 2
	LevelInfo           // 3
	LevelWarning        // 4
	LevelError          // 5（最高，最严重）
)

var logLevel = LevelInfo // 全局日志级别

// ServiceTag 标识当前服务实例，打到每一行日志的最前面
var ServiceTag = "custody"

// Logger 日志接口，db / vm / handlers 统一依赖这个接口
type Logger interface {
	Trace(format string, v ...interface{})
	Debug(format string, v ...interface{})
	Verbose(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// stdLogger 基于标准库 log 的默认实现
type stdLogger struct {
	traceLogger   *log.Logger
	debugLogger   *log.Logger
	verboseLogger *log.Logger
	infoLogger    *log.Logger
	warnLogger    *log.Logger
	errorLogger   *log.Logger
}

// 全局 Logger 实例
var logger *stdLogger

func init() {
	logger = &stdLogger{
		traceLogger:   log.New(os.Stdout, "[TRACE]   ", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile),
		debugLogger:   log.New(os.Stdout, "[DEBUG]   ", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile),
		verboseLogger: log.New(os.Stdout, "[VERBOSE] ", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile),
		infoLogger:    log.New(os.Stdout, "[INFO]    ", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile),
		warnLogger:    log.New(os.Stdout, "[WARN]    ", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile),
		errorLogger:   log.New(os.Stderr, "[ERROR]   ", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile),
	}
}

// SetLevel 调整全局日志级别
func SetLevel(level int) {
	if level >= LevelTrace && level <= LevelError {
		logLevel = level
	}
}

// Default 返回全局 Logger，供需要注入 Logger 接口的模块使用
func Default() Logger {
	return logger
}

// 包级别的日志方法
func Trace(format string, v ...interface{}) {
	logger.Trace(format, v...)
}

func Debug(format string, v ...interface{}) {
	logger.Debug(format, v...)
}

func Verbose(format string, v ...interface{}) {
	logger.Verbose(format, v...)
}

func Info(format string, v ...interface{}) {
	logger.Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	logger.Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	logger.Error(format, v...)
}

func (l *stdLogger) Trace(format string, v ...interface{}) {
	if logLevel <= LevelTrace {
		l.traceLogger.Printf(ServiceTag+" "+format, v...)
	}
}

func (l *stdLogger) Debug(format string, v ...interface{}) {
	if logLevel <= LevelDebug {
		l.debugLogger.Printf(ServiceTag+" "+format, v...)
	}
}

func (l *stdLogger) Verbose(format string, v ...interface{}) {
	if logLevel <= LevelVerbose {
		l.verboseLogger.Printf(ServiceTag+" "+format, v...)
	}
}

func (l *stdLogger) Info(format string, v ...interface{}) {
	if logLevel <= LevelInfo {
		l.infoLogger.Printf(ServiceTag+" "+format, v...)
	}
}

func (l *stdLogger) Warn(format string, v ...interface{}) {
	if logLevel <= LevelWarning {
		l.warnLogger.Printf(ServiceTag+" "+format, v...)
	}
}

func (l *stdLogger) Error(format string, v ...interface{}) {
	if logLevel <= LevelError {
		l.errorLogger.Printf(ServiceTag+" "+format, v...)
	}
}
