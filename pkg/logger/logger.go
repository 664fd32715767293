package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New picks the encoder for the given environment. Anything other than
// "development" gets the production JSON logger.
func New(serviceName, environment string) *zap.Logger {
	if environment == "development" {
		return NewDevelopmentLogger(serviceName)
	}
	return NewLogger(serviceName)
}

// NewLogger creates a JSON logger suitable for log shipping
func NewLogger(serviceName string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	return build(config)
}

// NewDevelopmentLogger creates a console logger with colored levels
func NewDevelopmentLogger(serviceName string) *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	return build(config)
}

func build(config zap.Config) *zap.Logger {
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
