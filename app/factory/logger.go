package factory

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// NewModuleLogger returns a logger tagged with the owning module name.
func NewModuleLogger(module string) logrus.FieldLogger {
	return logrus.StandardLogger().WithField("module", module)
}

// LoggerWithContext adds the echo request id to a module logger so log
// lines from one request can be correlated.
func LoggerWithContext(logger logrus.FieldLogger, c echo.Context) logrus.FieldLogger {
	if c == nil {
		return logger
	}

	requestID := c.Request().Header.Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = c.Response().Header().Get(echo.HeaderXRequestID)
	}
	if requestID == "" {
		return logger
	}

	return logger.WithField("request_id", requestID)
}
