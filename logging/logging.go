package logging

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIdHeader carries the id used to correlate log lines of one request.
const RequestIdHeader = "X-Request-Id"

/**
* Global logger
 */
var logger = logrus.New()

var skipPaths []string = []string{}
var logRequests bool = true

func Log() *logrus.Logger {
	return logger
}

/**
* Configure the global logger. Unknown levels keep the current level.
 */
func Configure(logLevel string, jsonLogging bool, requestLogging bool, pathsToSkip []string) {
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		logger.SetLevel(logrus.DebugLevel)
	case "INFO":
		logger.SetLevel(logrus.InfoLevel)
	case "WARN":
		logger.SetLevel(logrus.WarnLevel)
	case "ERROR":
		logger.SetLevel(logrus.ErrorLevel)
	}

	if jsonLogging {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	logRequests = requestLogging
	skipPaths = pathsToSkip
	if len(skipPaths) > 0 {
		logger.Infof("Will skip request logging for paths %s.", skipPaths)
	}
}

func GinHandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := c.GetHeader(RequestIdHeader)
		if requestId == "" {
			requestId = uuid.NewString()
		}
		c.Set(RequestIdHeader, requestId)
		c.Header(RequestIdHeader, requestId)

		if !logRequests {
			c.Next()
			return
		}
		// Start timer
		start := time.Now()
		// the query is not logged, it may carry a session token
		path := c.Request.URL.Path

		// Process request
		c.Next()

		if contains(skipPaths, path) {
			return
		}

		latency := time.Since(start)
		method := c.Request.Method
		statusCode := c.Writer.Status()
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := logger.WithField("requestId", requestId)
		if errorMessage != "" {
			entry.Warnf("Request [%s]%s took %d ms - Result: %d - %s", method, path, latency.Milliseconds(), statusCode, errorMessage)
		} else {
			entry.Infof("Request [%s]%s took %d ms - Result: %d", method, path, latency.Milliseconds(), statusCode)
		}
	}
}

// RequestLogger returns an entry tagged with the request id assigned by GinHandlerFunc.
func RequestLogger(c *gin.Context) *logrus.Entry {
	return logger.WithField("requestId", c.GetString(RequestIdHeader))
}

/**
* Helper method to print objects with json-serialization information in a more human readable way
 */
func PrettyPrintObject(objectInterface interface{}) string {
	jsonBytes, err := json.Marshal(objectInterface)
	if err != nil {
		logger.Debugf("Was not able to pretty print the object: %v", objectInterface)
		return ""
	}
	return string(jsonBytes)
}

func init() {
	enableJsonLogging, err := strconv.ParseBool(os.Getenv("JSON_LOGGING_ENABLED"))
	if err != nil {
		enableJsonLogging = false
	}
	requestLogging, err := strconv.ParseBool(os.Getenv("LOG_REQUESTS"))
	if err != nil {
		requestLogging = true
	}
	var pathsToSkip []string
	if skipPathsEnv := os.Getenv("LOG_SKIP_PATHS"); skipPathsEnv != "" {
		pathsToSkip = strings.Split(skipPathsEnv, ",")
	}
	Configure(os.Getenv("LOG_LEVEL"), enableJsonLogging, requestLogging, pathsToSkip)
}

func contains(s []string, e string) bool {
	for _, a := range s {
		if a == e {
			return true
		}
	}
	return false
}
