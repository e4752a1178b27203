package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the HTTP header the request identifier travels in.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request ID string. The
	// request logger and the audit interceptor both read it from here, so a
	// log line and the audit entry for the same request always correlate.
	RequestIDKey = "request_id"

	// maxInboundRequestIDLen caps how much of a caller-supplied ID is trusted.
	// Anything longer is discarded and replaced, since the value ends up in
	// audit metadata and log indexes.
	maxInboundRequestIDLen = 64
)

// RequestIDMiddleware ensures every request carries a unique identifier.
//
// An inbound X-Request-ID from an upstream proxy or gateway is reused when it
// is present and of sane length; otherwise a fresh UUID v4 is minted. The
// value is stored under RequestIDKey for the logger and audit interceptor and
// echoed back in the response header so callers can quote it when reporting
// a problem.
//
// Register before any middleware that logs or audits:
//
//	router.Use(gin.Recovery())
//	router.Use(RequestIDMiddleware())
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxInboundRequestIDLen {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
