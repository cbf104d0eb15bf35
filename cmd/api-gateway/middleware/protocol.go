package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lgulliver/stockpile/pkg/types"
)

// ProtocolHeader carries the client's and server's upload protocol versions
const ProtocolHeader = "Upload-Protocol-Version"

// ProtocolChecker decides whether a client version is acceptable
type ProtocolChecker interface {
	ServerVersion() string
	Check(clientVersion string) error
}

// ProtocolVersionMiddleware advertises the server version and rejects
// clients whose declared version falls outside the accepted range. Clients
// that send no version are accepted.
func ProtocolVersionMiddleware(checker ProtocolChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header(ProtocolHeader, checker.ServerVersion())

		if version := c.GetHeader(ProtocolHeader); version != "" {
			if err := checker.Check(version); err != nil {
				c.AbortWithStatusJSON(http.StatusPreconditionFailed, types.ErrorResponse{
					Status:  "error",
					Message: err.Error(),
				})
				return
			}
		}

		c.Next()
	}
}
