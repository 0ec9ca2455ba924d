package decision

import (
	"net/http"
	"strconv"

	"github.com/fiware/passphrase-pdp/model"
	"github.com/gin-gonic/gin"
)

const (
	TokenHeader     = "X-Session-Token"
	TokenQueryParam = "token"

	privilegeKey = "privilege"
)

// NotAuthorized is the single response of every denied request.
var NotAuthorized = model.ProblemDetails{Type: "Forbidden", Title: "Not authorized.", Status: http.StatusForbidden}

/**
* TokenExtractor reads the session token from a request: header first, then the query
* parameter, then the session cookie.
 */
type TokenExtractor struct {
	CookieName string
}

func (te TokenExtractor) Extract(c *gin.Context) string {
	if headerToken := c.GetHeader(TokenHeader); headerToken != "" {
		return headerToken
	}
	if queryToken := c.Query(TokenQueryParam); queryToken != "" {
		return queryToken
	}
	if te.CookieName == "" {
		return ""
	}
	cookieToken, err := c.Cookie(te.CookieName)
	if err != nil {
		return ""
	}
	return cookieToken
}

/**
* RequirePrivilege aborts with 403 unless the token grants the required privilege for the event
* of the eventId path parameter. The resolved privilege is available to later handlers via
* GetPrivilege.
 */
func RequirePrivilege(decider Decider, extractor TokenExtractor, required model.Privilege) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventId, err := strconv.Atoi(c.Param("eventId"))
		if err != nil || eventId <= 0 {
			logger.Debugf("Deny request with invalid event id %q.", c.Param("eventId"))
			c.AbortWithStatusJSON(http.StatusForbidden, NotAuthorized)
			return
		}
		decision := decider.Authorize(c.Request.Context(), extractor.Extract(c), eventId, required)
		if !decision.Decision {
			logger.Debugf("Denied the request because of: %s", decision.Reason)
			c.AbortWithStatusJSON(http.StatusForbidden, NotAuthorized)
			return
		}
		c.Set(privilegeKey, decision.Privilege)
		c.Next()
	}
}

// GetPrivilege returns the privilege resolved by RequirePrivilege.
func GetPrivilege(c *gin.Context) model.Privilege {
	privilege, ok := c.Get(privilegeKey)
	if !ok {
		return model.PrivilegeNone
	}
	return privilege.(model.Privilege)
}
