package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/fiware/passphrase-pdp/config"
	"github.com/fiware/passphrase-pdp/decision"
	"github.com/fiware/passphrase-pdp/logging"
	"github.com/fiware/passphrase-pdp/model"
	"github.com/fiware/passphrase-pdp/passphrase"
	"github.com/gin-gonic/gin"
)

const (
	eventIdHeader           = "X-Event-Id"
	requiredPrivilegeHeader = "X-Required-Privilege"
	privilegeHeader         = "X-Privilege"
)

var invalidPassphrase = model.ProblemDetails{Type: "InvalidPassphrase", Title: "Invalid passphrase.", Status: http.StatusUnprocessableEntity}

type authServer struct {
	gate      *decision.Gate
	repo      passphrase.PassphraseRepository
	extractor decision.TokenExtractor
	cookie    config.Cookie
}

func newAuthServer(gate *decision.Gate, repo passphrase.PassphraseRepository, cookie config.Cookie) *authServer {
	return &authServer{gate: gate, repo: repo, extractor: decision.TokenExtractor{CookieName: cookie.Name}, cookie: cookie}
}

type loginRequest struct {
	Passphrase string `json:"passphrase"`
}

type sessionResponse struct {
	SessionToken string          `json:"sessionToken"`
	Privilege    model.Privilege `json:"privilege"`
}

type linkResponse struct {
	SessionToken string `json:"sessionToken"`
	Query        string `json:"query"`
}

type eventPrivilege struct {
	EventId   int             `json:"eventId"`
	Privilege model.Privilege `json:"privilege"`
}

func (s *authServer) require(required model.Privilege) gin.HandlerFunc {
	return decision.RequirePrivilege(s.gate, s.extractor, required)
}

func (s *authServer) login(c *gin.Context) {
	eventId, ok := eventIdParam(c)
	if !ok {
		return
	}
	bodyData, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.Debugf("Was not able to read the body, return error %v.", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to read body", Detail: err.Error()})
		return
	}
	var request loginRequest
	if err = json.Unmarshal(bodyData, &request); err != nil || request.Passphrase == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: "A passphrase is required."})
		return
	}

	newToken, err := s.gate.Login(c.Request.Context(), eventId, request.Passphrase, s.extractor.Extract(c))
	if errors.Is(err, model.ErrUnknownSecret) {
		logging.RequestLogger(c).Warnf("Failed login for event %d from %s.", eventId, c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, invalidPassphrase)
		return
	}
	if err != nil {
		abortWithError(c, "Failed to login.", err)
		return
	}
	privilege, err := s.gate.Privilege(c.Request.Context(), newToken, eventId)
	if err != nil {
		abortWithError(c, "Failed to login.", err)
		return
	}
	logging.RequestLogger(c).Infof("Successful login for event %d with privilege %s.", eventId, privilege)
	s.issue(c, newToken)
	c.AbortWithStatusJSON(http.StatusOK, sessionResponse{SessionToken: newToken, Privilege: privilege})
}

func (s *authServer) logout(c *gin.Context) {
	eventId, ok := eventIdParam(c)
	if !ok {
		return
	}
	newToken, err := s.gate.Logout(c.Request.Context(), eventId, s.extractor.Extract(c))
	if err != nil {
		abortWithError(c, "Failed to logout.", err)
		return
	}
	s.issue(c, newToken)
	c.AbortWithStatusJSON(http.StatusOK, sessionResponse{SessionToken: newToken, Privilege: model.PrivilegeNone})
}

func (s *authServer) getPrivilege(c *gin.Context) {
	eventId, ok := eventIdParam(c)
	if !ok {
		return
	}
	privilege, err := s.gate.Privilege(c.Request.Context(), s.extractor.Extract(c), eventId)
	if err != nil {
		abortWithError(c, "Failed to resolve privilege.", err)
		return
	}
	c.AbortWithStatusJSON(http.StatusOK, eventPrivilege{EventId: eventId, Privilege: privilege})
}

func (s *authServer) listPrivileges(c *gin.Context) {
	privileges, err := s.gate.Privileges(c.Request.Context(), s.extractor.Extract(c))
	if err != nil {
		abortWithError(c, "Failed to resolve privileges.", err)
		return
	}
	eventPrivileges := []eventPrivilege{}
	for eventId, privilege := range privileges {
		eventPrivileges = append(eventPrivileges, eventPrivilege{EventId: eventId, Privilege: privilege})
	}
	sort.Slice(eventPrivileges, func(i, j int) bool { return eventPrivileges[i].EventId < eventPrivileges[j].EventId })
	c.AbortWithStatusJSON(http.StatusOK, eventPrivileges)
}

/**
* Derives a link token for the event. The caller's own session is left untouched.
 */
func (s *authServer) shareableLink(c *gin.Context) {
	eventId, ok := eventIdParam(c)
	if !ok {
		return
	}
	linkToken, err := s.gate.ShareableLink(c.Request.Context(), s.extractor.Extract(c), eventId)
	if err != nil {
		abortWithError(c, "Failed to create shareable link.", err)
		return
	}
	query := url.Values{decision.TokenQueryParam: []string{linkToken}}.Encode()
	c.AbortWithStatusJSON(http.StatusOK, linkResponse{SessionToken: linkToken, Query: query})
}

/**
* Authorization check for reverse proxies. Answers 204 on allow and 403 on deny.
 */
func (s *authServer) authz(c *gin.Context) {
	eventId, err := strconv.Atoi(c.GetHeader(eventIdHeader))
	if err != nil || eventId <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Invalid event id.", Detail: "The X-Event-Id header needs to be a positive number."})
		return
	}
	requirement := c.GetHeader(requiredPrivilegeHeader)
	if requirement == "" {
		requirement = "read"
	}
	required, err := model.ParseRequirement(requirement)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Invalid privilege requirement.", Detail: err.Error()})
		return
	}

	authDecision := s.gate.Authorize(c.Request.Context(), s.extractor.Extract(c), eventId, required)
	if !authDecision.Decision {
		logging.RequestLogger(c).Debugf("Denied the request because of: %s", authDecision.Reason)
		c.AbortWithStatusJSON(http.StatusForbidden, decision.NotAuthorized)
		return
	}
	c.Header(privilegeHeader, authDecision.Privilege.String())
	c.AbortWithStatus(http.StatusNoContent)
}

func (s *authServer) issue(c *gin.Context, sessionToken string) {
	c.Header(decision.TokenHeader, sessionToken)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cookie.Name, sessionToken, s.cookie.MaxAge, "/", "", s.cookie.Secure, true)
}

func eventIdParam(c *gin.Context) (eventId int, ok bool) {
	eventId, err := strconv.Atoi(c.Param("eventId"))
	if err != nil || eventId <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Invalid event id.", Detail: c.Param("eventId")})
		return 0, false
	}
	return eventId, true
}

/**
* Maps the error taxonomy to problem details. Token and privilege failures all look the same.
 */
func abortWithError(c *gin.Context, title string, err error) {
	var httpErr *model.HttpError
	switch {
	case errors.Is(err, model.ErrMalformedToken), errors.Is(err, model.ErrInvalidSignature), errors.Is(err, model.ErrInsufficientPrivilege):
		logging.RequestLogger(c).Debugf("%s %v", title, err)
		c.AbortWithStatusJSON(http.StatusForbidden, decision.NotAuthorized)
	case errors.Is(err, model.ErrCycleDetected):
		c.AbortWithStatusJSON(http.StatusConflict, model.ProblemDetails{Type: "CycleDetected", Status: http.StatusConflict, Title: title, Detail: err.Error()})
	case errors.Is(err, model.ErrNoDerivationSource):
		c.AbortWithStatusJSON(http.StatusConflict, model.ProblemDetails{Type: "Conflict", Status: http.StatusConflict, Title: title, Detail: err.Error()})
	case errors.Is(err, model.ErrInvalidDerivation):
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: title, Detail: err.Error()})
	case errors.As(err, &httpErr) && httpErr.Status < http.StatusInternalServerError:
		c.AbortWithStatusJSON(httpErr.Status, model.ProblemDetails{Type: "RepositoryError", Status: httpErr.Status, Title: title, Detail: httpErr.Message})
	default:
		logging.RequestLogger(c).Warnf("%s Error: %v", title, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, model.ProblemDetails{Type: "InternalError", Status: http.StatusInternalServerError, Title: title})
	}
}
