package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/fiware/passphrase-pdp/logging"
	"github.com/fiware/passphrase-pdp/model"
	"github.com/gin-gonic/gin"
)

type linkRequest struct {
	DerivableFrom *int `json:"derivableFrom"`
}

type affectedResponse struct {
	Passphrases []int `json:"passphrases"`
}

func (s *authServer) getPassphrases(c *gin.Context) {
	eventId, ok := eventIdParam(c)
	if !ok {
		return
	}
	passphrases, httpErr := s.repo.GetEventPassphrases(c.Request.Context(), eventId)
	if httpErr != (model.HttpError{}) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, model.ProblemDetails{Type: "RepositoryError", Status: http.StatusInternalServerError, Title: "Unable to get passphrases from repo", Detail: httpErr.Message})
		return
	}
	obfuscated := make([]model.Passphrase, 0, len(passphrases))
	for _, p := range passphrases {
		obfuscated = append(obfuscated, p.Obfuscated())
	}
	c.AbortWithStatusJSON(http.StatusOK, obfuscated)
}

func (s *authServer) createPassphrase(c *gin.Context) {
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

	var candidate model.Passphrase
	err = json.Unmarshal(bodyData, &candidate)
	if err != nil {
		logger.Debugf("Was not able to unmarshal the passphrase: %v", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}
	if candidate.EventId != 0 && candidate.EventId != eventId {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Event id cannot differ from the path."})
		return
	}
	candidate.EventId = eventId

	created, err := s.gate.Engine().Create(c.Request.Context(), candidate)
	if err != nil {
		abortWithError(c, "Failed to create passphrase.", err)
		return
	}
	logging.RequestLogger(c).Infof("Created %s passphrase %d for event %d.", created.Role, created.Id, eventId)
	c.AbortWithStatusJSON(http.StatusCreated, created.Obfuscated())
}

func (s *authServer) deletePassphrase(c *gin.Context) {
	id, ok := s.eventPassphraseParam(c)
	if !ok {
		return
	}
	deleted, err := s.gate.Engine().Delete(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, "Failed to delete passphrase.", err)
		return
	}
	c.AbortWithStatusJSON(http.StatusOK, affectedResponse{Passphrases: deleted})
}

func (s *authServer) linkPassphrase(c *gin.Context) {
	id, ok := s.eventPassphraseParam(c)
	if !ok {
		return
	}
	bodyData, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to read body", Detail: err.Error()})
		return
	}
	var request linkRequest
	if err = json.Unmarshal(bodyData, &request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "BadRequest", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}
	if err = s.gate.Engine().Link(c.Request.Context(), id, request.DerivableFrom); err != nil {
		abortWithError(c, "Failed to link passphrase.", err)
		return
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func (s *authServer) revokePassphrase(c *gin.Context) {
	id, ok := s.eventPassphraseParam(c)
	if !ok {
		return
	}
	revoked, err := s.gate.Revoke(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, "Failed to revoke passphrase.", err)
		return
	}
	logging.RequestLogger(c).Infof("Revoked passphrases %v of event %s.", revoked, c.Param("eventId"))
	c.AbortWithStatusJSON(http.StatusOK, affectedResponse{Passphrases: revoked})
}

// passphrases of other events are reported as not found
func (s *authServer) eventPassphraseParam(c *gin.Context) (id int, ok bool) {
	eventId, ok := eventIdParam(c)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "InvalidParameter", Status: http.StatusBadRequest, Title: "Invalid path parameter", Detail: fmt.Sprintf("Id is not a valid number: %s", c.Param("id"))})
		return 0, false
	}
	p, httpErr := s.repo.GetPassphrase(c.Request.Context(), id)
	if httpErr == (model.HttpError{}) && p.EventId != eventId {
		httpErr = model.HttpError{Status: http.StatusNotFound, Message: fmt.Sprintf("Passphrase %d not found.", id)}
	}
	if httpErr != (model.HttpError{}) {
		c.AbortWithStatusJSON(httpErr.Status, model.ProblemDetails{Type: "NotFound", Status: httpErr.Status, Title: "Passphrase not found.", Detail: httpErr.Message})
		return 0, false
	}
	return id, true
}
