package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/terminal-bench/flightsurety/internal/surety"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{models.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{models.ErrNotOperational, http.StatusServiceUnavailable, "not_operational"},
	{models.ErrNotFound, http.StatusNotFound, "not_found"},
	{models.ErrDuplicateFlight, http.StatusConflict, "duplicate_flight"},
	{models.ErrAlreadySubmitted, http.StatusConflict, "already_submitted"},
	{models.ErrAlreadyRegistered, http.StatusConflict, "already_registered"},
	{models.ErrDuplicateVote, http.StatusConflict, "duplicate_vote"},
	{models.ErrFlightResolved, http.StatusConflict, "flight_resolved"},
	{models.ErrStakeCapExceeded, http.StatusUnprocessableEntity, "stake_cap_exceeded"},
	{models.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
	{models.ErrInvalidArgument, http.StatusUnprocessableEntity, "invalid_argument"},
	{models.ErrNothingToWithdraw, http.StatusUnprocessableEntity, "nothing_to_withdraw"},
	{models.ErrNotAssigned, http.StatusUnprocessableEntity, "not_assigned"},
	{models.ErrInsufficientOracles, http.StatusUnprocessableEntity, "insufficient_oracles"},
	{models.ErrQuorumNotReached, http.StatusAccepted, "quorum_not_reached"},
	{models.ErrRequestClosed, http.StatusAccepted, "request_closed"},
	{surety.ErrJournal, http.StatusInternalServerError, "journal"},
}

func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// respondError writes err with its mapped status. Internal failures are
// logged and not echoed to the client.
func (g *Gateway) respondError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error().Err(err).
			Str("correlation_id", c.GetString("correlation_id")).
			Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error", "code": code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

// respondOutcome writes a benign outcome as 202 together with the partial
// result, if any.
func (g *Gateway) respondOutcome(c *gin.Context, result interface{}, err error) {
	_, code := classify(err)
	body := gin.H{"outcome": code, "message": err.Error()}
	if code == "request_closed" {
		body["ignored"] = true
	}
	if result != nil {
		body["result"] = result
	}
	c.JSON(http.StatusAccepted, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
