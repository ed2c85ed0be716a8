package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/terminal-bench/flightsurety/internal/flights"
	"github.com/terminal-bench/flightsurety/internal/surety"
	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Request types

type OperationalRequest struct {
	Operational *bool `json:"operational" binding:"required"`
}

type CallerRequest struct {
	Address string `json:"address" binding:"required"`
}

type RegistrationRequest struct {
	Airline string `json:"airline" binding:"required"`
}

type ValueRequest struct {
	Value decimal.Amount `json:"value"`
}

type FlightRequest struct {
	Name      string `json:"name" binding:"required"`
	Timestamp int64  `json:"timestamp" binding:"required"`
}

type OracleResponseRequest struct {
	FlightKey   string      `json:"flight_key" binding:"required"`
	OracleIndex *uint64     `json:"oracle_index" binding:"required"`
	Status      interface{} `json:"status" binding:"required"`
}

// StatusRequestView is the read model of an oracle request
type StatusRequestView struct {
	FlightKey flights.Key    `json:"flight_key"`
	Nonce     uint64         `json:"nonce"`
	Assigned  []uint64       `json:"assigned"`
	Responses map[string]int `json:"responses"`
	Closed    bool           `json:"closed"`
	Final     string         `json:"final,omitempty"`
}

func (g *Gateway) call(c *gin.Context, value decimal.Amount) surety.Call {
	return surety.Call{
		Caller:        callerOf(c),
		Value:         value,
		CorrelationID: c.GetString("correlation_id"),
	}
}

// bindValue reads an optional {"value": ...} body
func bindValue(c *gin.Context) (decimal.Amount, bool) {
	var req ValueRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request")
		return decimal.Zero, false
	}
	return req.Value, true
}

func addressParam(c *gin.Context, name string) (models.Address, bool) {
	addr, err := models.ParseAddress(c.Param(name))
	if err != nil {
		badRequest(c, fmt.Sprintf("invalid %s", name))
		return "", false
	}
	return addr, true
}

func indexParam(c *gin.Context) (uint64, bool) {
	idx, err := strconv.ParseUint(c.Param("index"), 10, 64)
	if err != nil {
		badRequest(c, "invalid registration index")
		return 0, false
	}
	return idx, true
}

func keyParam(c *gin.Context) (flights.Key, bool) {
	key, err := flights.ParseKey(c.Param("key"))
	if err != nil {
		badRequest(c, "invalid flight key")
		return "", false
	}
	return key, true
}

// Handlers

func (g *Gateway) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"operational": g.app.IsOperational(),
		"head":        g.app.Head(),
	})
}

func (g *Gateway) getOperational(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operational": g.app.IsOperational()})
}

func (g *Gateway) setOperational(c *gin.Context) {
	var req OperationalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if err := g.app.SetOperatingStatus(c.Request.Context(), g.call(c, decimal.Zero), *req.Operational); err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operational": g.app.IsOperational()})
}

func (g *Gateway) listCallers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"callers": g.app.Data().AuthorizedCallers()})
}

func (g *Gateway) authorizeCaller(c *gin.Context) {
	var req CallerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	contract, err := models.ParseAddress(req.Address)
	if err != nil {
		badRequest(c, "invalid address")
		return
	}
	if err := g.app.AuthorizeCaller(c.Request.Context(), g.call(c, decimal.Zero), contract); err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"address": contract, "authorized": true})
}

func (g *Gateway) deauthorizeCaller(c *gin.Context) {
	contract, ok := addressParam(c, "address")
	if !ok {
		return
	}
	if err := g.app.DeauthorizeCaller(c.Request.Context(), g.call(c, decimal.Zero), contract); err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": contract, "authorized": false})
}

func (g *Gateway) listRegistrations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"submitted": g.app.CurrentSubmitted(),
		"pending":   g.app.PendingSubmissions(),
	})
}

func (g *Gateway) submitRegistration(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	airline, err := models.ParseAddress(req.Airline)
	if err != nil {
		badRequest(c, "invalid airline address")
		return
	}
	idx, err := g.app.SubmitRegistration(c.Request.Context(), g.call(c, decimal.Zero), airline)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"airline": airline, "reg_index": idx})
}

func (g *Gateway) getRegistration(c *gin.Context) {
	idx, ok := indexParam(c)
	if !ok {
		return
	}
	rec, err := g.app.Submission(idx)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (g *Gateway) getVote(c *gin.Context) {
	idx, ok := indexParam(c)
	if !ok {
		return
	}
	// without ?voter= the answer is for the authenticated caller
	voter := callerOf(c)
	if q, present := c.GetQuery("voter"); present || voter.IsZero() {
		parsed, err := models.ParseAddress(q)
		if err != nil {
			badRequest(c, "invalid voter")
			return
		}
		voter = parsed
	}
	voted, err := g.app.GetAirlineVote(idx, voter)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reg_index": idx, "voter": voter, "voted": voted})
}

func (g *Gateway) voteRegistration(c *gin.Context) {
	idx, ok := indexParam(c)
	if !ok {
		return
	}
	votes, err := g.app.VoteRegistration(c.Request.Context(), g.call(c, decimal.Zero), idx)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reg_index": idx, "votes": votes})
}

func (g *Gateway) executeRegistration(c *gin.Context) {
	idx, ok := indexParam(c)
	if !ok {
		return
	}
	res, err := g.app.ExecuteRegistration(c.Request.Context(), g.call(c, decimal.Zero), idx)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case models.IsBenign(err) && res != nil:
		g.respondOutcome(c, res, err)
	case models.IsBenign(err):
		g.respondOutcome(c, nil, err)
	default:
		g.respondError(c, err)
	}
}

func (g *Gateway) payAirline(c *gin.Context) {
	value, ok := bindValue(c)
	if !ok {
		return
	}
	res, err := g.app.PayAirline(c.Request.Context(), g.call(c, value))
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (g *Gateway) getAirline(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, g.app.Airline(addr))
}

func (g *Gateway) getRegIndex(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	idx, err := g.app.GetRegIndex(addr)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"airline": addr, "reg_index": idx})
}

func (g *Gateway) listFlights(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"flights": g.app.CurrentFlights()})
}

func (g *Gateway) registerFlight(c *gin.Context) {
	var req FlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	key, err := g.app.RegisterFlight(c.Request.Context(), g.call(c, decimal.Zero), req.Name, req.Timestamp)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"flight_key": key})
}

func (g *Gateway) getFlight(c *gin.Context) {
	key, ok := keyParam(c)
	if !ok {
		return
	}
	f, err := g.app.FlightInformation(key)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (g *Gateway) listPolicies(c *gin.Context) {
	key, ok := keyParam(c)
	if !ok {
		return
	}
	policies, err := g.app.Policies(key)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flight_key": key, "policies": policies})
}

func (g *Gateway) purchaseInsurance(c *gin.Context) {
	key, ok := keyParam(c)
	if !ok {
		return
	}
	value, ok := bindValue(c)
	if !ok {
		return
	}
	res, err := g.app.PurchaseInsurance(c.Request.Context(), g.call(c, value), key)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (g *Gateway) getStatusRequest(c *gin.Context) {
	key, ok := keyParam(c)
	if !ok {
		return
	}
	req, err := g.app.OracleRequest(key)
	if err != nil {
		g.respondError(c, err)
		return
	}

	view := StatusRequestView{
		FlightKey: req.FlightKey,
		Nonce:     req.Nonce,
		Assigned:  req.Assigned,
		Responses: make(map[string]int, len(req.Responses)),
		Closed:    req.Closed,
	}
	for status, indexes := range req.Responses {
		view.Responses[status.String()] = len(indexes)
	}
	if req.Closed {
		view.Final = req.Final.String()
	}
	c.JSON(http.StatusOK, view)
}

func (g *Gateway) fetchFlightStatus(c *gin.Context) {
	key, ok := keyParam(c)
	if !ok {
		return
	}
	res, err := g.app.FetchFlightStatus(c.Request.Context(), g.call(c, decimal.Zero), key)
	switch {
	case err == nil && res.Opened:
		c.JSON(http.StatusCreated, res)
	case err == nil:
		c.JSON(http.StatusOK, res)
	case models.IsBenign(err):
		g.respondOutcome(c, nil, err)
	default:
		g.respondError(c, err)
	}
}

func (g *Gateway) getBalance(c *gin.Context) {
	caller := callerOf(c)
	c.JSON(http.StatusOK, gin.H{"account": caller, "credit": g.app.Balance(caller)})
}

func (g *Gateway) withdraw(c *gin.Context) {
	amount, err := g.app.Withdraw(c.Request.Context(), g.call(c, decimal.Zero))
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": callerOf(c), "amount": amount})
}

func (g *Gateway) registerOracle(c *gin.Context) {
	value, ok := bindValue(c)
	if !ok {
		return
	}
	res, err := g.app.RegisterOracle(c.Request.Context(), g.call(c, value))
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (g *Gateway) getOracle(c *gin.Context) {
	o, err := g.app.Oracle(callerOf(c))
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (g *Gateway) submitOracleResponse(c *gin.Context) {
	var req OracleResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	key, err := flights.ParseKey(req.FlightKey)
	if err != nil {
		badRequest(c, "invalid flight key")
		return
	}
	status, err := models.ParseFlightStatus(fmt.Sprint(req.Status))
	if err != nil {
		badRequest(c, "invalid status")
		return
	}

	res, err := g.app.SubmitOracleResponse(c.Request.Context(), g.call(c, decimal.Zero), key, *req.OracleIndex, status)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case models.IsBenign(err):
		g.respondOutcome(c, nil, err)
	default:
		g.respondError(c, err)
	}
}

func (g *Gateway) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, g.app.Stats())
}

func (g *Gateway) listEvents(c *gin.Context) {
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		badRequest(c, "invalid after")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultEventLimit)))
	if err != nil || limit <= 0 {
		badRequest(c, "invalid limit")
		return
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	evts := g.app.Events(after, limit)
	c.JSON(http.StatusOK, gin.H{
		"events": evts,
		"head":   g.app.Data().Log().Head(),
	})
}
