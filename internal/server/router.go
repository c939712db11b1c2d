package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/campuslabs/ballotbox/backend/internal/ballot"
	"github.com/campuslabs/ballotbox/backend/internal/catalog"
	"github.com/campuslabs/ballotbox/backend/internal/tally"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const voterIDContextKey = "ballotbox_voter_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingCatalog       = errors.New("catalog service dependency required")
	errMissingBallotService = errors.New("ballot service dependency required")
	errMissingTallyService  = errors.New("tally service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// VoterTokenValidator authenticates bearer tokens minted by the accounts
// subsystem.
type VoterTokenValidator interface {
	ValidateToken(token string) (uint, error)
}

// Dependencies wires the engine services into the HTTP surface. Clock must be
// the same time source the catalog buckets elections with, so listing payloads
// report statuses consistent with their bucket.
type Dependencies struct {
	TokenManager  VoterTokenValidator
	Catalog       *catalog.Service
	BallotService *ballot.Service
	TallyService  *tally.Service
	Dispatcher    *ResultsDispatcher
	Clock         func() time.Time
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the election engine.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}
	if deps.BallotService == nil {
		return nil, errMissingBallotService
	}
	if deps.TallyService == nil {
		return nil, errMissingTallyService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = NewResultsDispatcher()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:     deps.TokenManager,
		catalog:    deps.Catalog,
		ballots:    deps.BallotService,
		tallies:    deps.TallyService,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
	}

	router.GET("/elections", handler.handleListElections)
	router.GET("/elections/:id/results", handler.handleResults)
	router.GET("/elections/:id/results/stream", handler.handleResultsStream)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/elections/:id/ballot", handler.handleBallot)
	protected.GET("/elections/:id/eligibility", handler.handleEligibility)
	protected.POST("/elections/:id/votes", handler.handleCastBallot)

	return router, nil
}

type httpHandler struct {
	tokens     VoterTokenValidator
	catalog    *catalog.Service
	ballots    *ballot.Service
	tallies    *tally.Service
	dispatcher *ResultsDispatcher
	clock      func() time.Time
	logger     *zap.Logger
}

type electionPayload struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
}

type electionListPayload struct {
	Active   []electionPayload `json:"active"`
	Upcoming []electionPayload `json:"upcoming"`
	Past     []electionPayload `json:"past"`
}

func (h *httpHandler) handleListElections(c *gin.Context) {
	listing, err := h.catalog.ListElections(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list elections", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing_failed"})
		return
	}

	now := h.clock().UTC()
	response := electionListPayload{
		Active:   electionPayloads(listing.Active, now),
		Upcoming: electionPayloads(listing.Upcoming, now),
		Past:     electionPayloads(listing.Past, now),
	}
	c.JSON(http.StatusOK, response)
}

func electionPayloads(elections []catalog.Election, now time.Time) []electionPayload {
	payloads := make([]electionPayload, 0, len(elections))
	for _, election := range elections {
		payloads = append(payloads, electionPayload{
			ID:        election.ID,
			Name:      election.Name,
			StartTime: election.StartTime,
			EndTime:   election.EndTime,
			Status:    string(election.StatusAt(now)),
		})
	}
	return payloads
}

type candidatePayload struct {
	ID        uint   `json:"id"`
	FullName  string `json:"full_name"`
	PartyID   *uint  `json:"party_id,omitempty"`
	Biography string `json:"biography,omitempty"`
}

type ballotPositionPayload struct {
	PositionID uint               `json:"position_id"`
	Name       string             `json:"name"`
	Winners    int                `json:"winners"`
	Candidates []candidatePayload `json:"candidates"`
}

func (h *httpHandler) handleBallot(c *gin.Context) {
	electionID, ok := h.electionID(c)
	if !ok {
		return
	}

	ballotPositions, err := h.catalog.BallotPositions(c.Request.Context(), electionID)
	if err != nil {
		h.logger.Error("failed to load ballot", zap.Error(err), zap.Uint("election_id", electionID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ballot_load_failed"})
		return
	}

	response := make([]ballotPositionPayload, 0, len(ballotPositions))
	for _, ballotPosition := range ballotPositions {
		payload := ballotPositionPayload{
			PositionID: ballotPosition.Position.ID,
			Name:       ballotPosition.Position.Name,
			Winners:    ballotPosition.Position.Winners,
		}
		for _, candidate := range ballotPosition.Candidates {
			payload.Candidates = append(payload.Candidates, candidatePayload{
				ID:        candidate.ID,
				FullName:  candidate.FullName,
				PartyID:   candidate.PartyID,
				Biography: candidate.Biography,
			})
		}
		response = append(response, payload)
	}
	c.JSON(http.StatusOK, gin.H{"positions": response})
}

type eligibilityPayload struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func (h *httpHandler) handleEligibility(c *gin.Context) {
	electionID, ok := h.electionID(c)
	if !ok {
		return
	}
	voterID := c.GetUint(voterIDContextKey)

	decision, err := h.ballots.Eligibility(c.Request.Context(), voterID, electionID)
	if err != nil {
		if errors.Is(err, catalog.ErrElectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "election_not_found"})
			return
		}
		h.logger.Error("eligibility check failed", zap.Error(err), zap.Uint("election_id", electionID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "eligibility_check_failed"})
		return
	}

	c.JSON(http.StatusOK, eligibilityPayload{Allowed: decision.Allowed, Reason: string(decision.Reason)})
}

type castRequestPayload struct {
	Selections []castSelectionPayload `json:"selections"`
}

type castSelectionPayload struct {
	PositionID   uint   `json:"position_id"`
	CandidateIDs []uint `json:"candidate_ids"`
}

type castResponsePayload struct {
	ReceiptID     uint      `json:"receipt_id"`
	CorrelationID string    `json:"correlation_id"`
	ElectionID    uint      `json:"election_id"`
	Selections    int       `json:"selections"`
	CastAt        time.Time `json:"cast_at"`
}

func (h *httpHandler) handleCastBallot(c *gin.Context) {
	electionID, ok := h.electionID(c)
	if !ok {
		return
	}
	voterID := c.GetUint(voterIDContextKey)

	var request castRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Selections) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	selections := make([]ballot.Selection, 0, len(request.Selections))
	for _, selection := range request.Selections {
		selections = append(selections, ballot.Selection{
			PositionID:   selection.PositionID,
			CandidateIDs: selection.CandidateIDs,
		})
	}

	result, err := h.ballots.CastBallot(c.Request.Context(), voterID, electionID, selections, c.ClientIP())
	if err != nil {
		h.writeCastError(c, electionID, err)
		return
	}

	h.dispatcher.Publish(ResultsMessage{ElectionID: electionID, Timestamp: result.CastAt})

	c.JSON(http.StatusCreated, castResponsePayload{
		ReceiptID:     result.ReceiptID,
		CorrelationID: result.CorrelationID,
		ElectionID:    result.ElectionID,
		Selections:    result.Selections,
		CastAt:        result.CastAt,
	})
}

func (h *httpHandler) writeCastError(c *gin.Context, electionID uint, err error) {
	var invalidBallot *ballot.InvalidBallotError
	var storeFailure *ballot.StoreError

	switch {
	case errors.Is(err, catalog.ErrElectionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "election_not_found"})
	case errors.Is(err, ballot.ErrNotEligible):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_eligible"})
	case errors.Is(err, ballot.ErrElectionNotOpen):
		c.JSON(http.StatusForbidden, gin.H{"error": "election_not_open"})
	case errors.Is(err, ballot.ErrAlreadyVoted):
		c.JSON(http.StatusConflict, gin.H{"error": "already_voted"})
	case errors.As(err, &invalidBallot):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":       "invalid_ballot",
			"reason":      invalidBallot.Reason,
			"position_id": invalidBallot.PositionID,
		})
	case errors.As(err, &storeFailure):
		h.logger.Error("ballot commit unavailable", zap.Error(err), zap.Uint("election_id", electionID))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transient_store_error", "retryable": true})
	default:
		h.logger.Error("ballot cast failed", zap.Error(err), zap.Uint("election_id", electionID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cast_failed"})
	}
}

type candidateResultPayload struct {
	CandidateID uint    `json:"candidate_id"`
	FullName    string  `json:"full_name"`
	Votes       int64   `json:"votes"`
	Percent     float64 `json:"percent"`
}

type positionResultPayload struct {
	PositionID uint                     `json:"position_id"`
	Name       string                   `json:"name"`
	Winners    int                      `json:"winners"`
	TotalVotes int64                    `json:"total_votes"`
	Candidates []candidateResultPayload `json:"candidates"`
}

type resultsPayload struct {
	ElectionID     uint                    `json:"election_id"`
	Name           string                  `json:"name"`
	Status         string                  `json:"status"`
	Positions      []positionResultPayload `json:"positions"`
	BallotsCast    int64                   `json:"ballots_cast"`
	EligibleVoters int64                   `json:"eligible_voters"`
	TurnoutPercent float64                 `json:"turnout_percent"`
}

func (h *httpHandler) handleResults(c *gin.Context) {
	electionID, ok := h.electionID(c)
	if !ok {
		return
	}

	payload, err := h.resultsPayload(c, electionID)
	if err != nil {
		if errors.Is(err, catalog.ErrElectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "election_not_found"})
			return
		}
		h.logger.Error("failed to compute tally", zap.Error(err), zap.Uint("election_id", electionID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tally_failed"})
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleResultsStream(c *gin.Context) {
	electionID, ok := h.electionID(c)
	if !ok {
		return
	}
	if _, err := h.catalog.GetElection(c.Request.Context(), electionID); err != nil {
		if errors.Is(err, catalog.ErrElectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "election_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stream_failed"})
		return
	}

	messages, cleanup := h.dispatcher.Subscribe(c.Request.Context(), electionID)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	if payload, err := h.resultsPayload(c, electionID); err == nil {
		c.SSEvent(realtimeEventResults, payload)
		c.Writer.Flush()
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"ts": time.Now().UTC().Unix()})
			c.Writer.Flush()
		case _, open := <-messages:
			if !open {
				return
			}
			payload, err := h.resultsPayload(c, electionID)
			if err != nil {
				continue
			}
			c.SSEvent(realtimeEventResults, payload)
			c.Writer.Flush()
		}
	}
}

func (h *httpHandler) resultsPayload(c *gin.Context, electionID uint) (resultsPayload, error) {
	result, err := h.tallies.Results(c.Request.Context(), electionID)
	if err != nil {
		return resultsPayload{}, err
	}

	positions := make([]positionResultPayload, 0, len(result.Positions))
	for _, positionResult := range result.Positions {
		payload := positionResultPayload{
			PositionID: positionResult.Position.ID,
			Name:       positionResult.Position.Name,
			Winners:    positionResult.Position.Winners,
			TotalVotes: positionResult.TotalVotes,
		}
		for _, candidateResult := range positionResult.Candidates {
			payload.Candidates = append(payload.Candidates, candidateResultPayload{
				CandidateID: candidateResult.Candidate.ID,
				FullName:    candidateResult.Candidate.FullName,
				Votes:       candidateResult.Votes,
				Percent:     candidateResult.Percent,
			})
		}
		positions = append(positions, payload)
	}

	return resultsPayload{
		ElectionID:     result.Election.ID,
		Name:           result.Election.Name,
		Status:         string(result.Status),
		Positions:      positions,
		BallotsCast:    result.BallotsCast,
		EligibleVoters: result.EligibleVoters,
		TurnoutPercent: result.TurnoutPercent,
	}, nil
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	voterID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(voterIDContextKey, voterID)
	c.Next()
}

func (h *httpHandler) electionID(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || parsed == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_election_id"})
		return 0, false
	}
	return uint(parsed), true
}
