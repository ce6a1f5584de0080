package handler

import (
	"errors"
	"io"
	"log"

	"shifttrack/middleware"
	"shifttrack/services"
	"shifttrack/usecase"
	"shifttrack/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

type SessionHandler struct {
	service  *usecase.SessionService
	verifier *services.TokenVerifier
}

func NewSessionHandler(service *usecase.SessionService, verifier *services.TokenVerifier) *SessionHandler {
	return &SessionHandler{service: service, verifier: verifier}
}

type startRequest struct {
	Device   string `json:"device" binding:"omitempty,max=200"`
	Location string `json:"location" binding:"omitempty,max=300,coordinates"`
}

type sessionRequest struct {
	SessionID string `json:"session_id" binding:"omitempty,max=64"`
}

type beaconRequest struct {
	SessionID string `json:"session_id" binding:"omitempty,max=64"`
	Token     string `json:"token"`
}

// writeSessionError maps usecase failures onto the two signals clients understand.
func writeSessionError(c *gin.Context, op string, err error) {
	if errors.Is(err, usecase.ErrNoActiveSession) {
		utils.BadRequest(c, "No active session")
		return
	}
	log.Printf("Session %s failed for user %s: %v", op, c.GetString(middleware.ContextUserID), err)
	utils.InternalError(c, "Internal error")
}

// bindOptional binds a JSON body regardless of content type; an empty body is fine.
func bindOptional(c *gin.Context, dst interface{}) error {
	if c.Request.Body == nil {
		return nil
	}
	if err := binding.JSON.Bind(c.Request, dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func lookupFor(c *gin.Context, sessionID string) usecase.Lookup {
	userID := c.GetString(middleware.ContextUserID)
	if sessionID != "" {
		return usecase.ByID(sessionID).OwnedBy(userID)
	}
	return usecase.ByUser(userID)
}

func (h *SessionHandler) Start(c *gin.Context) {
	var req startRequest
	if err := bindOptional(c, &req); err != nil {
		utils.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.service.Start(c.Request.Context(), usecase.StartRequest{
		UserID:    c.GetString(middleware.ContextUserID),
		Device:    req.Device,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
		Location:  req.Location,
	})
	if err != nil {
		writeSessionError(c, "start", err)
		return
	}

	utils.Success(c, gin.H{
		"session": result.Session,
		"resumed": result.Resumed,
	})
}

func (h *SessionHandler) Activity(c *gin.Context) {
	var req sessionRequest
	if err := bindOptional(c, &req); err != nil {
		utils.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	session, err := h.service.RecordActivity(c.Request.Context(), lookupFor(c, req.SessionID))
	if err != nil {
		writeSessionError(c, "activity", err)
		return
	}

	utils.Success(c, gin.H{
		"ok":             true,
		"session_id":     session.SessionID,
		"total_duration": session.TotalDuration,
	})
}

func (h *SessionHandler) End(c *gin.Context) {
	var req sessionRequest
	if err := bindOptional(c, &req); err != nil {
		utils.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	session, err := h.service.End(c.Request.Context(), lookupFor(c, req.SessionID))
	if err != nil {
		writeSessionError(c, "end", err)
		return
	}

	utils.Success(c, gin.H{"session": session})
}

// Beacon is sent on page unload and may arrive without an Authorization header.
// A token in the header or body scopes the lookup to its user; otherwise only an
// explicit session id is accepted. Anything that matches nothing is a 204.
func (h *SessionHandler) Beacon(c *gin.Context) {
	var req beaconRequest
	if err := bindOptional(c, &req); err != nil {
		utils.NoContent(c)
		return
	}

	token, ok := middleware.BearerToken(c)
	if !ok {
		token = req.Token
	}

	var lookup usecase.Lookup
	if token != "" && h.verifier != nil {
		if identity, err := h.verifier.Verify(token); err == nil {
			c.Set(middleware.ContextUserID, identity.UserID)
			lookup = lookupFor(c, req.SessionID)
		}
	}
	if lookup.IsZero() && req.SessionID != "" {
		lookup = usecase.ByID(req.SessionID)
	}
	if lookup.IsZero() {
		utils.NoContent(c)
		return
	}

	session, err := h.service.Disconnect(c.Request.Context(), lookup)
	if err != nil {
		writeSessionError(c, "beacon", err)
		return
	}
	if session == nil {
		utils.NoContent(c)
		return
	}
	utils.Success(c, gin.H{"session": session})
}
