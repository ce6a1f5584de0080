package handler

import (
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"shifttrack/middleware"
	"shifttrack/model"
	"shifttrack/presence"
	"shifttrack/utils"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	aggregator *presence.Aggregator
	hub        *presence.Hub
	location   *time.Location
}

func NewPresenceHandler(aggregator *presence.Aggregator, hub *presence.Hub, location *time.Location) *PresenceHandler {
	if location == nil {
		location = time.UTC
	}
	return &PresenceHandler{aggregator: aggregator, hub: hub, location: location}
}

func (h *PresenceHandler) ListActive(c *gin.Context) {
	users, err := h.aggregator.ListActive(c.Request.Context())
	if err != nil {
		log.Printf("Error listing active sessions: %v", err)
		utils.InternalError(c, "Internal error")
		return
	}
	utils.Success(c, gin.H{"users": users})
}

func (h *PresenceHandler) Stats(c *gin.Context) {
	stats, err := h.aggregator.Stats(c.Request.Context())
	if err != nil {
		log.Printf("Error computing stats: %v", err)
		utils.InternalError(c, "Internal error")
		return
	}
	utils.Success(c, stats)
}

func (h *PresenceHandler) Alerts(c *gin.Context) {
	alerts, err := h.aggregator.Alerts(c.Request.Context())
	if err != nil {
		log.Printf("Error computing alerts: %v", err)
		utils.InternalError(c, "Internal error")
		return
	}
	utils.Success(c, alerts)
}

// Logs pages through session history. from/to accept RFC 3339 or a plain date;
// a plain "to" date includes that whole day.
func (h *PresenceHandler) Logs(c *gin.Context) {
	var filter model.HistoryFilter

	if v := c.Query("from"); v != "" {
		from, _, err := h.parseTime(v)
		if err != nil {
			utils.BadRequest(c, "Invalid from date")
			return
		}
		filter.From = from
	}
	if v := c.Query("to"); v != "" {
		to, dateOnly, err := h.parseTime(v)
		if err != nil {
			utils.BadRequest(c, "Invalid to date")
			return
		}
		if dateOnly {
			to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		filter.To = to
	}
	if v := c.Query("status"); v != "" {
		if err := utils.Validate.Var(v, "session_status"); err != nil {
			utils.BadRequest(c, "Invalid status")
			return
		}
		filter.Status = model.SessionStatus(v)
	}
	filter.UserID = strings.TrimSpace(c.Query("user_id"))
	filter.EmployeeID = strings.TrimSpace(c.Query("employee_id"))

	var err error
	if filter.Page, err = queryInt(c, "page"); err != nil {
		utils.BadRequest(c, "Invalid page")
		return
	}
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		utils.BadRequest(c, "Invalid limit")
		return
	}

	page, err := h.aggregator.ListHistory(c.Request.Context(), filter)
	if err != nil {
		log.Printf("Error listing session history: %v", err)
		utils.InternalError(c, "Internal error")
		return
	}
	utils.Success(c, page)
}

// Stream pushes users_list_update snapshots over server-sent events until the
// client goes away. The first event is sent immediately.
func (h *PresenceHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	updates, unsubscribe := h.hub.Subscribe(c.GetString(middleware.ContextUserID))
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	if snap, err := h.aggregator.Snapshot(ctx); err == nil {
		c.SSEvent(presence.EventUsersListUpdate, snap)
		c.Writer.Flush()
	} else {
		log.Printf("Error building initial snapshot: %v", err)
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent(presence.EventUsersListUpdate, snap)
			return true
		}
	})
}

func (h *PresenceHandler) parseTime(value string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.RFC3339, value); err == nil {
		return t, false, nil
	}
	t, err = time.ParseInLocation(time.DateOnly, value, h.location)
	return t, true, err
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
