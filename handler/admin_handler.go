package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"shifttrack/middleware"
	"shifttrack/utils"
	"shifttrack/watcher"

	"github.com/gin-gonic/gin"
)

type DailyCloser interface {
	RunOnce(ctx context.Context) (*watcher.DailyReport, error)
}

type AdminHandler struct {
	closer DailyCloser
}

func NewAdminHandler(closer DailyCloser) *AdminHandler {
	return &AdminHandler{closer: closer}
}

// DailyClose runs the daily closer now. A partial failure still reports what was done.
func (h *AdminHandler) DailyClose(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Minute)
	defer cancel()

	report, err := h.closer.RunOnce(ctx)
	if err != nil {
		log.Printf("Manual daily close by %s finished with errors: %v", c.GetString(middleware.ContextUserID), err)
		c.JSON(http.StatusInternalServerError, &utils.Response{
			Status: http.StatusInternalServerError,
			Error:  "Internal error",
			Data:   report,
		})
		return
	}
	utils.SuccessWithMessage(c, "Daily close completed", report)
}
