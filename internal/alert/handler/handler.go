package handler

import (
	"net/http"
	"strconv"

	"github.com/cloudpos/inventory-service/internal/alert"
	"github.com/cloudpos/inventory-service/internal/alert/dto"
	"github.com/cloudpos/inventory-service/internal/apperror"
	"github.com/cloudpos/inventory-service/internal/auth"
	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/gin-gonic/gin"
)

type AlertHandler struct {
	uc alert.UseCase
}

func NewAlertHandler(uc alert.UseCase) *AlertHandler {
	return &AlertHandler{uc: uc}
}

func (h *AlertHandler) RegisterRoutes(rg *gin.RouterGroup) {
	a := rg.Group("/alerts")
	a.GET("", h.ListAlerts)
	a.POST("/:alertId/acknowledge", h.AcknowledgeAlert)
}

func (h *AlertHandler) ListAlerts(c *gin.Context) {
	filters := &dto.AlertFilters{StoreID: c.Param("storeId")}

	if s := c.Query("status"); s != "" {
		status, err := model.ParseAlertStatus(s)
		if err != nil {
			c.Error(apperror.Validation("%v", err))
			return
		}
		filters.Status = status
	}
	if t := c.Query("type"); t != "" {
		alertType, err := model.ParseAlertType(t)
		if err != nil {
			c.Error(apperror.Validation("%v", err))
			return
		}
		filters.Type = alertType
	}
	for name, dst := range map[string]*int{"limit": &filters.Limit, "offset": &filters.Offset} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.Error(apperror.Validation("%s must be an integer", name))
			return
		}
		*dst = n
	}

	page, err := h.uc.ListAlerts(c.Request.Context(), filters)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *AlertHandler) AcknowledgeAlert(c *gin.Context) {
	alertID := c.Param("alertId")
	ok, err := h.uc.AcknowledgeAlert(c.Request.Context(), alertID, c.Param("storeId"), auth.GetUserID(c.Request.Context()))
	if err != nil {
		c.Error(err)
		return
	}
	if !ok {
		c.Error(apperror.NotFound("no active alert %s", alertID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}
