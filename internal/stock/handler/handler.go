package handler

import (
	"net/http"
	"strconv"

	"github.com/cloudpos/inventory-service/internal/apperror"
	"github.com/cloudpos/inventory-service/internal/auth"
	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/internal/stock"
	"github.com/cloudpos/inventory-service/internal/stock/dto"
	"github.com/cloudpos/inventory-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type StockHandler struct {
	uc     stock.UseCase
	logger logger.ZapLogger
}

func NewStockHandler(uc stock.UseCase, log logger.ZapLogger) *StockHandler {
	return &StockHandler{
		uc:     uc,
		logger: log,
	}
}

// RegisterRoutes mounts the ledger under a /stores/:storeId group.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	s := rg.Group("/stock")
	s.GET("", h.GetStockLevels)
	s.GET("/low", h.GetLowStockProducts)
	s.GET("/value", h.GetInventoryValue)
	s.GET("/movements", h.GetStockMovements)
	s.GET("/:productId", h.GetStockLevel)
	s.POST("/adjust", h.AdjustStock)
	s.POST("/transfer", h.TransferStock)
	s.POST("/:productId/reserve", h.ReserveStock)
	s.POST("/:productId/release", h.ReleaseReservedStock)
}

type adjustStockRequest struct {
	ProductID   string           `json:"productId" binding:"required"`
	Type        string           `json:"type" binding:"required"`
	Quantity    int              `json:"quantity"`
	Reason      string           `json:"reason" binding:"required"`
	UnitCost    *decimal.Decimal `json:"unitCost"`
	Notes       string           `json:"notes"`
	ReferenceID string           `json:"referenceId"`
}

type transferStockRequest struct {
	ProductID     string `json:"productId" binding:"required"`
	TargetStoreID string `json:"targetStoreId" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required,gt=0"`
	Reason        string `json:"reason" binding:"required"`
	Notes         string `json:"notes"`
}

type reservationRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

func (h *StockHandler) AdjustStock(c *gin.Context) {
	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.Validation("invalid request body: %v", err))
		return
	}

	movementType, err := model.ParseMovementType(req.Type)
	if err != nil {
		c.Error(apperror.Validation("%v", err))
		return
	}

	movement, err := h.uc.AdjustStock(c.Request.Context(), &dto.AdjustStockInput{
		StoreID:     c.Param("storeId"),
		ProductID:   req.ProductID,
		Type:        movementType,
		Quantity:    req.Quantity,
		Reason:      req.Reason,
		UnitCost:    req.UnitCost,
		Notes:       req.Notes,
		ReferenceID: req.ReferenceID,
		UserID:      auth.GetUserID(c.Request.Context()),
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

func (h *StockHandler) TransferStock(c *gin.Context) {
	var req transferStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.Validation("invalid request body: %v", err))
		return
	}

	movements, err := h.uc.TransferStock(c.Request.Context(), &dto.TransferStockInput{
		SourceStoreID: c.Param("storeId"),
		TargetStoreID: req.TargetStoreID,
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		Reason:        req.Reason,
		Notes:         req.Notes,
		UserID:        auth.GetUserID(c.Request.Context()),
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"movements": movements})
}

func (h *StockHandler) ReserveStock(c *gin.Context) {
	var req reservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.Validation("invalid request body: %v", err))
		return
	}

	ok, err := h.uc.ReserveStock(c.Request.Context(), c.Param("productId"), c.Param("storeId"), req.Quantity)
	if err != nil {
		c.Error(err)
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"reserved": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reserved": true})
}

func (h *StockHandler) ReleaseReservedStock(c *gin.Context) {
	var req reservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.Validation("invalid request body: %v", err))
		return
	}

	if err := h.uc.ReleaseReservedStock(c.Request.Context(), c.Param("productId"), c.Param("storeId"), req.Quantity); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StockHandler) GetStockLevel(c *gin.Context) {
	productID := c.Param("productId")
	level, err := h.uc.GetStockLevel(c.Request.Context(), productID, c.Param("storeId"), c.Query("location_id"))
	if err != nil {
		c.Error(err)
		return
	}
	if level == nil {
		c.Error(apperror.NotFound("no stock recorded for product %s", productID))
		return
	}
	c.JSON(http.StatusOK, level)
}

func (h *StockHandler) GetStockLevels(c *gin.Context) {
	filters := &dto.StockLevelFilters{StoreID: c.Param("storeId")}
	if loc, ok := c.GetQuery("location_id"); ok {
		filters.LocationID = &loc
	}

	levels, err := h.uc.GetStockLevels(c.Request.Context(), filters)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": levels})
}

func (h *StockHandler) GetLowStockProducts(c *gin.Context) {
	levels, err := h.uc.GetLowStockProducts(c.Request.Context(), c.Param("storeId"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": levels})
}

func (h *StockHandler) GetInventoryValue(c *gin.Context) {
	storeID := c.Param("storeId")
	value, err := h.uc.GetInventoryValue(c.Request.Context(), storeID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"storeId": storeID, "totalValue": value})
}

func (h *StockHandler) GetStockMovements(c *gin.Context) {
	filters := &dto.MovementFilters{
		StoreID:   c.Param("storeId"),
		ProductID: c.Query("product_id"),
	}
	if t := c.Query("type"); t != "" {
		movementType, err := model.ParseMovementType(t)
		if err != nil {
			c.Error(apperror.Validation("%v", err))
			return
		}
		filters.Type = movementType
	}

	var err error
	if filters.Limit, err = intQuery(c, "limit"); err != nil {
		c.Error(err)
		return
	}
	if filters.Offset, err = intQuery(c, "offset"); err != nil {
		c.Error(err)
		return
	}

	page, err := h.uc.GetStockMovements(c.Request.Context(), filters)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Validation("%s must be an integer", name)
	}
	return n, nil
}
