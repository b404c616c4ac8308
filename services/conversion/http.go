package conversion

import (
	"net/http"
	"strconv"

	"smallbiznis-affiliate/pkg/errutil"
	"smallbiznis-affiliate/pkg/logger"
	"smallbiznis-affiliate/services/internal/errkind"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handler struct {
	svc        *Service
	engine     *Engine
	dispatcher *Dispatcher
}

func NewHandler(svc *Service, engine *Engine, dispatcher *Dispatcher) *Handler {
	return &Handler{svc: svc, engine: engine, dispatcher: dispatcher}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/conversions")
	g.POST("", h.submit)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/distribute", h.distribute)
	g.POST("/:id/reverse", h.reverse)
}

type submitRequest struct {
	AffiliateCode    string          `json:"affiliate_code" binding:"required,max=64"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	OrderID          *int64          `json:"order_id" binding:"omitempty,gt=0"`
}

type commissionResponse struct {
	AccountID string          `json:"account_id"`
	Tier      int             `json:"tier"`
	Amount    decimal.Decimal `json:"amount"`
}

func sharesResponse(res DistributionResult) []commissionResponse {
	out := make([]commissionResponse, 0, len(res.Shares))
	for _, s := range res.Shares {
		out = append(out, commissionResponse{AccountID: s.AccountID, Tier: s.Tier, Amount: s.Amount})
	}
	return out
}

func (h *Handler) submit(c *gin.Context) {
	ctx := c.Request.Context()

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errkind.InvalidArgument(err.Error()))
		return
	}

	var orderID *string
	if req.OrderID != nil {
		v := strconv.FormatInt(*req.OrderID, 10)
		orderID = &v
	}

	conv, err := h.svc.Submit(ctx, SubmitRequest{
		AffiliateCode:   req.AffiliateCode,
		Amount:          req.CommissionAmount,
		ExternalOrderID: orderID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	if h.dispatcher.Deferred(ctx, conv.AffiliateID) {
		err := h.dispatcher.Enqueue(ctx, conv.ID)
		if err == nil {
			c.JSON(http.StatusAccepted, gin.H{
				"success":       true,
				"conversion_id": conv.ID,
				"status":        conv.Status,
				"queued":        true,
			})
			return
		}
		zap.L().With(logger.TraceFields(ctx)...).Warn("enqueue failed, distributing inline", zap.String("conversion_id", conv.ID), zap.Error(err))
	}

	h.respondDistribution(c, conv)
}

func (h *Handler) distribute(c *gin.Context) {
	conv, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.respondDistribution(c, conv)
}

func (h *Handler) respondDistribution(c *gin.Context, conv *Conversion) {
	res, err := h.engine.Distribute(c.Request.Context(), conv)
	if err != nil {
		if be, ok := errutil.As(err); ok {
			be.Details = append(be.Details, errutil.Detail{Field: "conversion_id", Message: conv.ID})
			err = be
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"conversion_id":   conv.ID,
		"status":          conv.Status,
		"mlm_commissions": sharesResponse(res),
	})
}

func (h *Handler) get(c *gin.Context) {
	conv, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) list(c *gin.Context) {
	var p ListParams
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(errkind.InvalidArgument(err.Error()))
		return
	}

	conversions, info, err := h.svc.List(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": conversions, "page_info": info})
}

type reverseRequest struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

func (h *Handler) reverse(c *gin.Context) {
	var req reverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errkind.InvalidArgument(err.Error()))
		return
	}

	conv, err := h.svc.Reverse(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, conv)
}
