package ledger

import (
	"net/http"
	"time"

	"smallbiznis-affiliate/pkg/db/pagination"
	"smallbiznis-affiliate/services/internal/errkind"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/accounts/:id")
	g.GET("/balance", h.balance)
	g.GET("/entries", h.entries)
	g.GET("/verify", h.verify)
	g.GET("/reconcile", h.reconcile)
	g.POST("/bonus", h.bonus)
	g.POST("/login-bonus", h.loginBonus)
	g.POST("/withdrawals", h.withdraw)
	g.POST("/adjustments", h.adjust)
}

type movementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"reference_id" binding:"max=128"`
	Description string          `json:"description" binding:"max=255"`
}

func (h *Handler) balance(c *gin.Context) {
	id := c.Param("id")
	balance, err := h.svc.Balance(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": id, "balance": balance})
}

func (h *Handler) entries(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errkind.InvalidArgument(err.Error()))
		return
	}

	entries, info, err := h.svc.ListEntries(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": info})
}

func (h *Handler) verify(c *gin.Context) {
	id := c.Param("id")
	valid, err := h.svc.VerifyChain(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": id, "valid": valid})
}

func (h *Handler) reconcile(c *gin.Context) {
	res, err := h.svc.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) bonus(c *gin.Context) {
	var req movementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errkind.InvalidArgument(err.Error()))
		return
	}

	entry, err := h.svc.GrantBonus(c.Request.Context(), c.Param("id"), req.Amount, req.ReferenceID, req.Description)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) loginBonus(c *gin.Context) {
	entry, err := h.svc.GrantLoginBonus(c.Request.Context(), c.Param("id"), time.Now())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if entry == nil {
		c.JSON(http.StatusOK, gin.H{"granted": false})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"granted": true, "entry": entry})
}

func (h *Handler) withdraw(c *gin.Context) {
	var req movementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errkind.InvalidArgument(err.Error()))
		return
	}

	entry, err := h.svc.Withdraw(c.Request.Context(), c.Param("id"), req.Amount, req.ReferenceID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) adjust(c *gin.Context) {
	var req movementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errkind.InvalidArgument(err.Error()))
		return
	}

	entry, err := h.svc.Adjust(c.Request.Context(), c.Param("id"), req.Amount, req.ReferenceID, req.Description)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}
