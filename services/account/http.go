package account

import (
	"net/http"
	"strconv"

	"smallbiznis-affiliate/services/internal/errkind"

	"github.com/gin-gonic/gin"
)

const (
	defaultUplineDepth = 10
	maxUplineDepth     = 100
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/accounts")
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.POST("/:id/suspend", h.suspend)
	g.POST("/:id/activate", h.activate)
	g.PUT("/:id/referrer", h.setReferrer)
	g.GET("/:id/upline", h.upline)
	g.GET("/:id/downline", h.downline)

	r.GET("/v1/affiliates/:code", h.getByCode)
}

func (h *Handler) create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errkind.InvalidArgument(err.Error()))
		return
	}

	acc, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, acc)
}

func (h *Handler) get(c *gin.Context) {
	acc, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) getByCode(c *gin.Context) {
	acc, err := h.svc.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) suspend(c *gin.Context) {
	acc, err := h.svc.Suspend(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) activate(c *gin.Context) {
	acc, err := h.svc.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

type setReferrerRequest struct {
	ReferrerCode string `json:"referrer_code" binding:"max=64"`
}

func (h *Handler) setReferrer(c *gin.Context) {
	var req setReferrerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errkind.InvalidArgument(err.Error()))
		return
	}

	acc, err := h.svc.SetReferrer(c.Request.Context(), c.Param("id"), req.ReferrerCode)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) upline(c *gin.Context) {
	depth, err := strconv.Atoi(c.DefaultQuery("depth", strconv.Itoa(defaultUplineDepth)))
	if err != nil || depth < 0 || depth > maxUplineDepth {
		_ = c.Error(errkind.InvalidArgument("depth must be between 0 and " + strconv.Itoa(maxUplineDepth)))
		return
	}

	upline, err := h.svc.Upline(c.Request.Context(), c.Param("id"), depth)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": upline})
}

func (h *Handler) downline(c *gin.Context) {
	downline, err := h.svc.ListDownline(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": downline})
}
