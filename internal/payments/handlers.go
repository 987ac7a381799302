package payments

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes the payment lifecycle over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the payment endpoints on the given group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments", h.submit)
	rg.GET("/payments/pending", h.listPending)
	rg.GET("/payments/summary", h.summary)
	rg.GET("/payments/:id", h.get)
	rg.POST("/payments/:id/approve", h.approve)
	rg.POST("/payments/:id/reject", h.reject)
	rg.POST("/payments/:id/waive", h.waive)
	rg.GET("/students/:id/payments", h.listByStudent)
	rg.GET("/payment-types", h.paymentTypes)
}

type submitRequest struct {
	ClientID       string `json:"clientId"`
	StudentID      string `json:"studentId" binding:"required"`
	PaymentTypeID  string `json:"paymentTypeId" binding:"required"`
	Amount         string `json:"amount" binding:"required"`
	TransactionRef string `json:"transactionRef"`
	Notes          string `json:"notes"`
	Method         string `json:"method" binding:"required"`
	ReceiptURL     string `json:"receiptUrl"`
}

func (h *Handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.svc.Submit(c.Request.Context(), &Payment{
		ClientID:       req.ClientID,
		StudentID:      req.StudentID,
		PaymentTypeID:  req.PaymentTypeID,
		Amount:         req.Amount,
		TransactionRef: req.TransactionRef,
		Notes:          req.Notes,
		Method:         req.Method,
		ReceiptURL:     req.ReceiptURL,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) approve(c *gin.Context) {
	p, err := h.svc.Approve(c.Request.Context(), c.Param("id"), reviewerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}
	p, err := h.svc.Reject(c.Request.Context(), c.Param("id"), reviewerID(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) waive(c *gin.Context) {
	p, err := h.svc.Waive(c.Request.Context(), c.Param("id"), reviewerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) listByStudent(c *gin.Context) {
	list, err := h.svc.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list})
}

func (h *Handler) listPending(c *gin.Context) {
	list, err := h.svc.ListPending(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list})
}

func (h *Handler) summary(c *gin.Context) {
	sum, err := h.svc.Summarize(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) paymentTypes(c *gin.Context) {
	types, err := h.svc.PaymentTypes(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paymentTypes": types})
}

// reviewerID comes from the auth middleware; empty when unauthenticated
// paths are exercised in tests.
func reviewerID(c *gin.Context) string {
	return c.GetString("userID")
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAlreadyFinal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
