package agent

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duetrack/duetrack/internal/connectivity"
	"github.com/duetrack/duetrack/internal/metrics"
	"github.com/duetrack/duetrack/internal/queue"
	"github.com/duetrack/duetrack/internal/remote"
	"github.com/duetrack/duetrack/internal/session"
	"github.com/duetrack/duetrack/internal/syncer"
)

const paymentTypesCacheKey = "payment-types"

func (a *Agent) setupRoutes() {
	a.router.GET("/healthz", a.healthHandler)
	a.router.GET("/metrics", metrics.Handler())
	a.router.GET("/ws", func(c *gin.Context) {
		a.hub.HandleWebSocket(c.Writer, c.Request)
	})

	api := a.router.Group("/api")

	api.POST("/session", a.setSession)
	api.GET("/session", a.getSession)
	api.DELETE("/session", a.clearSession)

	api.POST("/submit", a.submit)
	api.GET("/queue", a.listQueue)
	api.POST("/sync/retry", a.retryNow)
	api.GET("/status", a.status)
	api.GET("/payment-types", a.paymentTypes)
	api.GET("/notifications", a.listNotifications)
}

func (a *Agent) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"deviceId":     a.deviceID,
		"connectivity": a.monitor.State().String(),
	})
}

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

type sessionRequest struct {
	Token string `json:"token" binding:"required"`
}

func (a *Agent) setSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	rec, err := session.ParseToken(req.Token, []byte(a.cfg.SessionSecret))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	if err := a.sessionStore.Set(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Logging in counts as interaction, cues may play from here on.
	a.dispatcher.MarkInteracted()

	c.JSON(http.StatusOK, rec)
}

func (a *Agent) getSession(c *gin.Context) {
	rec := a.sessionStore.Load(c.Request.Context())
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not logged in"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *Agent) clearSession(c *gin.Context) {
	if err := a.sessionStore.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// -----------------------------------------------------------------------------
// Submission
// -----------------------------------------------------------------------------

type submitRequest struct {
	PaymentTypeID  string `json:"paymentTypeId" binding:"required"`
	Amount         string `json:"amount" binding:"required"`
	TransactionRef string `json:"transactionRef"`
	Notes          string `json:"notes"`
	Method         string `json:"method" binding:"required"`
	ReceiptPath    string `json:"receiptPath"`
}

func (a *Agent) submit(c *gin.Context) {
	rec := a.sessionStore.Load(c.Request.Context())
	if rec == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	if !session.HasPermission(rec, "payments.submit") {
		c.JSON(http.StatusForbidden, gin.H{"error": "missing payments.submit permission"})
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a.dispatcher.MarkInteracted()

	sub := &queue.PendingSubmission{
		PaymentTypeID:  req.PaymentTypeID,
		StudentID:      rec.UserID,
		Amount:         req.Amount,
		TransactionRef: req.TransactionRef,
		Notes:          req.Notes,
		Method:         req.Method,
		ReceiptPath:    req.ReceiptPath,
	}

	outcome, err := a.coordinator.Submit(c.Request.Context(), sub)
	switch {
	case err != nil && outcome == syncer.OutcomeRejected:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "id": sub.ID})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case outcome == syncer.OutcomeQueued:
		c.JSON(http.StatusAccepted, gin.H{"outcome": string(outcome), "id": sub.ID})
	default:
		c.JSON(http.StatusCreated, gin.H{"outcome": string(outcome), "id": sub.ID})
	}
}

func (a *Agent) listQueue(c *gin.Context) {
	subs, err := a.queueStore.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": subs})
}

func (a *Agent) retryNow(c *gin.Context) {
	go a.coordinator.RetryNow(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"status": "drain scheduled"})
}

func (a *Agent) status(c *gin.Context) {
	subs, _ := a.queueStore.List(c.Request.Context())

	var userID string
	if rec := a.sessionStore.Load(c.Request.Context()); rec != nil {
		userID = rec.UserID
	}

	c.JSON(http.StatusOK, gin.H{
		"deviceId":          a.deviceID,
		"connectivity":      a.monitor.State().String(),
		"recentlyRecovered": a.monitor.RecentlyRecovered(),
		"queueDepth":        len(subs),
		"userId":            userID,
	})
}

// -----------------------------------------------------------------------------
// Reference data
// -----------------------------------------------------------------------------

type paymentTypesResponse struct {
	PaymentTypes []remote.Record `json:"paymentTypes"`
	Stale        bool            `json:"stale"`
	FromCache    bool            `json:"fromCache"`
}

// paymentTypes is a read-through cache: when the backend answers we refresh
// the cache, when it does not we serve the last snapshot with a staleness
// flag instead of failing.
func (a *Agent) paymentTypes(c *gin.Context) {
	ctx := c.Request.Context()

	if a.monitor.State() == connectivity.Online {
		rows, err := a.client.Select(ctx, remote.TablePaymentTypes, remote.Filter{"active": true})
		if err == nil {
			if err := a.cacheLayer.Write(ctx, paymentTypesCacheKey, rows); err != nil {
				a.logger.Warn("cache write failed", "error", err)
			}
			c.JSON(http.StatusOK, paymentTypesResponse{PaymentTypes: rows})
			return
		}
		a.logger.Warn("payment types fetch failed, falling back to cache", "error", err)
	}

	var rows []remote.Record
	stale, ok := a.cacheLayer.Read(ctx, paymentTypesCacheKey, &rows)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend unreachable and no cached copy"})
		return
	}
	c.JSON(http.StatusOK, paymentTypesResponse{PaymentTypes: rows, Stale: stale, FromCache: true})
}

func (a *Agent) listNotifications(c *gin.Context) {
	rec := a.sessionStore.Load(c.Request.Context())
	if rec == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	rows, err := a.client.Select(c.Request.Context(), remote.TableNotifications, remote.Filter{
		"recipient_id": rec.UserID,
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": rows})
}
