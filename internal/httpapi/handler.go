package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"farmledger/pkg/errutil"
	"farmledger/pkg/health"
	"farmledger/pkg/middleware"
	"farmledger/services/abuse"
	"farmledger/services/activity"
	"farmledger/services/evaluation"
	"farmledger/services/ingest"
	"farmledger/services/worker"
)

var Module = fx.Module("httpapi",
	fx.Provide(ProvideHandler),
)

type Handler struct {
	ingest      *ingest.Service
	activities  *activity.Service
	workers     *worker.Service
	abuse       *abuse.Service
	evaluations *evaluation.Service
	tasks       *asynq.Client
	health      health.HealthService
}

type HandlerParams struct {
	fx.In
	Ingest      *ingest.Service
	Activities  *activity.Service
	Workers     *worker.Service
	Abuse       *abuse.Service
	Evaluations *evaluation.Service
	Tasks       *asynq.Client
	Health      health.HealthService
}

// ProvideHandler builds the gin engine serving the REST surface plus the
// health and metrics endpoints.
func ProvideHandler(p HandlerParams) http.Handler {
	h := &Handler{
		ingest:      p.Ingest,
		activities:  p.Activities,
		workers:     p.Workers,
		abuse:       p.Abuse,
		evaluations: p.Evaluations,
		tasks:       p.Tasks,
		health:      p.Health,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.Error())

	engine.GET("/healthz", h.health.Liveness)
	engine.GET("/readyz", h.health.Readiness)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	{
		v1.POST("/webhooks/farm", h.appendEntry)

		v1.GET("/activities", h.recentActivities)
		v1.GET("/dashboard", h.dashboard)

		v1.GET("/workers", h.listWorkers)
		v1.GET("/workers/:id", h.getWorker)
		v1.GET("/workers/:id/history", h.workerHistory)
		v1.GET("/workers/:id/evaluation", h.currentEvaluation)
		v1.GET("/workers/:id/evaluations", h.evaluationHistory)
		v1.POST("/workers/:id/evaluate", h.enqueueEvaluation)

		v1.GET("/abuse/report", h.abuseReport)
		v1.GET("/abuse/workers/:id", h.abuseHistory)
	}

	return engine
}

type webhookRequest struct {
	ID int64 `json:"id"`
}

func (h *Handler) appendEntry(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.Error(errutil.BadRequest("unreadable body", err))
		return
	}

	var req webhookRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.Error(errutil.BadRequest("malformed entry payload", err))
		return
	}

	if err := h.ingest.Append(c.Request.Context(), req.ID, payload); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": req.ID})
}

func (h *Handler) recentActivities(c *gin.Context) {
	activities, err := h.activities.Recent(c.Request.Context(), 50)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

func (h *Handler) dashboard(c *gin.Context) {
	stats, err := h.activities.Dashboard(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) listWorkers(c *gin.Context) {
	ids, err := h.workers.Workers(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workers": ids})
}

func (h *Handler) getWorker(c *gin.Context) {
	profile, err := h.workers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	if profile == nil {
		c.Error(errutil.NotFound("worker profile not found", nil))
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) workerHistory(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.Error(errutil.BadRequest("since must be RFC3339", err))
			return
		}
		since = parsed
	}

	history, err := h.workers.History(c.Request.Context(), c.Param("id"), since)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": history})
}

func (h *Handler) currentEvaluation(c *gin.Context) {
	eval, err := h.evaluations.Current(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	if eval == nil {
		c.Error(errutil.NotFound("worker has not been evaluated yet", nil))
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (h *Handler) evaluationHistory(c *gin.Context) {
	history, err := h.evaluations.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluations": history})
}

func (h *Handler) enqueueEvaluation(c *gin.Context) {
	if err := evaluation.Enqueue(h.tasks, c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"worker_id": c.Param("id")})
}

func (h *Handler) abuseReport(c *gin.Context) {
	totals, err := h.abuse.ReportTotals(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

func (h *Handler) abuseHistory(c *gin.Context) {
	actions, err := h.abuse.HistoryFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}
