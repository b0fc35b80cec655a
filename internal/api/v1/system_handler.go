package v1

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/service"
	"lootbox-hub/internal/sse"
	systemlog "lootbox-hub/pkg/logger"
)

const statusProbeTimeout = 2 * time.Second

type SystemHandler struct {
	logStore    *systemlog.SystemLogStore
	pool        *pgxpool.Pool
	hub         *sse.SSEHub
	withdrawals *service.WithdrawalService
	backlogWarn time.Duration
	startedAt   time.Time
	logger      *zap.Logger
}

type SystemHandlerConfig struct {
	LogStore       *systemlog.SystemLogStore
	Pool           *pgxpool.Pool
	Hub            *sse.SSEHub
	Withdrawals    *service.WithdrawalService
	BacklogWarning time.Duration
}

type hostStatus struct {
	Hostname      string  `json:"hostname,omitempty"`
	UptimeSeconds uint64  `json:"uptime_seconds,omitempty"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
}

type databaseStatus struct {
	Reachable     bool  `json:"reachable"`
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
}

type withdrawalStatus struct {
	PendingManual  int64  `json:"pending_manual"`
	OverThreshold  int64  `json:"over_threshold"`
	OldestWaiting  string `json:"oldest_waiting"`
	ThresholdHours int64  `json:"threshold_hours"`
}

func NewSystemHandler(cfg SystemHandlerConfig, logger *zap.Logger) *SystemHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemHandler{
		logStore:    cfg.LogStore,
		pool:        cfg.Pool,
		hub:         cfg.Hub,
		withdrawals: cfg.Withdrawals,
		backlogWarn: cfg.BacklogWarning,
		startedAt:   time.Now().UTC(),
		logger:      logger,
	}
}

// RegisterSystemRoutes mounts diagnostics; handlers check the caller role.
func RegisterSystemRoutes(group *gin.RouterGroup, handler *SystemHandler) {
	if handler == nil {
		return
	}
	group.GET("/system/logs", handler.QueryLogs)
	group.GET("/system/status", handler.Status)
}

// QueryLogs
// @Summary Recent in-process log entries
// @Tags system
// @Router /api/v1/system/logs [get]
func (h *SystemHandler) QueryLogs(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if !actor.Can(service.CapAdmin) {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, "forbidden")
		return
	}
	if h.logStore == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrUnavailable, "log service unavailable")
		return
	}

	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	page, pageSize := pageParams(c)
	items, total := h.logStore.QueryLogs(systemlog.LogQuery{
		Level:    c.Query("level"),
		Logger:   c.Query("logger"),
		From:     from,
		To:       to,
		Keyword:  c.Query("keyword"),
		Page:     page,
		PageSize: pageSize,
	})
	response.Paginated(c, items, page, pageSize, total)
}

// Status
// @Summary Host, database and withdrawal queue health
// @Tags system
// @Router /api/v1/system/status [get]
func (h *SystemHandler) Status(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if !actor.Elevated() {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, "forbidden")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), statusProbeTimeout)
	defer cancel()

	payload := gin.H{
		"started_at":  h.startedAt,
		"host":        h.hostStatus(ctx),
		"database":    h.databaseStatus(ctx),
		"sse_clients": h.hub.ConnectedCount(),
	}
	if h.withdrawals != nil {
		backlog, err := h.withdrawals.CountPendingManual(ctx, h.backlogWarn)
		if err != nil {
			h.logger.Warn("count pending withdrawals failed", zap.Error(err))
		} else {
			payload["withdrawals"] = withdrawalStatus{
				PendingManual:  backlog.Total,
				OverThreshold:  backlog.OverThreshold,
				OldestWaiting:  backlog.Oldest.Round(time.Second).String(),
				ThresholdHours: int64(h.backlogWarn / time.Hour),
			}
		}
	}

	response.Success(c, payload)
}

func (h *SystemHandler) hostStatus(ctx context.Context) hostStatus {
	status := hostStatus{Goroutines: runtime.NumGoroutine()}

	if info, err := host.InfoWithContext(ctx); err == nil {
		status.Hostname = info.Hostname
		status.UptimeSeconds = info.Uptime
	}
	if values, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(values) > 0 {
		status.CPUPercent = values[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		status.MemoryPercent = vm.UsedPercent
	}
	return status
}

func (h *SystemHandler) databaseStatus(ctx context.Context) databaseStatus {
	if h.pool == nil {
		return databaseStatus{}
	}

	stat := h.pool.Stat()
	return databaseStatus{
		Reachable:     h.pool.Ping(ctx) == nil,
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
	}
}
