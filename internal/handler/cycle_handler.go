package handler

import (
	"net/http"
	"strings"

	"github.com/dushixiang/quanterra/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Scheduler 调度器对外暴露的操作
type Scheduler interface {
	GetTaskStatus() map[string]interface{}
	LastResult() (*service.CycleResult, error)
	UpdateSchedule(spec string) error
	RunNow()
}

// CycleHandler 采集周期处理器
type CycleHandler struct {
	logger    *zap.Logger
	scheduler Scheduler
}

// NewCycleHandler 创建处理器
func NewCycleHandler(logger *zap.Logger, scheduler Scheduler) *CycleHandler {
	return &CycleHandler{
		logger:    logger,
		scheduler: scheduler,
	}
}

// Health 健康检查
// GET /healthz
func (h *CycleHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// GetSchedule 获取调度状态
// GET /api/schedule
func (h *CycleHandler) GetSchedule(c echo.Context) error {
	return c.JSON(http.StatusOK, h.scheduler.GetTaskStatus())
}

// UpdateSchedule 更新调度表达式（仅在内存中生效，配置文件变更时会被覆盖）
// PUT /api/schedule
func (h *CycleHandler) UpdateSchedule(c echo.Context) error {
	var req struct {
		Spec string `json:"spec"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "请求参数错误",
		})
	}

	spec := strings.TrimSpace(req.Spec)
	if spec == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "调度表达式不能为空",
		})
	}

	if err := h.scheduler.UpdateSchedule(spec); err != nil {
		h.logger.Warn("更新采集调度失败", zap.String("spec", spec), zap.Error(err))
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, h.scheduler.GetTaskStatus())
}

// GetLastCycle 最近一轮采集结果
// GET /api/cycles/last
func (h *CycleHandler) GetLastCycle(c echo.Context) error {
	result, err := h.scheduler.LastResult()
	if result == nil && err == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "尚未执行采集",
		})
	}

	resp := map[string]interface{}{
		"result": result,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// RunCycle 立即触发一轮采集
// POST /api/cycles/run
func (h *CycleHandler) RunCycle(c echo.Context) error {
	h.scheduler.RunNow()
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "已触发采集",
	})
}
