package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewRouter 注册路由
func NewRouter(cycleHandler *CycleHandler, metrics http.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", cycleHandler.Health)
	e.GET("/metrics", echo.WrapHandler(metrics))

	api := e.Group("/api")
	api.GET("/schedule", cycleHandler.GetSchedule)
	api.PUT("/schedule", cycleHandler.UpdateSchedule)
	api.GET("/cycles/last", cycleHandler.GetLastCycle)
	api.POST("/cycles/run", cycleHandler.RunCycle)

	return e
}
