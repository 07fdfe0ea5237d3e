package ipc

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, session SessionInterface) {
	e.GET("/status", statusHandler(session))
	e.POST("/stop", stopHandler(session))
	e.POST("/snapshot", snapshotHandler(session))
}
