package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"weddinghub/cmd/middleware"
	"weddinghub/internal/service"
)

type Routers struct {
	Service service.Service
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())
	apiGroup := app.Group("/v1")

	apiGroup.POST("/rsvps", r.Service.SubmitRSVP)
	apiGroup.GET("/guests/:id/rsvps", r.Service.GetGuestRSVPs)
	apiGroup.GET("/entities/:type/:id/capacity", r.Service.GetCapacitySnapshot)

	admin := apiGroup.Group("/admin")
	admin.POST("/rsvps/bulk", r.Service.BulkRSVP)
	admin.GET("/rsvps", r.Service.ListRSVPs)
	admin.GET("/rsvps/export", r.Service.ExportRSVPs)
	admin.DELETE("/rsvps/:id", r.Service.DeleteRSVP)
	admin.GET("/capacity/alerts", r.Service.CapacityAlerts)
	admin.POST("/guests", r.Service.CreateGuest)
	admin.POST("/events", r.Service.CreateEvent)
	admin.POST("/activities", r.Service.CreateActivity)

	return app
}
