package routes

import (
	"net/http"

	"achrilik/controllers"
	"achrilik/middlewares"
	"achrilik/models"
	"achrilik/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Services struct {
	Orders     *services.OrderService
	Deliveries *services.DeliveryService
	Ledger     *services.LedgerService
}

func RegisterRoutes(r *gin.Engine, jwtSecret string, corsOrigins []string, svc Services) {
	r.Use(middlewares.CORSMiddleware(corsOrigins))
	r.Use(middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	orderCtrl := &controllers.OrderController{Orders: svc.Orders}
	deliveryCtrl := &controllers.DeliveryController{Deliveries: svc.Deliveries}
	commissionCtrl := &controllers.CommissionController{Ledger: svc.Ledger}

	api := r.Group("/api", middlewares.AuthMiddleware(jwtSecret))
	{
		api.POST("/orders", middlewares.RequireRoles(models.RoleBuyer), orderCtrl.CreateOrder)
		api.GET("/orders/:id", orderCtrl.GetOrder)
		api.GET("/orders/:id/history", orderCtrl.GetOrderHistory)
		api.POST("/orders/:id/transition", orderCtrl.TransitionOrder)
		api.POST("/orders/:id/delivery", middlewares.RequireRoles(models.RoleAdmin, models.RoleStore), deliveryCtrl.AssignDelivery)

		api.GET("/deliveries/:id", deliveryCtrl.GetDelivery)
		api.PATCH("/deliveries/:id", middlewares.RequireRoles(models.RoleDeliveryAgent), deliveryCtrl.UpdateDelivery)
	}

	admin := api.Group("/admin", middlewares.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/commissions", commissionCtrl.Summary)
		admin.POST("/commissions/:storeId/mark-paid", commissionCtrl.MarkPaid)
		admin.GET("/commissions/payouts", commissionCtrl.Payouts)
		admin.POST("/commission-rates", commissionCtrl.SetRate)
		admin.POST("/deliveries/:id/cod-transferred", deliveryCtrl.MarkCODTransferred)
		admin.PUT("/wilayas/:wilaya/agent", deliveryCtrl.SetWilayaAgent)
	}
}
