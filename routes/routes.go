package routes

import (
	"time"

	"discount-service/controllers"
	"discount-service/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterDiscountRoutes sets up all discount tree routes. The websocket
// route sits outside the request timeout.
func RegisterDiscountRoutes(
	r *gin.Engine,
	dc *controllers.DiscountController,
	sc *controllers.SocketController,
	limiter *middleware.RateLimiter,
	timeout time.Duration,
) {
	discountRoutes := r.Group("/stores/:store_id/discounts")
	discountRoutes.Use(middleware.AuthMiddleware())

	discountRoutes.GET("/ws", sc.Serve)

	api := discountRoutes.Group("")
	api.Use(middleware.Timeout(timeout))
	api.GET("", dc.GetDiscounts)
	api.GET("/view", dc.ViewDiscounts)
	api.POST("/calculate", dc.CalculateDiscount)

	// Manager-only routes
	managerRoutes := api.Group("")
	managerRoutes.Use(middleware.RequireRole(middleware.ManagerRoles...), limiter.Middleware())
	managerRoutes.POST("", dc.AddDiscount)
	managerRoutes.DELETE("/:discount_id", dc.RemoveDiscount)
	managerRoutes.POST("/:discount_id/move", dc.MoveDiscount)
	managerRoutes.PATCH("/:discount_id/simple", dc.EditSimpleDiscount)
	managerRoutes.PATCH("/:discount_id/complex", dc.EditComplexDiscount)
	managerRoutes.PUT("/:discount_id/condition", dc.SetCondition)
	managerRoutes.POST("/:discount_id/condition/rules", dc.AddConditionRule)
	managerRoutes.DELETE("/:discount_id/condition/rules/:rule_id", dc.RemoveConditionRule)
}
