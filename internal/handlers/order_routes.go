package handlers

import (
	"github.com/gin-gonic/gin"

	"storefront/internal/middleware"
	"storefront/internal/models"
)

// RegisterOrderRoutes mounts the order API on group. Verification and status
// routes keep the aliases older storefronts still call.
func RegisterOrderRoutes(group *gin.RouterGroup, deps OrderDeps, userAuth, adminAuth gin.HandlerFunc) {
	customer := group.Group("", userAuth, middleware.IdempotencyMiddleware(deps.Logger))
	{
		customer.POST("/place", PlaceOrder(deps, models.PaymentCOD))
		customer.POST("/stripe", PlaceOrder(deps, models.PaymentStripe))
		customer.POST("/razorpay", PlaceOrder(deps, models.PaymentRazorpay))

		customer.POST("/stripe/verify", VerifyRedirect(deps))
		customer.POST("/verifyStripe", VerifyRedirect(deps))

		customer.POST("/razorpay/verify", VerifySigned(deps))
		customer.POST("/razorpay/verifyPayment", VerifySigned(deps))
		customer.POST("/verifyPayment", VerifySigned(deps))

		customer.POST("/userorders", UserOrders(deps))
	}

	admin := group.Group("", adminAuth)
	{
		admin.POST("/list", AllOrders(deps))
		admin.POST("/status", UpdateOrderStatus(deps))
		admin.POST("/update-status", UpdateOrderStatus(deps))
		admin.POST("/updateStatus", UpdateOrderStatus(deps))
		admin.DELETE("/:id", DeleteOrder(deps))
	}
}
