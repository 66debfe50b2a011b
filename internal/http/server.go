package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"zelenka/internal/auth"
	"zelenka/internal/metrics"
	"zelenka/internal/service"
)

type Server struct {
	engine        *gin.Engine
	verifier      auth.Verifier
	products      *service.ProductService
	carts         *service.CartService
	orders        *service.OrderService
	prescriptions *service.PrescriptionService
	feedback      *service.FeedbackService
}

func NewServer(verifier auth.Verifier, products *service.ProductService, carts *service.CartService, orders *service.OrderService, prescriptions *service.PrescriptionService, feedback *service.FeedbackService) *Server {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), metrics.Middleware())
	s := &Server{
		engine:        r,
		verifier:      verifier,
		products:      products,
		carts:         carts,
		orders:        orders,
		prescriptions: prescriptions,
		feedback:      feedback,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := s.engine.Group("/api/v1")
	v1.Use(s.authenticate())
	{
		products := v1.Group("/products")
		products.GET("", s.listProducts)
		products.POST("", s.requireAdmin(), s.createProduct)
		products.GET(":id", s.getProduct)
		products.PUT(":id", s.requireAdmin(), s.updateProduct)
		products.POST(":id/stock", s.requireAdmin(), s.adjustStock)
		products.DELETE(":id", s.requireAdmin(), s.deleteProduct)

		v1.GET("/categories", s.listCategories)
		v1.POST("/categories", s.requireAdmin(), s.createCategory)
		v1.GET("/best-sellers", s.bestSellers)
		v1.GET("/new-products", s.newProducts)

		cart := v1.Group("/cart")
		cart.GET("", s.getCart)
		cart.POST("/items", s.addCartItem)
		cart.PUT("/items/:productId", s.updateCartItem)
		cart.DELETE("/items/:productId", s.removeCartItem)
		cart.DELETE("", s.clearCart)

		orders := v1.Group("/orders")
		orders.POST("", s.placeOrder)
		orders.GET("", s.listOrders)
		orders.GET(":id", s.getOrder)
		orders.GET(":id/tracking", s.trackOrder)
		orders.POST(":id/cancel", s.cancelOrder)
		orders.PATCH(":id/status", s.requireAdmin(), s.advanceOrder)

		prescriptions := v1.Group("/prescriptions")
		prescriptions.POST("", s.submitPrescription)
		prescriptions.GET("", s.listPrescriptions)
		prescriptions.GET(":id", s.getPrescription)
		prescriptions.POST(":id/process", s.requireAdmin(), s.processPrescription)

		v1.POST("/feedback", s.submitFeedback)
		v1.GET("/feedback", s.listFeedback)

		admin := v1.Group("/admin")
		admin.Use(s.requireAdmin())
		admin.GET("/orders", s.adminOrders)
		admin.GET("/stats", s.adminStats)
		admin.GET("/prescriptions", s.adminPrescriptions)
	}
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
