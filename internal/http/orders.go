package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"zelenka/internal/domain"
)

type placeOrderReq struct {
	// пустой список означает оформление всей корзины
	LineItems     []domain.OrderItem `json:"line_items"`
	DeclaredTotal string             `json:"declared_total"`
}

// @Summary Place order
// @Tags orders
// @Accept json
// @Produce json
// @Param input body placeOrderReq true "Order"
// @Success 201 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /orders [post]
func (s *Server) placeOrder(c *gin.Context) {
	var req placeOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	var declared *decimal.Decimal
	if req.DeclaredTotal != "" {
		if d, err := decimal.NewFromString(req.DeclaredTotal); err == nil {
			declared = &d
		}
	}
	o, err := s.orders.PlaceOrder(c.Request.Context(), identity(c), req.LineItems, declared)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// @Summary List own orders
// @Tags orders
// @Produce json
// @Success 200 {array} domain.Order
// @Router /orders [get]
func (s *Server) listOrders(c *gin.Context) {
	who := identity(c)
	list, err := s.orders.ListUserOrders(c.Request.Context(), who, who.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Get order by id
// @Tags orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /orders/{id} [get]
func (s *Server) getOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	o, err := s.orders.GetOrder(c.Request.Context(), identity(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Order tracking view
// @Tags orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {array} service.TrackingStep
// @Failure 404 {object} map[string]string
// @Router /orders/{id}/tracking [get]
func (s *Server) trackOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	steps, err := s.orders.Track(c.Request.Context(), identity(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, steps)
}

// @Summary Cancel order
// @Tags orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{id}/cancel [post]
func (s *Server) cancelOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	o, err := s.orders.Cancel(c.Request.Context(), identity(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type advanceOrderReq struct {
	Status domain.OrderStatus `json:"status"`
}

// @Summary Advance order status
// @Tags orders
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param input body advanceOrderReq true "Target status"
// @Success 200 {object} domain.Order
// @Failure 409 {object} map[string]string
// @Router /orders/{id}/status [patch]
func (s *Server) advanceOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req advanceOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	o, err := s.orders.Advance(c.Request.Context(), identity(c), id, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary All orders (admin)
// @Tags admin
// @Produce json
// @Success 200 {array} domain.Order
// @Router /admin/orders [get]
func (s *Server) adminOrders(c *gin.Context) {
	list, err := s.orders.ListAllOrders(c.Request.Context(), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Dashboard stats (admin)
// @Tags admin
// @Produce json
// @Success 200 {object} service.AdminStats
// @Router /admin/stats [get]
func (s *Server) adminStats(c *gin.Context) {
	stats, err := s.orders.Stats(c.Request.Context(), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
