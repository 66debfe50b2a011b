package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type submitFeedbackReq struct {
	ProductID int64   `json:"product_id"`
	Rating    float64 `json:"rating"`
	Comment   string  `json:"comment"`
	// legacy clients send simple feedback as "message"
	Message string `json:"message"`
}

// @Summary Submit feedback
// @Tags feedback
// @Accept json
// @Produce json
// @Param input body submitFeedbackReq true "Feedback"
// @Success 201 {object} domain.Feedback
// @Failure 400 {object} map[string]string
// @Router /feedback [post]
func (s *Server) submitFeedback(c *gin.Context) {
	var req submitFeedbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	var err error
	var f any
	if req.ProductID > 0 {
		f, err = s.feedback.SubmitForProduct(c.Request.Context(), identity(c), req.ProductID, req.Rating, req.Comment)
	} else {
		comment := req.Comment
		if comment == "" {
			comment = req.Message
		}
		f, err = s.feedback.Submit(c.Request.Context(), identity(c), comment)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

// @Summary List feedback
// @Tags feedback
// @Produce json
// @Success 200 {array} domain.Feedback
// @Router /feedback [get]
func (s *Server) listFeedback(c *gin.Context) {
	list, err := s.feedback.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
