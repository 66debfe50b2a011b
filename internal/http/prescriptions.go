package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"zelenka/internal/domain"
)

// @Summary Submit prescription
// @Tags prescriptions
// @Accept mpfd
// @Produce json
// @Param image formData file true "Prescription image"
// @Param description formData string false "Description"
// @Success 201 {object} domain.Prescription
// @Failure 400 {object} map[string]string
// @Router /prescriptions [post]
func (s *Server) submitPrescription(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read image"})
		return
	}
	defer f.Close()
	image, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read image"})
		return
	}
	p, err := s.prescriptions.Submit(c.Request.Context(), identity(c), image,
		fh.Header.Get("Content-Type"), c.PostForm("description"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary List own prescriptions
// @Tags prescriptions
// @Produce json
// @Success 200 {array} domain.Prescription
// @Router /prescriptions [get]
func (s *Server) listPrescriptions(c *gin.Context) {
	list, err := s.prescriptions.ListUser(c.Request.Context(), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Get prescription by id
// @Tags prescriptions
// @Produce json
// @Param id path int true "Prescription ID"
// @Success 200 {object} domain.Prescription
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /prescriptions/{id} [get]
func (s *Server) getPrescription(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	p, err := s.prescriptions.Get(c.Request.Context(), identity(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type processPrescriptionReq struct {
	Status     domain.PrescriptionStatus `json:"status"`
	AdminNotes string                    `json:"admin_notes"`
	Products   []domain.OrderItem        `json:"products"`
}

// @Summary Process prescription (admin)
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Prescription ID"
// @Param input body processPrescriptionReq true "Decision"
// @Success 200 {object} service.ProcessResult
// @Failure 409 {object} map[string]string
// @Router /prescriptions/{id}/process [post]
func (s *Server) processPrescription(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req processPrescriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := s.prescriptions.Process(c.Request.Context(), identity(c), id, req.Status, req.AdminNotes, req.Products)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary All prescriptions (admin)
// @Tags admin
// @Produce json
// @Success 200 {array} domain.Prescription
// @Router /admin/prescriptions [get]
func (s *Server) adminPrescriptions(c *gin.Context) {
	list, err := s.prescriptions.ListAll(c.Request.Context(), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
