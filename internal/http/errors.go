package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"zelenka/internal/repository"
	"zelenka/internal/service"
)

// writeError единая точка преобразования ошибок сервисов в HTTP-ответ.
// Типизированные ошибки несут полезную нагрузку для клиента.
func writeError(c *gin.Context, err error) {
	var notFound *service.ProductNotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "product not found",
			"product_id": notFound.ProductID,
		})
		return
	}
	var insufficient *service.InsufficientStockError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "insufficient stock",
			"product_id": insufficient.ProductID,
			"available":  insufficient.Available,
		})
		return
	}
	var transition *service.InvalidTransitionError
	if errors.As(err, &transition) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "invalid transition",
			"from":  transition.From,
			"to":    transition.To,
		})
		return
	}
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, service.ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
