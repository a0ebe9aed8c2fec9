package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"orderflow/internal/lifecycle"
	"orderflow/internal/middleware"
	"orderflow/internal/models"
)

const requestTimeout = 5 * time.Second

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		log.Printf("[%s] panic recovered: %v", route, r)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	log.Printf("[%s] [%s] returning error %d: %s", route, c.GetString(middleware.RequestIDKey), status, message)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondServiceError maps lifecycle errors onto HTTP statuses.
func respondServiceError(c *gin.Context, route string, err error) {
	var transitionErr *lifecycle.TransitionError
	var validationErr *lifecycle.ValidationError

	switch {
	case errors.As(err, &transitionErr):
		log.Printf("[%s] [%s] rejected: %v", route, c.GetString(middleware.RequestIDKey), err)
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error": "invalid status transition",
			"from":  transitionErr.From,
			"to":    transitionErr.To,
		})
	case errors.As(err, &validationErr):
		log.Printf("[%s] [%s] rejected: %v", route, c.GetString(middleware.RequestIDKey), err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": []string{validationErr.Error()},
		})
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		respondWithError(c, http.StatusConflict, route, err.Error())
	case errors.Is(err, lifecycle.ErrNotFound):
		respondWithError(c, http.StatusNotFound, route, "not found")
	case errors.Is(err, lifecycle.ErrForbidden):
		respondWithError(c, http.StatusForbidden, route, "forbidden")
	case errors.Is(err, lifecycle.ErrConflict):
		respondWithError(c, http.StatusConflict, route, err.Error())
	case errors.Is(err, lifecycle.ErrStoreUnavailable):
		log.Printf("[%s] [ERROR] %v", route, err)
		respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
	default:
		log.Printf("[%s] [ERROR] %v", route, err)
		respondWithError(c, http.StatusInternalServerError, route, "internal server error")
	}
}

func respondValidationError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			case "oneof":
				details = append(details, fmt.Sprintf("%s must be one of %s", field, fieldError.Param()))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": details,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body", "details": err.Error()})
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func requireActor(c *gin.Context, route string) (models.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
		return models.Actor{}, false
	}
	return actor, true
}

func objectIDParam(c *gin.Context, route, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, route, "invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}
