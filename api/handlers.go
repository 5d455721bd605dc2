package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

// PredictionRequest is the body of POST /predict. Every field is required.
type PredictionRequest struct {
	Type          *string  `json:"type" binding:"required"`
	Sector        *string  `json:"sector" binding:"required"`
	NetUsableArea *float64 `json:"net_usable_area" binding:"required"`
	NetArea       *float64 `json:"net_area" binding:"required"`
	NRooms        *int     `json:"n_rooms" binding:"required"`
	NBathrooms    *int     `json:"n_bathrooms" binding:"required"`
	Latitude      *float64 `json:"latitude" binding:"required"`
	Longitude     *float64 `json:"longitude" binding:"required"`
}

// Payload converts the request into the model service's payload.
func (r PredictionRequest) Payload() map[string]any {
	return map[string]any{
		"type":            *r.Type,
		"sector":          *r.Sector,
		"net_usable_area": *r.NetUsableArea,
		"net_area":        *r.NetArea,
		"n_rooms":         float64(*r.NRooms),
		"n_bathrooms":     float64(*r.NBathrooms),
		"latitude":        *r.Latitude,
		"longitude":       *r.Longitude,
	}
}

// PredictionResponse is the body of a successful prediction.
type PredictionResponse struct {
	Price float64 `json:"price"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) predict(c *gin.Context) {
	var req PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, errors.NewValidationError("body", err.Error(), nil))
		return
	}

	price, err := s.predictor.Predict(req.Payload())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, PredictionResponse{Price: price})
}

// respondError maps the error kind to a status code.
func (s *Server) respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	_ = c.Error(err)

	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "prediction failed"
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// StatusFor returns the HTTP status of err.
func StatusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindValidation, errors.KindConfig, errors.KindMissingFeatures:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
