package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/agri-forecast/crop-price/internal/datastore"
	"github.com/agri-forecast/crop-price/internal/learning"
)

const (
	// PriceUnit is reported alongside every predicted price.
	PriceUnit = "₹ per quintal"
	// DisplayDateLayout renders the prediction date for people.
	DisplayDateLayout = "January 02, 2006"
)

// Service is the part of learning.Service the API needs.
type Service interface {
	PredictPrice(ctx context.Context, crop, district string, date time.Time) (float64, error)
	HistoricalData(crop, district string, windowDays int) ([]datastore.PricePoint, error)
	LastUpdatedDate() string
	RefreshAndRetrain(ctx context.Context) error
	Status() learning.Status
}

type PredictRequest struct {
	Crop     string `json:"crop" form:"crop" query:"crop"`
	District string `json:"district" form:"district" query:"district"`
	Date     string `json:"date" form:"date" query:"date"`
}

type PredictResponse struct {
	Crop           string  `json:"crop"`
	District       string  `json:"district"`
	Date           string  `json:"date"`
	FormattedDate  string  `json:"formatted_date"`
	PredictedPrice float64 `json:"predicted_price"`
	Unit           string  `json:"unit"`
	LastUpdated    string  `json:"last_updated"`
}

type HistoryResponse struct {
	Crop     string                 `json:"crop"`
	District string                 `json:"district"`
	Days     int                    `json:"days"`
	Points   []datastore.PricePoint `json:"points"`
}

type Handler struct {
	svc    Service
	logger *zap.Logger
	now    func() time.Time
}

func NewHandler(svc Service, logger *zap.Logger, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{svc: svc, logger: logger, now: now}
}

// Register mounts the JSON endpoints under /api and the form endpoint at /predict.
func (h *Handler) Register(r fiber.Router) {
	api := r.Group("/api")
	api.Get("/predict", h.Predict)
	api.Post("/predict", h.Predict)
	api.Get("/history", h.History)
	api.Post("/update", h.Update)
	api.Get("/status", h.GetStatus)
	api.Get("/options", h.Options)

	r.Post("/predict", h.PredictForm)
}

// Predict accepts any parsable YYYY-MM-DD date.
func (h *Handler) Predict(c *fiber.Ctx) error {
	req, err := parsePredictRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	date, err := time.Parse(datastore.DateLayout, req.Date)
	if err != nil {
		return badRequest(c, "date must be formatted as YYYY-MM-DD")
	}
	return h.predict(c, req, date)
}

// PredictForm serves the interactive form, which only allows dates from
// today up to one year ahead.
func (h *Handler) PredictForm(c *fiber.Ctx) error {
	req, err := parsePredictRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	date, err := time.Parse(datastore.DateLayout, req.Date)
	if err != nil {
		return badRequest(c, "date must be formatted as YYYY-MM-DD")
	}
	today := datastore.DateOf(h.now())
	if date.Before(today) || date.After(today.AddDate(1, 0, 0)) {
		return badRequest(c, "date must be between today and one year from today")
	}
	return h.predict(c, req, date)
}

func (h *Handler) predict(c *fiber.Ctx, req PredictRequest, date time.Time) error {
	price, err := h.svc.PredictPrice(c.UserContext(), req.Crop, req.District, date)
	if err != nil {
		return h.fail(c, "Prediction failed", err)
	}
	return c.JSON(PredictResponse{
		Crop:           req.Crop,
		District:       req.District,
		Date:           date.Format(datastore.DateLayout),
		FormattedDate:  date.Format(DisplayDateLayout),
		PredictedPrice: datastore.RoundPrice(price),
		Unit:           PriceUnit,
		LastUpdated:    h.svc.LastUpdatedDate(),
	})
}

func (h *Handler) History(c *fiber.Ctx) error {
	crop, district := c.Query("crop"), c.Query("district")
	if crop == "" || district == "" {
		return badRequest(c, "crop and district are required")
	}
	days := c.QueryInt("days", 0)
	if days < 0 {
		return badRequest(c, "days must not be negative")
	}

	points, err := h.svc.HistoricalData(crop, district, days)
	if err != nil {
		return h.fail(c, "History lookup failed", err)
	}
	if days == 0 {
		days = learning.DefaultHistoryWindowDays
	}
	return c.JSON(HistoryResponse{Crop: crop, District: district, Days: days, Points: points})
}

// Update refreshes today's prices and forces a retrain.
func (h *Handler) Update(c *fiber.Ctx) error {
	if err := h.svc.RefreshAndRetrain(c.UserContext()); err != nil {
		return h.fail(c, "Update failed", err)
	}
	return c.JSON(fiber.Map{
		"status":       "updated",
		"last_updated": h.svc.LastUpdatedDate(),
	})
}

func (h *Handler) GetStatus(c *fiber.Ctx) error {
	return c.JSON(h.svc.Status())
}

// Options lists the crops and districts a prediction may ask for.
func (h *Handler) Options(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"crops":     datastore.Crops,
		"districts": datastore.Districts,
	})
}

func parsePredictRequest(c *fiber.Ctx) (PredictRequest, error) {
	var req PredictRequest
	var err error
	if c.Method() == fiber.MethodGet {
		err = c.QueryParser(&req)
	} else {
		err = c.BodyParser(&req)
	}
	if err != nil {
		return req, errors.New("invalid request body")
	}
	if req.Crop == "" || req.District == "" || req.Date == "" {
		return req, errors.New("crop, district and date are required")
	}
	return req, nil
}

// StatusFor maps a core error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, learning.ErrEncoding):
		return fiber.StatusBadRequest
	case errors.Is(err, learning.ErrModelNotTrained), errors.Is(err, learning.ErrNoData):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handler) fail(c *fiber.Ctx, msg string, err error) error {
	code := StatusFor(err)
	if code >= fiber.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
