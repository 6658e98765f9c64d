package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/swiftride/booking-backend/internal/models"
)

// RideRepository handles ride database operations
type RideRepository struct {
	db DB
}

// NewRideRepository creates a new RideRepository
func NewRideRepository(db DB) *RideRepository {
	return &RideRepository{db: db}
}

const rideColumns = `id, driver_id, driver_name, driver_phone, origin, destination,
	pickup_points, departure_time, price_per_seat, currency, seats_total,
	seats_available, status, created_at, updated_at`

// GetByID retrieves a ride by ID. Returns (nil, nil) when not found.
func (r *RideRepository) GetByID(rideID uuid.UUID) (*models.Ride, error) {
	var ride models.Ride
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`
	err := r.db.Get(&ride, query, rideID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}
	return &ride, nil
}

// List retrieves upcoming active rides matching the given filters,
// soonest departure first
func (r *RideRepository) List(req *models.ListRidesRequest) ([]models.Ride, error) {
	conditions := []string{"status = 'active'", "departure_time > NOW()"}
	args := []interface{}{}

	if req.Origin != "" {
		args = append(args, "%"+req.Origin+"%")
		conditions = append(conditions, fmt.Sprintf("origin ILIKE $%d", len(args)))
	}
	if req.Destination != "" {
		args = append(args, "%"+req.Destination+"%")
		conditions = append(conditions, fmt.Sprintf("destination ILIKE $%d", len(args)))
	}
	if req.Date != "" {
		args = append(args, req.Date)
		conditions = append(conditions, fmt.Sprintf("departure_time::date = $%d", len(args)))
	}
	if req.MinSeats > 0 {
		args = append(args, req.MinSeats)
		conditions = append(conditions, fmt.Sprintf("seats_available >= $%d", len(args)))
	}

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)
	limitClause := fmt.Sprintf("LIMIT $%d", len(args))
	args = append(args, req.Offset)
	offsetClause := fmt.Sprintf("OFFSET $%d", len(args))

	query := `SELECT ` + rideColumns + ` FROM rides WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY departure_time ASC ` + limitClause + ` ` + offsetClause

	rides := []models.Ride{}
	if err := r.db.Select(&rides, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list rides: %w", err)
	}
	return rides, nil
}
