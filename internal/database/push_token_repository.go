package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PushTokenRepository stores FCM device tokens per user (push_tokens table)
type PushTokenRepository struct {
	db DB
}

// NewPushTokenRepository creates a new PushTokenRepository
func NewPushTokenRepository(db DB) *PushTokenRepository {
	return &PushTokenRepository{db: db}
}

// Upsert stores or replaces the device token for a user
func (r *PushTokenRepository) Upsert(userID uuid.UUID, token, platform string) error {
	query := `
		INSERT INTO push_tokens (user_id, token, platform, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET token = EXCLUDED.token, platform = EXCLUDED.platform, updated_at = NOW()`

	if _, err := r.db.Exec(query, userID, token, platform); err != nil {
		return fmt.Errorf("failed to upsert push token: %w", err)
	}
	return nil
}

// GetByUserID retrieves the device token for a user. Returns ("", nil)
// when the user has no registered device.
func (r *PushTokenRepository) GetByUserID(userID uuid.UUID) (string, error) {
	var token string
	err := r.db.Get(&token, `SELECT token FROM push_tokens WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get push token: %w", err)
	}
	return token, nil
}

// Delete removes a user's device token (logout or invalidated token)
func (r *PushTokenRepository) Delete(userID uuid.UUID) error {
	if _, err := r.db.Exec(`DELETE FROM push_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete push token: %w", err)
	}
	return nil
}
