package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/laundryos/auth-api/internal/models"
)

// DeviceRepository tracks which devices have completed a fully verified
// login per user.
type DeviceRepository struct {
	db *sqlx.DB
}

// NewDeviceRepository creates a new instance of DeviceRepository.
func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Exists reports whether the (user, device) pair is trusted.
func (r *DeviceRepository) Exists(ctx context.Context, userID, deviceID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM device_logins WHERE user_id = $1 AND device_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, deviceID); err != nil {
		return false, fmt.Errorf("check device login: %w", err)
	}
	return exists, nil
}

// Upsert creates or refreshes the trusted-device record with the current
// connection metadata. One row per (user, device).
func (r *DeviceRepository) Upsert(ctx context.Context, d *models.DeviceLogin) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.LoggedInAt.IsZero() {
		d.LoggedInAt = time.Now().UTC()
	}
	const query = `INSERT INTO device_logins (id, user_id, device_id, logged_in_at, ip, user_agent, device_type, platform, browser, country, city, latitude, longitude)
VALUES (:id, :user_id, :device_id, :logged_in_at, :ip, :user_agent, :device_type, :platform, :browser, :country, :city, :latitude, :longitude)
ON CONFLICT (user_id, device_id) DO UPDATE SET
	logged_in_at = EXCLUDED.logged_in_at,
	ip = EXCLUDED.ip,
	user_agent = EXCLUDED.user_agent,
	device_type = EXCLUDED.device_type,
	platform = EXCLUDED.platform,
	browser = EXCLUDED.browser,
	country = EXCLUDED.country,
	city = EXCLUDED.city,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude`
	if _, err := r.db.NamedExecContext(ctx, query, d); err != nil {
		return fmt.Errorf("upsert device login: %w", err)
	}
	return nil
}
