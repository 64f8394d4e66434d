package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alexxgorcea9/primepass/internal/domain"
)

// PostgresEventRepository implements EventRepository using PostgreSQL
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

var _ EventRepository = (*PostgresEventRepository)(nil)

const eventColumns = `id, name, capacity, registered_count, waitlist_count,
	allow_multiple, start_time, end_time, created_at, updated_at`

const tierColumns = `id, event_id, name, capacity, sold_count, price, is_active,
	sale_start_date, sale_end_date, created_at, updated_at`

const waveColumns = `id, event_id, name, capacity, registered_count, tier_ids,
	start_date, end_date, created_at, updated_at`

// CreateEvent creates a new event
func (r *PostgresEventRepository) CreateEvent(ctx context.Context, event *domain.Event) error {
	query := `
		INSERT INTO events (
			id, name, capacity, registered_count, waitlist_count,
			allow_multiple, start_time, end_time, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Name,
		event.Capacity,
		event.RegisteredCount,
		event.WaitlistCount,
		event.AllowMultiple,
		event.StartTime,
		event.EndTime,
		event.CreatedAt,
		event.UpdatedAt,
	)
	return err
}

// GetEvent retrieves an event by ID
func (r *PostgresEventRepository) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	event := &domain.Event{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&event.ID,
		&event.Name,
		&event.Capacity,
		&event.RegisteredCount,
		&event.WaitlistCount,
		&event.AllowMultiple,
		&event.StartTime,
		&event.EndTime,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

// CreateTier creates a new tier
func (r *PostgresEventRepository) CreateTier(ctx context.Context, tier *domain.Tier) error {
	query := `
		INSERT INTO tiers (
			id, event_id, name, capacity, sold_count, price, is_active,
			sale_start_date, sale_end_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		tier.ID,
		tier.EventID,
		tier.Name,
		tier.Capacity,
		tier.SoldCount,
		tier.Price,
		tier.IsActive,
		tier.SaleStartDate,
		tier.SaleEndDate,
		tier.CreatedAt,
		tier.UpdatedAt,
	)
	return err
}

// scanTier scans a row into a Tier struct
func scanTier(row pgx.Row) (*domain.Tier, error) {
	tier := &domain.Tier{}
	err := row.Scan(
		&tier.ID,
		&tier.EventID,
		&tier.Name,
		&tier.Capacity,
		&tier.SoldCount,
		&tier.Price,
		&tier.IsActive,
		&tier.SaleStartDate,
		&tier.SaleEndDate,
		&tier.CreatedAt,
		&tier.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return tier, nil
}

// GetTier retrieves a tier by ID
func (r *PostgresEventRepository) GetTier(ctx context.Context, id string) (*domain.Tier, error) {
	query := `SELECT ` + tierColumns + ` FROM tiers WHERE id = $1`

	tier, err := scanTier(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTierNotFound
		}
		return nil, err
	}
	return tier, nil
}

// ListTiersByEvent lists the tiers of an event
func (r *PostgresEventRepository) ListTiersByEvent(ctx context.Context, eventID string) ([]*domain.Tier, error) {
	query := `SELECT ` + tierColumns + ` FROM tiers WHERE event_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []*domain.Tier
	for rows.Next() {
		tier, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, tier)
	}
	return tiers, rows.Err()
}

// UpdateTierCapacity persists a tier's new capacity
func (r *PostgresEventRepository) UpdateTierCapacity(ctx context.Context, id string, capacity int64) error {
	query := `UPDATE tiers SET capacity = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, capacity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTierNotFound
	}
	return nil
}

// CreateWave creates a new wave
func (r *PostgresEventRepository) CreateWave(ctx context.Context, wave *domain.Wave) error {
	query := `
		INSERT INTO waves (
			id, event_id, name, capacity, registered_count, tier_ids,
			start_date, end_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	tierIDsJSON, _ := json.Marshal(wave.TierIDs)
	_, err := r.pool.Exec(ctx, query,
		wave.ID,
		wave.EventID,
		wave.Name,
		wave.Capacity,
		wave.RegisteredCount,
		tierIDsJSON,
		wave.StartDate,
		wave.EndDate,
		wave.CreatedAt,
		wave.UpdatedAt,
	)
	return err
}

// scanWave scans a row into a Wave struct
func scanWave(row pgx.Row) (*domain.Wave, error) {
	wave := &domain.Wave{}
	var tierIDsJSON []byte
	err := row.Scan(
		&wave.ID,
		&wave.EventID,
		&wave.Name,
		&wave.Capacity,
		&wave.RegisteredCount,
		&tierIDsJSON,
		&wave.StartDate,
		&wave.EndDate,
		&wave.CreatedAt,
		&wave.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tierIDsJSON != nil {
		json.Unmarshal(tierIDsJSON, &wave.TierIDs)
	}
	if wave.TierIDs == nil {
		wave.TierIDs = []string{}
	}
	return wave, nil
}

// GetWave retrieves a wave by ID
func (r *PostgresEventRepository) GetWave(ctx context.Context, id string) (*domain.Wave, error) {
	query := `SELECT ` + waveColumns + ` FROM waves WHERE id = $1`

	wave, err := scanWave(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWaveNotFound
		}
		return nil, err
	}
	return wave, nil
}

// ListWavesByEvent lists the waves of an event
func (r *PostgresEventRepository) ListWavesByEvent(ctx context.Context, eventID string) ([]*domain.Wave, error) {
	query := `SELECT ` + waveColumns + ` FROM waves WHERE event_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var waves []*domain.Wave
	for rows.Next() {
		wave, err := scanWave(rows)
		if err != nil {
			return nil, err
		}
		waves = append(waves, wave)
	}
	return waves, rows.Err()
}

// UpdateWaveCapacity persists a wave's new capacity
func (r *PostgresEventRepository) UpdateWaveCapacity(ctx context.Context, id string, capacity int64) error {
	query := `UPDATE waves SET capacity = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, capacity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWaveNotFound
	}
	return nil
}

// AdjustEventCounters applies deltas to an event's denormalized counters
func (r *PostgresEventRepository) AdjustEventCounters(ctx context.Context, eventID string, registeredDelta, waitlistDelta int64) error {
	query := `
		UPDATE events SET
			registered_count = GREATEST(registered_count + $2, 0),
			waitlist_count = GREATEST(waitlist_count + $3, 0),
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, eventID, registeredDelta, waitlistDelta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

// PostgresRegistrationRepository implements RegistrationRepository using PostgreSQL
type PostgresRegistrationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistrationRepository creates a new PostgresRegistrationRepository
func NewPostgresRegistrationRepository(pool *pgxpool.Pool) *PostgresRegistrationRepository {
	return &PostgresRegistrationRepository{pool: pool}
}

var _ RegistrationRepository = (*PostgresRegistrationRepository)(nil)

// registrationColumns defines the columns to select for registrations.
// COALESCE avoids scan errors on nullable string columns.
const registrationColumns = `id, event_id, user_id, tier_id,
	COALESCE(wave_id, '') as wave_id,
	status,
	COALESCE(status_reason, '') as status_reason,
	COALESCE(dedupe_key, '') as dedupe_key,
	payment_status, checked_in, checked_in_at,
	COALESCE(qr_code, '') as qr_code,
	COALESCE(additional_info, '{}'::jsonb) as additional_info,
	confirmed_at, waitlisted_at, cancelled_at, created_at, updated_at`

// scanRegistration scans a row into a Registration struct
func scanRegistration(row pgx.Row) (*domain.Registration, error) {
	reg := &domain.Registration{}
	var additionalInfo []byte

	err := row.Scan(
		&reg.ID,
		&reg.EventID,
		&reg.UserID,
		&reg.TierID,
		&reg.WaveID,
		&reg.Status,
		&reg.StatusReason,
		&reg.DedupeKey,
		&reg.PaymentStatus,
		&reg.CheckedIn,
		&reg.CheckedInAt,
		&reg.QRCode,
		&additionalInfo,
		&reg.ConfirmedAt,
		&reg.WaitlistedAt,
		&reg.CancelledAt,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	reg.AdditionalInfo = additionalInfo
	return reg, nil
}

// nullable maps empty strings to NULL for insert parameters
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Create creates a new registration. The partial unique index on dedupe_key
// rejects a second active registration for the same (event, user) pair; the
// unique violation surfaces as domain.ErrDuplicateRegistration.
func (r *PostgresRegistrationRepository) Create(ctx context.Context, reg *domain.Registration) error {
	query := `
		INSERT INTO registrations (
			id, event_id, user_id, tier_id, wave_id, status, status_reason,
			dedupe_key, payment_status, checked_in, checked_in_at, qr_code,
			additional_info, confirmed_at, waitlisted_at, cancelled_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`
	additionalInfo := reg.AdditionalInfo
	if len(additionalInfo) == 0 {
		additionalInfo = []byte("{}")
	}

	_, err := r.pool.Exec(ctx, query,
		reg.ID,
		reg.EventID,
		reg.UserID,
		reg.TierID,
		nullable(reg.WaveID),
		reg.Status,
		nullable(reg.StatusReason),
		nullable(reg.DedupeKey),
		reg.PaymentStatus,
		reg.CheckedIn,
		reg.CheckedInAt,
		nullable(reg.QRCode),
		additionalInfo,
		reg.ConfirmedAt,
		reg.WaitlistedAt,
		reg.CancelledAt,
		reg.CreatedAt,
		reg.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrDuplicateRegistration
	}
	return err
}

// GetByID retrieves a registration by ID
func (r *PostgresRegistrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`

	reg, err := scanRegistration(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}

// Update persists the registration's current state
func (r *PostgresRegistrationRepository) Update(ctx context.Context, reg *domain.Registration) error {
	query := `
		UPDATE registrations SET
			status = $2,
			status_reason = $3,
			payment_status = $4,
			checked_in = $5,
			checked_in_at = $6,
			qr_code = $7,
			confirmed_at = $8,
			waitlisted_at = $9,
			cancelled_at = $10,
			updated_at = $11
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		reg.ID,
		reg.Status,
		nullable(reg.StatusReason),
		reg.PaymentStatus,
		reg.CheckedIn,
		reg.CheckedInAt,
		nullable(reg.QRCode),
		reg.ConfirmedAt,
		reg.WaitlistedAt,
		reg.CancelledAt,
		reg.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRegistrationNotFound
	}
	return nil
}

// UpdateIfStatus persists the registration only while the stored status still
// equals from. An update that matches no row is re-read to distinguish a
// missing registration from one another writer already moved.
func (r *PostgresRegistrationRepository) UpdateIfStatus(ctx context.Context, reg *domain.Registration, from domain.RegistrationStatus) error {
	query := `
		UPDATE registrations SET
			status = $2,
			status_reason = $3,
			payment_status = $4,
			checked_in = $5,
			checked_in_at = $6,
			qr_code = $7,
			confirmed_at = $8,
			waitlisted_at = $9,
			cancelled_at = $10,
			updated_at = $11
		WHERE id = $1 AND status = $12
	`
	tag, err := r.pool.Exec(ctx, query,
		reg.ID,
		reg.Status,
		nullable(reg.StatusReason),
		reg.PaymentStatus,
		reg.CheckedIn,
		reg.CheckedInAt,
		nullable(reg.QRCode),
		reg.ConfirmedAt,
		reg.WaitlistedAt,
		reg.CancelledAt,
		reg.UpdatedAt,
		from,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, reg.ID); err != nil {
			return err
		}
		return domain.ErrStaleRegistration
	}
	return nil
}

// MarkCheckedIn records the check-in timestamp exactly once. The conditional
// update means two concurrent check-ins race for a single row write; only the
// winner reports first=true.
func (r *PostgresRegistrationRepository) MarkCheckedIn(ctx context.Context, id string, at time.Time) (*domain.Registration, bool, error) {
	query := `
		UPDATE registrations SET
			checked_in = TRUE,
			checked_in_at = $2,
			updated_at = $2
		WHERE id = $1 AND status = 'confirmed' AND checked_in = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return nil, false, err
	}
	reg, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return reg, tag.RowsAffected() > 0, nil
}

// NextWaitlisted returns the oldest waitlisted registration for the pool.
// The (created_at, id) ordering keeps promotion deterministic when rows share
// a timestamp.
func (r *PostgresRegistrationRepository) NextWaitlisted(ctx context.Context, tierID, waveID string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + `
		FROM registrations
		WHERE tier_id = $1
		  AND COALESCE(wave_id, '') = $2
		  AND status = 'waitlisted'
		ORDER BY created_at, id
		LIMIT 1`

	reg, err := scanRegistration(r.pool.QueryRow(ctx, query, tierID, waveID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}

// CountActiveByUserAndEvent counts non-cancelled registrations a user holds
func (r *PostgresRegistrationRepository) CountActiveByUserAndEvent(ctx context.Context, userID, eventID string) (int64, error) {
	query := `
		SELECT COUNT(*) FROM registrations
		WHERE user_id = $1 AND event_id = $2 AND status != 'cancelled'
	`
	var count int64
	err := r.pool.QueryRow(ctx, query, userID, eventID).Scan(&count)
	return count, err
}

// CountByTierAndStatus counts registrations of a tier in a status
func (r *PostgresRegistrationRepository) CountByTierAndStatus(ctx context.Context, tierID string, status domain.RegistrationStatus) (int64, error) {
	query := `SELECT COUNT(*) FROM registrations WHERE tier_id = $1 AND status = $2`

	var count int64
	err := r.pool.QueryRow(ctx, query, tierID, status).Scan(&count)
	return count, err
}

// ListByUser lists a user's registrations, newest first
func (r *PostgresRegistrationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + `
		FROM registrations
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []*domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// WaitlistedKeys returns the distinct pools with waitlisted registrations
func (r *PostgresRegistrationRepository) WaitlistedKeys(ctx context.Context) ([]WaitlistKey, error) {
	query := `
		SELECT DISTINCT event_id, tier_id, COALESCE(wave_id, '') as wave_id
		FROM registrations
		WHERE status = 'waitlisted'
		ORDER BY tier_id, wave_id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []WaitlistKey
	for rows.Next() {
		var key WaitlistKey
		if err := rows.Scan(&key.EventID, &key.TierID, &key.WaveID); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
