package ownership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"citywalk/internal/certification/models"
	id "citywalk/pkg/domain"
	"citywalk/pkg/platform/sentinel"
	txcontext "citywalk/pkg/platform/tx"
)

// PostgresStore persists ownership records in the seal_ownership table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Save upserts the seal fact of a record. Chain columns are only written by
// PersistChainResult.
func (s *PostgresStore) Save(ctx context.Context, record *models.SealOwnershipRecord) error {
	query := `
		INSERT INTO seal_ownership (id, seal_id, user_id, seal_name, earned_time, location, journey_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			seal_id = EXCLUDED.seal_id,
			user_id = EXCLUDED.user_id,
			seal_name = EXCLUDED.seal_name,
			earned_time = EXCLUDED.earned_time,
			location = EXCLUDED.location,
			journey_id = EXCLUDED.journey_id,
			updated_at = NOW()
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		record.ID.String(),
		record.SealID.String(),
		record.UserID.String(),
		record.SealName,
		record.EarnedTime,
		record.Location,
		record.JourneyID.String(),
	)
	if err != nil {
		return fmt.Errorf("save seal ownership: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, ownershipID id.OwnershipID) (*models.SealOwnershipRecord, error) {
	query := `
		SELECT id, seal_id, user_id, seal_name, earned_time, location, journey_id,
			   chained, provider_name, reference_id, ordinal, notarized_at, certificate, updated_at
		FROM seal_ownership
		WHERE id = $1
	`
	var (
		row          ownershipRow
		providerName sql.NullString
		referenceID  sql.NullString
		ordinal      sql.NullString
		notarizedAt  sql.NullTime
		cert         sql.NullString
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, ownershipID.String()).Scan(
		&row.ID,
		&row.SealID,
		&row.UserID,
		&row.SealName,
		&row.EarnedTime,
		&row.Location,
		&row.JourneyID,
		&row.Chained,
		&providerName,
		&referenceID,
		&ordinal,
		&notarizedAt,
		&cert,
		&row.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find seal ownership: %w", err)
	}
	row.ProviderName = providerName.String
	row.ReferenceID = referenceID.String
	row.Ordinal = ordinal.String
	row.NotarizedAt = notarizedAt.Time
	row.Certificate = cert.String
	return row.toRecord(), nil
}

// PersistChainResult writes all chain columns in one conditional update. A
// record that is already chained yields sentinel.ErrConflict.
func (s *PostgresStore) PersistChainResult(ctx context.Context, ownershipID id.OwnershipID, result models.ChainResult) error {
	query := `
		UPDATE seal_ownership
		SET chained = TRUE,
			provider_name = $2,
			reference_id = $3,
			ordinal = $4,
			notarized_at = $5,
			certificate = $6,
			updated_at = NOW()
		WHERE id = $1 AND chained = FALSE
	`
	exec := s.execer(ctx)
	res, err := exec.ExecContext(ctx, query,
		ownershipID.String(),
		result.ProviderName,
		result.ReferenceID,
		result.Ordinal,
		result.NotarizedAt,
		string(result.Certificate),
	)
	if err != nil {
		return fmt.Errorf("persist chain result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("persist chain result rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := exec.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM seal_ownership WHERE id = $1)`, ownershipID.String(),
	).Scan(&exists); err != nil {
		return fmt.Errorf("check seal ownership: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

type ownershipRow struct {
	ID           string
	SealID       string
	UserID       string
	SealName     string
	EarnedTime   time.Time
	Location     string
	JourneyID    string
	Chained      bool
	ProviderName string
	ReferenceID  string
	Ordinal      string
	NotarizedAt  time.Time
	Certificate  string
	UpdatedAt    time.Time
}

func (r ownershipRow) toRecord() *models.SealOwnershipRecord {
	record := &models.SealOwnershipRecord{
		ID:           id.OwnershipID(r.ID),
		SealID:       id.SealID(r.SealID),
		UserID:       id.UserID(r.UserID),
		SealName:     r.SealName,
		EarnedTime:   r.EarnedTime.UTC(),
		Location:     r.Location,
		JourneyID:    id.JourneyID(r.JourneyID),
		Chained:      r.Chained,
		ProviderName: r.ProviderName,
		ReferenceID:  r.ReferenceID,
		Ordinal:      r.Ordinal,
		UpdatedAt:    r.UpdatedAt,
	}
	if !r.NotarizedAt.IsZero() {
		record.NotarizedAt = r.NotarizedAt.UTC()
	}
	if r.Certificate != "" {
		record.Certificate = []byte(r.Certificate)
	}
	return record
}
