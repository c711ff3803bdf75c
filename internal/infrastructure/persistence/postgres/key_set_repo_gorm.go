package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/repository"
	"github.com/turtacn/credcore/pkg/errors"
	"gorm.io/gorm"
)

// keySetRowID is the primary key of the single key_sets row.
const keySetRowID = 1

type keySetRow struct {
	ID                 int    `gorm:"primaryKey;autoIncrement:false"`
	ActiveKid          string `gorm:"size:128;not null"`
	NextKid            string `gorm:"size:128"`
	GracePeriodSeconds int64  `gorm:"not null"`
	Version            int64  `gorm:"not null"`
	UpdatedAt          time.Time
}

func (keySetRow) TableName() string { return "key_sets" }

type signingKeyRow struct {
	Kid       string `gorm:"primaryKey;size:128"`
	Algorithm string `gorm:"size:16;not null"`
	Material  []byte `gorm:"not null"`
	RetiredAt *time.Time
	CreatedAt time.Time
}

func (signingKeyRow) TableName() string { return "signing_keys" }

type keySetRepository struct {
	db *gorm.DB
}

// NewKeySetRepository creates a gorm-backed KeySetRepository. The key set is a
// single key_sets row guarded by its version, plus one signing_keys row per key.
func NewKeySetRepository(db *gorm.DB) repository.KeySetRepository {
	return &keySetRepository{db: db}
}

// Load reads the key set row and its keys in one read transaction.
func (r *keySetRepository) Load(ctx context.Context) (*models.KeySet, error) {
	var (
		row  keySetRow
		keys []signingKeyRow
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, "id = ?", keySetRowID).Error; err != nil {
			return err
		}
		return tx.Order("kid").Find(&keys).Error
	}, r.readTxOptions())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrKeySetNotFound
		}
		return nil, errors.Storage("key_sets.load", err)
	}

	ks := &models.KeySet{
		Keys:               make(map[string]models.SigningKey, len(keys)),
		ActiveKid:          row.ActiveKid,
		NextKid:            row.NextKid,
		GracePeriodSeconds: row.GracePeriodSeconds,
		Version:            row.Version,
	}
	for _, k := range keys {
		key := models.SigningKey{
			Kid:       k.Kid,
			Algorithm: k.Algorithm,
			Material:  k.Material,
			CreatedAt: k.CreatedAt.UTC(),
		}
		if k.RetiredAt != nil {
			t := k.RetiredAt.UTC()
			key.RetiredAt = &t
		}
		ks.Keys[k.Kid] = key
	}
	return ks, nil
}

// Save replaces the stored key set when the stored version equals expectedVersion.
// expectedVersion 0 means no key set is stored yet.
func (r *keySetRepository) Save(ctx context.Context, ks *models.KeySet, expectedVersion int64) error {
	if ks == nil {
		return errors.ErrInvalidArgument.WithMessage("key set is required")
	}
	if ks.Version != expectedVersion+1 {
		return errors.ErrInvalidArgument.WithMessage("key set version %d must be expected version %d plus one", ks.Version, expectedVersion)
	}
	if err := ks.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if expectedVersion == 0 {
			row := keySetRow{
				ID:                 keySetRowID,
				ActiveKid:          ks.ActiveKid,
				NextKid:            ks.NextKid,
				GracePeriodSeconds: ks.GracePeriodSeconds,
				Version:            ks.Version,
				UpdatedAt:          now,
			}
			if err := tx.Create(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return versionConflict(expectedVersion)
				}
				return err
			}
		} else {
			res := tx.Model(&keySetRow{}).
				Where("id = ? AND version = ?", keySetRowID, expectedVersion).
				Updates(map[string]interface{}{
					"active_kid":           ks.ActiveKid,
					"next_kid":             ks.NextKid,
					"grace_period_seconds": ks.GracePeriodSeconds,
					"version":              ks.Version,
					"updated_at":           now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return versionConflict(expectedVersion)
			}
		}

		if err := tx.Where("1 = 1").Delete(&signingKeyRow{}).Error; err != nil {
			return err
		}
		rows := make([]signingKeyRow, 0, len(ks.Keys))
		for _, kid := range ks.Kids() {
			k := ks.Keys[kid]
			createdAt := k.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			rows = append(rows, signingKeyRow{
				Kid:       kid,
				Algorithm: k.Algorithm,
				Material:  k.Material,
				RetiredAt: utcPtr(k.RetiredAt),
				CreatedAt: createdAt.UTC(),
			})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		if errors.Is(err, errors.ErrConflict) {
			return err
		}
		return errors.Storage("key_sets.save", err)
	}
	return nil
}

// readTxOptions returns a snapshot isolation level on PostgreSQL so the row and
// its keys are read from the same snapshot. SQLite serializes on its own.
func (r *keySetRepository) readTxOptions() *sql.TxOptions {
	if r.db.Dialector.Name() == "postgres" {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}

func versionConflict(expected int64) error {
	return errors.ErrConflict.
		WithMessage("key set was modified concurrently").
		WithMetadata("expected_version", expected)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
