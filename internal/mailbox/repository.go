package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/nordvolt/edi-hub/pkg/db"
	"github.com/nordvolt/edi-hub/pkg/db/models"
	"github.com/nordvolt/edi-hub/pkg/enums"
)

// PartitionKey identifies one mailbox partition. Every bundle invariant is
// scoped to this key.
type PartitionKey struct {
	ReceiverNumber string
	ReceiverRole   enums.ActorRole
	Category       enums.MessageCategory
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ReceiverNumber, k.ReceiverRole, k.Category)
}

// Repository is the bundle store. Every state transition is a single
// conditional statement; callers observe races through RowsAffected or
// unique violations, never through read-then-write windows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	TryRegisterOpenBundle(ctx context.Context, key PartitionKey, documentType enums.DocumentType) (*models.Bundle, bool, error)
	GetOpenBundle(ctx context.Context, key PartitionKey) (*models.Bundle, error)
	GetDeliverableBundle(ctx context.Context, key PartitionKey) (*models.Bundle, error)
	FindByID(ctx context.Context, bundleID uuid.UUID) (*models.Bundle, error)
	FindByPeekMessageID(ctx context.Context, peekMessageID uuid.UUID) (*models.Bundle, error)

	NextSequenceNo(ctx context.Context, bundleID uuid.UUID) (int, bool, error)
	InsertMessage(ctx context.Context, message *models.OutgoingMessage) error
	ListMessages(ctx context.Context, bundleID uuid.UUID) ([]models.OutgoingMessage, error)

	ListRipeBundles(ctx context.Context, openedBefore time.Time, maxSize int) ([]models.Bundle, error)
	CloseBundle(ctx context.Context, bundleID uuid.UUID, closedAt time.Time) (bool, error)
	MaterializeDocument(ctx context.Context, bundleID uuid.UUID, format enums.DocumentFormat, storageRef string) (bool, error)
	Dequeue(ctx context.Context, bundleID uuid.UUID, dequeuedAt time.Time) (bool, error)

	ListDequeuedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Bundle, error)
	DeleteMessages(ctx context.Context, bundleID uuid.UUID) (int64, error)
	DeleteBundle(ctx context.Context, bundleID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the gorm-backed bundle store.
func NewRepository(db *gorm.DB) Repository {
	if db == nil {
		return nil
	}
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// TryRegisterOpenBundle returns the partition's Open bundle, creating one if
// absent. The partial unique index on (partition, state='open') guarantees a
// single winner under concurrent enqueues; the loser re-reads the winner's
// row. The second return value reports whether this call created the bundle.
func (r *repository) TryRegisterOpenBundle(ctx context.Context, key PartitionKey, documentType enums.DocumentType) (*models.Bundle, bool, error) {
	existing, err := r.GetOpenBundle(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	bundle := &models.Bundle{
		ID:             uuid.New(),
		ReceiverNumber: key.ReceiverNumber,
		ReceiverRole:   key.ReceiverRole,
		Category:       key.Category,
		DocumentType:   documentType,
		State:          enums.BundleOpen,
		PeekMessageID:  uuid.New(),
		OpenedAt:       time.Now().UTC(),
	}
	// ON CONFLICT DO NOTHING keeps a lost registration race from aborting
	// the surrounding transaction; the loser re-reads the winner's row.
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(bundle)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return bundle, true, nil
	}

	winner, err := r.GetOpenBundle(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if winner == nil {
		return nil, false, gorm.ErrRecordNotFound
	}
	return winner, false, nil
}

func (r *repository) GetOpenBundle(ctx context.Context, key PartitionKey) (*models.Bundle, error) {
	return r.findByPartitionAndState(ctx, key, []enums.BundleState{enums.BundleOpen})
}

func (r *repository) GetDeliverableBundle(ctx context.Context, key PartitionKey) (*models.Bundle, error) {
	return r.findByPartitionAndState(ctx, key, []enums.BundleState{enums.BundleClosed, enums.BundleMaterialized})
}

func (r *repository) findByPartitionAndState(ctx context.Context, key PartitionKey, states []enums.BundleState) (*models.Bundle, error) {
	var bundle models.Bundle
	err := r.db.WithContext(ctx).
		Where("receiver_number = ? AND receiver_role = ? AND category = ? AND state IN ?",
			key.ReceiverNumber, key.ReceiverRole, key.Category, states).
		First(&bundle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (r *repository) FindByID(ctx context.Context, bundleID uuid.UUID) (*models.Bundle, error) {
	var bundle models.Bundle
	err := r.db.WithContext(ctx).Where("id = ?", bundleID).First(&bundle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (r *repository) FindByPeekMessageID(ctx context.Context, peekMessageID uuid.UUID) (*models.Bundle, error) {
	var bundle models.Bundle
	err := r.db.WithContext(ctx).Where("peek_message_id = ?", peekMessageID).First(&bundle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

// NextSequenceNo bumps the bundle's message counter and returns the new
// value as the appended message's sequence number. The state guard makes the
// bump fail once the bundle closes, so no message can ever join a Closed
// bundle. The bool reports whether the bundle was still open.
func (r *repository) NextSequenceNo(ctx context.Context, bundleID uuid.UUID) (int, bool, error) {
	var seq int
	result := r.db.WithContext(ctx).Raw(
		"UPDATE bundles SET message_count = message_count + 1 WHERE id = ? AND state = ? RETURNING message_count",
		bundleID, enums.BundleOpen,
	).Scan(&seq)
	if result.Error != nil {
		return 0, false, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, false, nil
	}
	return seq, true, nil
}

func (r *repository) InsertMessage(ctx context.Context, message *models.OutgoingMessage) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *repository) ListMessages(ctx context.Context, bundleID uuid.UUID) ([]models.OutgoingMessage, error) {
	var messages []models.OutgoingMessage
	err := r.db.WithContext(ctx).
		Where("bundle_id = ?", bundleID).
		Order("sequence_no ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *repository) ListRipeBundles(ctx context.Context, openedBefore time.Time, maxSize int) ([]models.Bundle, error) {
	var bundles []models.Bundle
	err := r.db.WithContext(ctx).
		Where("state = ? AND (opened_at <= ? OR message_count >= ?)",
			enums.BundleOpen, openedBefore, maxSize).
		Order("opened_at ASC").
		Find(&bundles).Error
	if err != nil {
		return nil, err
	}
	return bundles, nil
}

// CloseBundle transitions open -> closed. A false return with no error means
// either the bundle is no longer open, or the partition's delivery slot is
// still occupied (unique violation on the deliverable index); in both cases
// the bundle is left as-is.
func (r *repository) CloseBundle(ctx context.Context, bundleID uuid.UUID, closedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Bundle{}).
		Where("id = ? AND state = ?", bundleID, enums.BundleOpen).
		Updates(map[string]any{
			"state":     enums.BundleClosed,
			"closed_at": closedAt,
		})
	if result.Error != nil {
		if dbpkg.IsUniqueViolation(result.Error, "ux_bundles_deliverable_partition") {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MaterializeDocument transitions closed -> materialized, recording the
// format and storage reference of the winning write. False means another
// peek already materialized the bundle.
func (r *repository) MaterializeDocument(ctx context.Context, bundleID uuid.UUID, format enums.DocumentFormat, storageRef string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Bundle{}).
		Where("id = ? AND state = ?", bundleID, enums.BundleClosed).
		Updates(map[string]any{
			"state":           enums.BundleMaterialized,
			"document_format": format,
			"storage_ref":     storageRef,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Dequeue transitions materialized -> dequeued. False means the bundle is
// not materialized or was already dequeued.
func (r *repository) Dequeue(ctx context.Context, bundleID uuid.UUID, dequeuedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Bundle{}).
		Where("id = ? AND state = ?", bundleID, enums.BundleMaterialized).
		Updates(map[string]any{
			"state":       enums.BundleDequeued,
			"dequeued_at": dequeuedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListDequeuedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Bundle, error) {
	var bundles []models.Bundle
	query := r.db.WithContext(ctx).
		Where("state = ? AND dequeued_at <= ?", enums.BundleDequeued, cutoff).
		Order("dequeued_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&bundles).Error; err != nil {
		return nil, err
	}
	return bundles, nil
}

func (r *repository) DeleteMessages(ctx context.Context, bundleID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("bundle_id = ?", bundleID).
		Delete(&models.OutgoingMessage{})
	return result.RowsAffected, result.Error
}

func (r *repository) DeleteBundle(ctx context.Context, bundleID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", bundleID).Delete(&models.Bundle{}).Error
}
