// Package delivery implements the externally visible peek/dequeue protocol:
// idempotent document materialization and delivery finalization.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nordvolt/edi-hub/internal/documents"
	"github.com/nordvolt/edi-hub/internal/mailbox"
	"github.com/nordvolt/edi-hub/pkg/config"
	"github.com/nordvolt/edi-hub/pkg/db/models"
	"github.com/nordvolt/edi-hub/pkg/enums"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
	"github.com/nordvolt/edi-hub/pkg/logger"
	"github.com/nordvolt/edi-hub/pkg/metrics"
	"github.com/nordvolt/edi-hub/pkg/outbox"
	"github.com/nordvolt/edi-hub/pkg/outbox/payloads"
	"github.com/nordvolt/edi-hub/pkg/storage"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type documentCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DocumentKey(bundleID string) string
}

// PeekParams selects the partition and wire format of a peek. The receiver
// identity is an explicit parameter, never ambient state.
type PeekParams struct {
	ReceiverNumber string
	ReceiverRole   enums.ActorRole
	Category       enums.MessageCategory
	Format         enums.DocumentFormat
}

func (p PeekParams) validate() error {
	if p.ReceiverNumber == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "receiver actor number required")
	}
	if !p.ReceiverRole.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid receiver role %q", p.ReceiverRole))
	}
	if !p.Category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid message category %q", p.Category))
	}
	if !p.Format.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid document format %q", p.Format))
	}
	return nil
}

func (p PeekParams) partition() mailbox.PartitionKey {
	return mailbox.PartitionKey{
		ReceiverNumber: p.ReceiverNumber,
		ReceiverRole:   p.ReceiverRole,
		Category:       p.Category,
	}
}

// PeekResult is a delivered document. A nil result means no content.
type PeekResult struct {
	MessageID   uuid.UUID
	Document    []byte
	ContentType string
}

// Service orchestrates peek and dequeue over the bundle store, the writer
// catalog, the blob store and the document byte cache.
type Service struct {
	tx       txRunner
	repo     mailbox.Repository
	selector *documents.Selector
	parser   *documents.RecordParser
	store    storage.Store
	cache    documentCache
	outbox   outboxPublisher
	sender   config.SenderConfig
	cacheTTL time.Duration
	metrics  *metrics.MailboxMetrics
	logg     *logger.Logger
}

// NewService builds the delivery service.
func NewService(
	tx txRunner,
	repo mailbox.Repository,
	selector *documents.Selector,
	parser *documents.RecordParser,
	store storage.Store,
	cache documentCache,
	publisher outboxPublisher,
	sender config.SenderConfig,
	mailboxCfg config.MailboxConfig,
	mailboxMetrics *metrics.MailboxMetrics,
	logg *logger.Logger,
) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if selector == nil {
		return nil, fmt.Errorf("writer selector required")
	}
	if parser == nil {
		return nil, fmt.Errorf("record parser required")
	}
	if store == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if mailboxMetrics == nil {
		mailboxMetrics = metrics.NewMailboxMetrics(nil)
	}
	return &Service{
		tx:       tx,
		repo:     repo,
		selector: selector,
		parser:   parser,
		store:    store,
		cache:    cache,
		outbox:   publisher,
		sender:   sender,
		cacheTTL: mailboxCfg.DocumentCacheTTL,
		metrics:  mailboxMetrics,
		logg:     logg,
	}, nil
}

// Peek returns the partition's current deliverable document, materializing
// it on first call. Repeats before a dequeue return byte-identical content
// and the same message id, whichever caller's write won the race.
func (s *Service) Peek(ctx context.Context, params PeekParams) (*PeekResult, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	bundle, err := s.repo.GetDeliverableBundle(ctx, params.partition())
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		s.metrics.IncPeek(metrics.PeekOutcomeEmpty)
		return nil, nil
	}

	if bundle.State == enums.BundleMaterialized {
		result, err := s.deliverStored(ctx, bundle)
		if err != nil {
			return nil, err
		}
		s.metrics.IncPeek(metrics.PeekOutcomeRepeat)
		return result, nil
	}

	result, won, err := s.materialize(ctx, bundle, params.Format)
	if err != nil {
		return nil, err
	}
	if won {
		s.metrics.IncPeek(metrics.PeekOutcomeMaterialized)
	} else {
		s.metrics.IncPeek(metrics.PeekOutcomeRepeat)
	}
	return result, nil
}

// deliverStored serves the already materialized document, reading through
// the byte cache in front of the blob store.
func (s *Service) deliverStored(ctx context.Context, bundle *models.Bundle) (*PeekResult, error) {
	if bundle.StorageRef == nil || bundle.DocumentFormat == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal,
			fmt.Sprintf("materialized bundle %s has no storage reference", bundle.ID))
	}

	contentType := bundle.DocumentFormat.ContentType()

	if s.cache != nil {
		key := s.cache.DocumentKey(bundle.ID.String())
		if data, ok, err := s.cache.GetBytes(ctx, key); err == nil && ok {
			return &PeekResult{MessageID: bundle.PeekMessageID, Document: data, ContentType: contentType}, nil
		}
	}

	data, err := s.store.Get(ctx, *bundle.StorageRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err,
			fmt.Sprintf("loading document for bundle %s", bundle.ID))
	}
	s.cacheDocument(ctx, bundle.ID, data)

	return &PeekResult{MessageID: bundle.PeekMessageID, Document: data, ContentType: contentType}, nil
}

// materialize generates the document for a Closed bundle and records it with
// a conditional transition. The race loser discards its own bytes and serves
// the winner's stored document. The bool reports whether this call won.
func (s *Service) materialize(ctx context.Context, bundle *models.Bundle, format enums.DocumentFormat) (*PeekResult, bool, error) {
	messages, err := s.repo.ListMessages(ctx, bundle.ID)
	if err != nil {
		return nil, false, err
	}
	if len(messages) == 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal,
			fmt.Sprintf("closed bundle %s has no messages", bundle.ID))
	}

	data, contentType, err := s.generate(bundle, messages, format)
	if err != nil {
		return nil, false, err
	}

	// The storage key embeds the format so a retried peek against another
	// format cannot collide with an orphaned earlier write.
	ref := fmt.Sprintf("documents/%s/%s.%s", bundle.ID, bundle.PeekMessageID, format)
	if err := s.store.Put(ctx, ref, data, contentType); err != nil && !isWriteConflict(err) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err,
			fmt.Sprintf("storing document for bundle %s", bundle.ID))
	}

	var won bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.MaterializeDocument(ctx, bundle.ID, format, ref)
		if err != nil {
			return err
		}
		won = ok
		if !ok {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBundleMaterialized,
			AggregateType: enums.AggregateBundle,
			AggregateID:   bundle.ID,
			Data: payloads.BundleMaterializedEvent{
				BundleID:       bundle.ID,
				PeekMessageID:  bundle.PeekMessageID,
				DocumentFormat: format,
				StorageRef:     ref,
				SizeBytes:      len(data),
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, false, err
	}

	if !won {
		// Lost to a concurrent peek. Serve the winner's document, whatever
		// format it was materialized in.
		winner, err := s.repo.FindByID(ctx, bundle.ID)
		if err != nil {
			return nil, false, err
		}
		if winner == nil || winner.State != enums.BundleMaterialized {
			return nil, false, pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("bundle %s changed state during materialization", bundle.ID))
		}
		result, err := s.deliverStored(ctx, winner)
		return result, false, err
	}

	s.metrics.ObserveMaterialized(string(format), len(data))
	s.cacheDocument(ctx, bundle.ID, data)
	return &PeekResult{MessageID: bundle.PeekMessageID, Document: data, ContentType: contentType}, true, nil
}

func (s *Service) generate(bundle *models.Bundle, messages []models.OutgoingMessage, format enums.DocumentFormat) ([]byte, string, error) {
	writer, err := s.selector.Select(bundle.DocumentType, format)
	if err != nil {
		return nil, "", err
	}

	records := make([]documents.MarketActivityRecord, 0, len(messages))
	for _, message := range messages {
		record, err := s.parser.Parse(message.DocumentType, message.Payload)
		if err != nil {
			return nil, "", err
		}
		records = append(records, record)
	}

	header := documents.Header{
		MessageID:      bundle.PeekMessageID,
		DocumentType:   bundle.DocumentType,
		SenderNumber:   s.sender.ActorNumber,
		SenderRole:     s.sender.Role(),
		ReceiverNumber: bundle.ReceiverNumber,
		ReceiverRole:   bundle.ReceiverRole,
		BusinessReason: messages[0].BusinessReason,
		CreatedAt:      bundle.OpenedAt,
	}

	data, err := writer.Write(header, records)
	if err != nil {
		return nil, "", err
	}
	return data, format.ContentType(), nil
}

// cacheDocument best-effort populates the byte cache. Cache failures never
// fail a peek.
func (s *Service) cacheDocument(ctx context.Context, bundleID uuid.UUID, data []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.DocumentKey(bundleID.String()), data, s.cacheTTL); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithBundleID(ctx, bundleID.String()), "failed to cache document bytes")
	}
}

// Dequeue finalizes a delivery. Row and object deletion is deferred to the
// purge job; a crash after the transition cannot resurrect the bundle.
func (s *Service) Dequeue(ctx context.Context, messageID uuid.UUID) (bool, error) {
	if messageID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "message id required")
	}

	bundle, err := s.repo.FindByPeekMessageID(ctx, messageID)
	if err != nil {
		return false, err
	}
	if bundle == nil {
		return false, nil
	}

	now := time.Now().UTC()
	var acknowledged bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Dequeue(ctx, bundle.ID, now)
		if err != nil {
			return err
		}
		acknowledged = ok
		if !ok {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBundleDequeued,
			AggregateType: enums.AggregateBundle,
			AggregateID:   bundle.ID,
			Data: payloads.BundleDequeuedEvent{
				BundleID:      bundle.ID,
				PeekMessageID: bundle.PeekMessageID,
				DequeuedAt:    now,
			},
			Version: 1,
		})
	})
	if err != nil {
		return false, err
	}
	if !acknowledged {
		return false, nil
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, s.cache.DocumentKey(bundle.ID.String())); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithBundleID(ctx, bundle.ID.String()), "failed to evict document cache entry")
		}
	}
	s.metrics.IncDequeued()
	return true, nil
}

// PurgeDequeued deletes documents, messages and bundle rows for deliveries
// dequeued before the retention cutoff. Object deletion runs first so a
// crash mid-purge leaves rows for the next run to retry.
func (s *Service) PurgeDequeued(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	bundles, err := s.repo.ListDequeuedBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, bundle := range bundles {
		if bundle.StorageRef != nil {
			if err := s.store.Delete(ctx, *bundle.StorageRef); err != nil {
				return purged, pkgerrors.Wrap(pkgerrors.CodeDependency, err,
					fmt.Sprintf("deleting document for bundle %s", bundle.ID))
			}
		}
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if _, err := repo.DeleteMessages(ctx, bundle.ID); err != nil {
				return err
			}
			return repo.DeleteBundle(ctx, bundle.ID)
		})
		if err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

// isWriteConflict reports whether a blob store Put failed only because the
// object already exists. Document bytes are deterministic, so an orphaned
// object from an earlier crashed peek holds the same content.
func isWriteConflict(err error) bool {
	return errors.Is(err, storage.ErrExists)
}
