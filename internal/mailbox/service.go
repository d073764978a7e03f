// Package mailbox implements the outgoing message mailbox: enqueue,
// per-partition bundling, and the trigger that closes ripe bundles.
package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nordvolt/edi-hub/pkg/config"
	"github.com/nordvolt/edi-hub/pkg/db/models"
	"github.com/nordvolt/edi-hub/pkg/enums"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
	"github.com/nordvolt/edi-hub/pkg/logger"
	"github.com/nordvolt/edi-hub/pkg/metrics"
	"github.com/nordvolt/edi-hub/pkg/outbox"
	"github.com/nordvolt/edi-hub/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// EnqueueParams carries one message into the mailbox. The receiver identity
// is always explicit; the mailbox never reads it from ambient state.
type EnqueueParams struct {
	ReceiverNumber     string
	ReceiverRole       enums.ActorRole
	Category           enums.MessageCategory
	DocumentType       enums.DocumentType
	BusinessReason     enums.BusinessReason
	Payload            json.RawMessage
	RelatedToMessageID *uuid.UUID
}

func (p EnqueueParams) validate() error {
	if p.ReceiverNumber == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "receiver actor number required")
	}
	if !p.ReceiverRole.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid receiver role %q", p.ReceiverRole))
	}
	if !p.Category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid message category %q", p.Category))
	}
	if !p.DocumentType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid document type %q", p.DocumentType))
	}
	if p.DocumentType.Category() != p.Category {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf(
			"document type %s belongs in category %s, not %s", p.DocumentType, p.DocumentType.Category(), p.Category))
	}
	if !p.BusinessReason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid business reason %q", p.BusinessReason))
	}
	if len(p.Payload) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "payload required")
	}
	return nil
}

func (p EnqueueParams) partition() PartitionKey {
	return PartitionKey{
		ReceiverNumber: p.ReceiverNumber,
		ReceiverRole:   p.ReceiverRole,
		Category:       p.Category,
	}
}

// Service is the mailbox manager.
type Service struct {
	tx      txRunner
	repo    Repository
	outbox  outboxPublisher
	cfg     config.MailboxConfig
	metrics *metrics.MailboxMetrics
	logg    *logger.Logger
}

// NewService builds the mailbox service.
func NewService(
	tx txRunner,
	repo Repository,
	publisher outboxPublisher,
	cfg config.MailboxConfig,
	mailboxMetrics *metrics.MailboxMetrics,
	logg *logger.Logger,
) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if mailboxMetrics == nil {
		mailboxMetrics = metrics.NewMailboxMetrics(nil)
	}
	return &Service{
		tx:      tx,
		repo:    repo,
		outbox:  publisher,
		cfg:     cfg,
		metrics: mailboxMetrics,
		logg:    logg,
	}, nil
}

// Enqueue appends one message to the partition's Open bundle, creating the
// bundle if the partition is empty. A bundle that closes mid-flight is not
// an error; the message lands in a fresh Open bundle.
func (s *Service) Enqueue(ctx context.Context, params EnqueueParams) (uuid.UUID, error) {
	if err := params.validate(); err != nil {
		return uuid.Nil, err
	}

	var messageID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		bundle, seq, err := s.appendSlot(ctx, repo, params)
		if err != nil {
			return err
		}

		message := &models.OutgoingMessage{
			ID:                 uuid.New(),
			BundleID:           bundle.ID,
			ReceiverNumber:     params.ReceiverNumber,
			ReceiverRole:       params.ReceiverRole,
			Category:           params.Category,
			DocumentType:       params.DocumentType,
			BusinessReason:     params.BusinessReason,
			Payload:            params.Payload,
			RelatedToMessageID: params.RelatedToMessageID,
			SequenceNo:         seq,
			CreatedAt:          time.Now().UTC(),
		}
		if err := repo.InsertMessage(ctx, message); err != nil {
			return err
		}
		messageID = message.ID

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMessageEnqueued,
			AggregateType: enums.AggregateOutgoingMessage,
			AggregateID:   message.ID,
			Data: payloads.MessageEnqueuedEvent{
				MessageID:      message.ID,
				BundleID:       bundle.ID,
				ReceiverNumber: params.ReceiverNumber,
				ReceiverRole:   params.ReceiverRole,
				Category:       params.Category,
				DocumentType:   params.DocumentType,
				SequenceNo:     seq,
			},
			Version: 1,
		})
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.metrics.IncEnqueued(string(params.Category))
	return messageID, nil
}

// appendSlot claims a sequence number in the partition's Open bundle. When
// the sweep closes the bundle between lookup and bump, the claim retries
// against a fresh bundle.
func (s *Service) appendSlot(ctx context.Context, repo Repository, params EnqueueParams) (*models.Bundle, int, error) {
	const attempts = 3
	for i := 0; i < attempts; i++ {
		bundle, _, err := repo.TryRegisterOpenBundle(ctx, params.partition(), params.DocumentType)
		if err != nil {
			return nil, 0, err
		}
		if bundle.DocumentType != params.DocumentType {
			return nil, 0, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf(
				"open bundle for %s holds %s documents, cannot mix in %s",
				params.partition(), bundle.DocumentType, params.DocumentType))
		}
		seq, open, err := repo.NextSequenceNo(ctx, bundle.ID)
		if err != nil {
			return nil, 0, err
		}
		if open {
			return bundle, seq, nil
		}
	}
	return nil, 0, pkgerrors.New(pkgerrors.CodeConflict, "could not claim an open bundle for the message")
}

// CloseRipeBundles transitions every Open bundle whose trigger fired to
// Closed and returns how many closed. A partition whose delivery slot is
// still occupied keeps its bundle Open; the next sweep retries. Safe to run
// concurrently.
func (s *Service) CloseRipeBundles(ctx context.Context, now time.Time) (int, error) {
	openedBefore := now.Add(-s.cfg.BundlingWindow)
	ripe, err := s.repo.ListRipeBundles(ctx, openedBefore, s.cfg.MaxBundleSize)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, bundle := range ripe {
		trigger := metrics.CloseTriggerWindow
		if bundle.MessageCount >= s.cfg.MaxBundleSize {
			trigger = metrics.CloseTriggerSize
		}

		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ok, err := repo.CloseBundle(ctx, bundle.ID, now.UTC())
			if err != nil {
				return err
			}
			if !ok {
				return errSlotBusy
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBundleClosed,
				AggregateType: enums.AggregateBundle,
				AggregateID:   bundle.ID,
				Data: payloads.BundleClosedEvent{
					BundleID:       bundle.ID,
					ReceiverNumber: bundle.ReceiverNumber,
					ReceiverRole:   bundle.ReceiverRole,
					Category:       bundle.Category,
					MessageCount:   bundle.MessageCount,
					OpenedAt:       bundle.OpenedAt,
					ClosedAt:       now.UTC(),
				},
				Version: 1,
			})
		})
		if err == errSlotBusy {
			continue
		}
		if err != nil {
			return closed, err
		}
		closed++
		s.metrics.IncClosed(trigger)
	}
	return closed, nil
}

var errSlotBusy = pkgerrors.New(pkgerrors.CodeConflict, "delivery slot occupied")
