package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nordvolt/edi-hub/api/responses"
	"github.com/nordvolt/edi-hub/api/validators"
	"github.com/nordvolt/edi-hub/internal/delivery"
	"github.com/nordvolt/edi-hub/internal/mailbox"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
	"github.com/nordvolt/edi-hub/pkg/logger"
)

type enqueueService interface {
	Enqueue(ctx context.Context, params mailbox.EnqueueParams) (uuid.UUID, error)
}

type deliveryService interface {
	Peek(ctx context.Context, params delivery.PeekParams) (*delivery.PeekResult, error)
	Dequeue(ctx context.Context, messageID uuid.UUID) (bool, error)
}

type enqueueRequest struct {
	ReceiverNumber     string          `json:"receiver_number" validate:"required"`
	ReceiverRole       string          `json:"receiver_role" validate:"required"`
	Category           string          `json:"category" validate:"required"`
	DocumentType       string          `json:"document_type" validate:"required"`
	BusinessReason     string          `json:"business_reason" validate:"required"`
	Payload            json.RawMessage `json:"payload" validate:"required"`
	RelatedToMessageID string          `json:"related_to_message_id,omitempty"`
}

func (req enqueueRequest) toParams() (mailbox.EnqueueParams, error) {
	var params mailbox.EnqueueParams

	role, err := parseRole(req.ReceiverRole)
	if err != nil {
		return params, err
	}
	params.ReceiverRole = role

	category, err := parseCategory(req.Category)
	if err != nil {
		return params, err
	}
	params.Category = category

	docType, err := parseDocumentType(req.DocumentType)
	if err != nil {
		return params, err
	}
	params.DocumentType = docType

	reason, err := parseBusinessReason(req.BusinessReason)
	if err != nil {
		return params, err
	}
	params.BusinessReason = reason

	params.ReceiverNumber = req.ReceiverNumber
	params.Payload = req.Payload

	if req.RelatedToMessageID != "" {
		related, err := uuid.Parse(req.RelatedToMessageID)
		if err != nil {
			return params, pkgerrors.New(pkgerrors.CodeValidation, "related_to_message_id must be a UUID")
		}
		params.RelatedToMessageID = &related
	}
	return params, nil
}

// EnqueueMessage accepts a single outgoing message and places it in the
// receiver's mailbox partition.
func EnqueueMessage(svc enqueueService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req enqueueRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params, err := req.toParams()
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		messageID, err := svc.Enqueue(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{
			"message_id": messageID.String(),
		})
	}
}

type peekRequest struct {
	ReceiverNumber string `json:"receiver_number" validate:"required"`
	ReceiverRole   string `json:"receiver_role" validate:"required"`
	Category       string `json:"category" validate:"required"`
	Format         string `json:"format" validate:"required"`
}

// PeekMessage returns the oldest deliverable document for the receiver's
// partition, or 204 when nothing is waiting. Repeated peeks return the same
// document until it is dequeued.
func PeekMessage(svc deliveryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req peekRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params, err := peekParams(req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Peek(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", result.ContentType)
		w.Header().Set("X-Message-Id", result.MessageID.String())
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(result.Document); err != nil {
			logg.Error(ctx, "failed to write peeked document", err)
		}
	}
}

func peekParams(req peekRequest) (delivery.PeekParams, error) {
	var params delivery.PeekParams

	role, err := parseRole(req.ReceiverRole)
	if err != nil {
		return params, err
	}
	params.ReceiverRole = role

	category, err := parseCategory(req.Category)
	if err != nil {
		return params, err
	}
	params.Category = category

	format, err := parseFormat(req.Format)
	if err != nil {
		return params, err
	}
	params.Format = format

	params.ReceiverNumber = req.ReceiverNumber
	return params, nil
}

// DequeueMessage acknowledges the peeked document and removes the bundle
// from the deliverable queue.
func DequeueMessage(svc deliveryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		messageID, err := uuid.Parse(chi.URLParam(r, "messageId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "messageId must be a UUID"))
			return
		}

		acknowledged, err := svc.Dequeue(ctx, messageID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"acknowledged": acknowledged})
	}
}
