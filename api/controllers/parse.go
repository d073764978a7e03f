package controllers

import (
	"github.com/nordvolt/edi-hub/pkg/enums"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
)

func parseRole(value string) (enums.ActorRole, error) {
	role, err := enums.ParseActorRole(value)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid receiver_role")
	}
	return role, nil
}

func parseCategory(value string) (enums.MessageCategory, error) {
	category, err := enums.ParseMessageCategory(value)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category")
	}
	return category, nil
}

func parseDocumentType(value string) (enums.DocumentType, error) {
	docType, err := enums.ParseDocumentType(value)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid document_type")
	}
	return docType, nil
}

func parseBusinessReason(value string) (enums.BusinessReason, error) {
	reason, err := enums.ParseBusinessReason(value)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid business_reason")
	}
	return reason, nil
}

func parseFormat(value string) (enums.DocumentFormat, error) {
	format, err := enums.ParseDocumentFormat(value)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid format")
	}
	return format, nil
}
