package models

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
)

// DocumentKind enumerates the evidence a nominee must provide.
type DocumentKind string

const (
	KindDeathCertificate DocumentKind = "DEATH_CERTIFICATE"
	KindIDProof          DocumentKind = "ID_PROOF"
	KindLegalDeclaration DocumentKind = "LEGAL_DECLARATION"
)

// RequiredKinds is the set a submission must cover. Only the death
// certificate is mandatory; ID proof and a signed legal declaration may be
// attached but the declarations themselves are accepted as submission flags.
var RequiredKinds = []DocumentKind{KindDeathCertificate}

// ParseDocumentKind validates a wire value.
func ParseDocumentKind(s string) (DocumentKind, error) {
	k := DocumentKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case KindDeathCertificate, KindIDProof, KindLegalDeclaration:
		return k, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown document kind %q", s)
}

// DocumentStatus tracks a single file through review.
type DocumentStatus string

const (
	DocPending     DocumentStatus = "PENDING"
	DocUnderReview DocumentStatus = "UNDER_REVIEW"
	DocValidated   DocumentStatus = "VALIDATED"
	DocRejected    DocumentStatus = "REJECTED"
)

var docTransitions = map[DocumentStatus][]DocumentStatus{
	DocPending:     {DocUnderReview, DocRejected},
	DocUnderReview: {DocValidated, DocRejected},
	DocValidated:   {},
	DocRejected:    {},
}

// Document is one uploaded file attached to a verification request. The
// stored bytes live in the object store; this record carries metadata only.
type Document struct {
	ID          id.DocumentID     `json:"id"`
	RequestID   id.VerificationID `json:"request_id"`
	Kind        DocumentKind      `json:"kind"`
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	StorageKey  string            `json:"storage_key"`
	Status      DocumentStatus    `json:"status"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewDocument builds the metadata record for a stored upload.
func NewDocument(docID id.DocumentID, requestID id.VerificationID, kind DocumentKind, fileName, contentType string, size int64, now time.Time) *Document {
	return &Document{
		ID:          docID,
		RequestID:   requestID,
		Kind:        kind,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   size,
		StorageKey:  fmt.Sprintf("verifications/%s/%s%s", requestID, docID, strings.ToLower(filepath.Ext(fileName))),
		Status:      DocPending,
		UploadedAt:  now,
		UpdatedAt:   now,
	}
}

// ApplyStatus moves the document through review. Validated documents are
// immutable; any further change is rejected here.
func (d *Document) ApplyStatus(next DocumentStatus, now time.Time) error {
	for _, allowed := range docTransitions[d.Status] {
		if allowed == next {
			d.Status = next
			d.UpdatedAt = now
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeInvalidState, "cannot move document from %s to %s", d.Status, next)
}

// UploadLimits carries the configured constraints on incoming files.
type UploadLimits struct {
	MaxBytes     int64
	ContentTypes []string
}

// ValidateUpload enforces size and type limits before any bytes are stored.
// The content type is taken from the request but cross-checked against the
// file extension so a mislabelled upload fails fast.
func (l UploadLimits) ValidateUpload(fileName, contentType string, size int64) error {
	if size <= 0 {
		return dErrors.New(dErrors.CodeValidation, "uploaded file is empty")
	}
	if size > l.MaxBytes {
		return dErrors.Newf(dErrors.CodeValidation, "file exceeds maximum size of %d bytes", l.MaxBytes)
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if !l.allowed(ct) {
		return dErrors.Newf(dErrors.CodeValidation, "unsupported content type %q", contentType)
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); byExt != "" {
		if base, _, err := mime.ParseMediaType(byExt); err == nil && base != ct {
			return dErrors.Newf(dErrors.CodeValidation, "file extension does not match declared content type %q", contentType)
		}
	}
	return nil
}

func (l UploadLimits) allowed(ct string) bool {
	for _, t := range l.ContentTypes {
		if ct == t {
			return true
		}
	}
	return false
}
