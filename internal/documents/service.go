package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/pkg/logging"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrContentNotFound  = errors.New("document content not found")
	ErrInvalidType      = errors.New("invalid document type")
	ErrEmptyDocument    = errors.New("document body is empty")
)

// Notifier is told about every document change. lifecycle.Service
// implements it to re-evaluate the lead and publish the event.
type Notifier interface {
	DocumentUpdated(ctx context.Context, lead *leads.Lead, doc leads.Document) (*leads.Lead, error)
}

// Service stores uploaded loan documents and tracks their review status on
// the lead.
type Service struct {
	repo     leads.Repository
	storage  Storage
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time
}

func NewService(repo leads.Repository, storage Storage, notifier Notifier, logger *logging.Logger) *Service {
	if repo == nil || storage == nil {
		panic("documents: repository and storage required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, storage: storage, notifier: notifier, logger: logger, now: time.Now}
}

// UploadRequest is one incoming file.
type UploadRequest struct {
	OrgID       string
	LeadID      string
	Type        leads.DocumentType
	FileName    string
	ContentType string
	Body        []byte
}

// StorageKey is where a document's bytes live.
func StorageKey(orgID, leadID, documentID, fileName string) string {
	name := path.Base(strings.TrimSpace(fileName))
	if name == "." || name == "/" || name == "" {
		name = "document"
	}
	return fmt.Sprintf("orgs/%s/leads/%s/documents/%s/%s", orgID, leadID, documentID, name)
}

// Upload stores the file and records it on the lead as received.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*leads.Lead, leads.Document, error) {
	if !req.Type.Valid() {
		return nil, leads.Document{}, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
	if len(req.Body) == 0 {
		return nil, leads.Document{}, ErrEmptyDocument
	}
	if _, err := s.repo.GetByID(ctx, req.OrgID, req.LeadID); err != nil {
		return nil, leads.Document{}, err
	}

	doc := leads.Document{
		ID:         uuid.NewString(),
		Type:       req.Type,
		Status:     leads.DocumentReceived,
		FileName:   req.FileName,
		UploadedAt: s.now().UTC(),
	}
	doc.StorageKey = StorageKey(req.OrgID, req.LeadID, doc.ID, req.FileName)
	if err := s.storage.Put(ctx, doc.StorageKey, req.ContentType, req.Body); err != nil {
		return nil, leads.Document{}, err
	}

	lead, err := s.save(ctx, req.OrgID, req.LeadID, doc)
	if err != nil {
		return nil, leads.Document{}, err
	}
	s.logger.WithLead(req.OrgID, req.LeadID).Info("document uploaded", "document_id", doc.ID, "type", doc.Type, "bytes", len(req.Body))
	return lead, doc, nil
}

// Verify marks a document verified. Verifying twice keeps the first time.
func (s *Service) Verify(ctx context.Context, orgID, leadID, documentID string) (*leads.Lead, leads.Document, error) {
	lead, err := s.repo.GetByID(ctx, orgID, leadID)
	if err != nil {
		return nil, leads.Document{}, err
	}
	doc, ok := lead.FindDocument(documentID)
	if !ok {
		return nil, leads.Document{}, ErrDocumentNotFound
	}
	if doc.Status == leads.DocumentVerified {
		return lead, doc, nil
	}
	now := s.now().UTC()
	doc.Status = leads.DocumentVerified
	doc.VerifiedAt = &now

	lead, err = s.save(ctx, orgID, leadID, doc)
	if err != nil {
		return nil, leads.Document{}, err
	}
	s.logger.WithLead(orgID, leadID).Info("document verified", "document_id", doc.ID, "type", doc.Type)
	return lead, doc, nil
}

// Content opens a stored document.
func (s *Service) Content(ctx context.Context, orgID, leadID, documentID string) (leads.Document, []byte, error) {
	lead, err := s.repo.GetByID(ctx, orgID, leadID)
	if err != nil {
		return leads.Document{}, nil, err
	}
	doc, ok := lead.FindDocument(documentID)
	if !ok || doc.StorageKey == "" {
		return leads.Document{}, nil, ErrDocumentNotFound
	}
	rc, err := s.storage.Get(ctx, doc.StorageKey)
	if err != nil {
		return leads.Document{}, nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return leads.Document{}, nil, fmt.Errorf("documents: read %s: %w", doc.StorageKey, err)
	}
	return doc, data, nil
}

func (s *Service) save(ctx context.Context, orgID, leadID string, doc leads.Document) (*leads.Lead, error) {
	lead, err := s.repo.UpsertDocument(ctx, orgID, leadID, doc)
	if err != nil {
		return nil, fmt.Errorf("documents: upsert: %w", err)
	}
	if s.notifier == nil {
		return lead, nil
	}
	updated, err := s.notifier.DocumentUpdated(ctx, lead, doc)
	if err != nil {
		s.logger.WithLead(orgID, leadID).Error("document notifier failed", "document_id", doc.ID, "error", err)
		return lead, nil
	}
	if updated != nil {
		return updated, nil
	}
	return lead, nil
}
