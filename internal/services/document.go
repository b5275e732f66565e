package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/diewo77/go-quotations/internal/cache"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/realtime"
	"github.com/diewo77/go-quotations/internal/storage"
	"gorm.io/gorm"
)

// FileUpload is one file from a multipart upload.
type FileUpload struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// DocumentType infers the document type from a file name.
func DocumentType(filename string) string {
	if strings.Contains(strings.ToLower(filename), "invoice") {
		return models.DocumentInvoice
	}
	return models.DocumentQuotation
}

// DocumentService stores vendor documents attached to quotations.
type DocumentService struct {
	db    *gorm.DB
	cache *cache.Cache
	store storage.Store
}

func NewDocumentService(db *gorm.DB, c *cache.Cache, store storage.Store) *DocumentService {
	return &DocumentService{db: db, cache: c, store: store}
}

func (s *DocumentService) withURL(d *models.VendorDocument) {
	d.URL = s.store.URL(d.FilePath)
}

// Upload stores each file and records its metadata. The first storage
// failure stops the batch; documents saved before it are kept and returned
// alongside the error.
func (s *DocumentService) Upload(ctx context.Context, quotationID, uploader uint, files []FileUpload) ([]models.VendorDocument, error) {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.Quotation{}).Where("id = ?", quotationID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNotFound
	}

	saved := make([]models.VendorDocument, 0, len(files))
	defer func() {
		if len(saved) > 0 {
			s.cache.InvalidatePrefix(realtime.KeyDocuments)
		}
	}()
	for _, f := range files {
		key := storage.ObjectKey(storage.NamespaceDocuments, quotationID, f.Name)
		if err := s.store.Put(ctx, key, f.Body, f.ContentType); err != nil {
			return saved, fmt.Errorf("%w: store %s: %v", ErrStorage, f.Name, err)
		}
		doc := models.VendorDocument{
			QuotationID: quotationID,
			FileName:    f.Name,
			FilePath:    key,
			FileType:    DocumentType(f.Name),
			FileSize:    f.Size,
			ContentType: f.ContentType,
			UploadedBy:  uploader,
		}
		if err := db.Create(&doc).Error; err != nil {
			if derr := s.store.Delete(ctx, key); derr != nil {
				log.Printf("cleanup %s after failed insert: %v", key, derr)
			}
			return saved, fmt.Errorf("record %s: %w", f.Name, err)
		}
		s.withURL(&doc)
		saved = append(saved, doc)
	}
	return saved, nil
}

// List returns the documents of a quotation, oldest first.
func (s *DocumentService) List(ctx context.Context, quotationID uint) ([]models.VendorDocument, error) {
	key := fmt.Sprintf("%s%d", realtime.KeyDocuments, quotationID)
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]models.VendorDocument, error) {
		var docs []models.VendorDocument
		if err := s.db.WithContext(ctx).Where("quotation_id = ?", quotationID).Order("id").Find(&docs).Error; err != nil {
			return nil, err
		}
		for i := range docs {
			s.withURL(&docs[i])
		}
		return docs, nil
	})
}

// Get loads a document with its quotation, used for ownership checks.
func (s *DocumentService) Get(ctx context.Context, id uint) (*models.VendorDocument, error) {
	var doc models.VendorDocument
	err := s.db.WithContext(ctx).Preload("Quotation").First(&doc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.withURL(&doc)
	return &doc, nil
}

// Open streams the stored bytes of doc.
func (s *DocumentService) Open(ctx context.Context, doc *models.VendorDocument) (io.ReadCloser, error) {
	rc, err := s.store.Open(ctx, doc.FilePath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rc, err
}

// Delete removes the stored object, then the metadata row. If the object
// cannot be removed the row is kept and ErrStorage is returned.
func (s *DocumentService) Delete(ctx context.Context, id uint) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, doc.FilePath); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := s.db.WithContext(ctx).Delete(&models.VendorDocument{}, id).Error; err != nil {
		return fmt.Errorf("delete document row: %w", err)
	}
	s.cache.InvalidatePrefix(realtime.KeyDocuments)
	return nil
}

// Reconcile deletes metadata rows whose stored object no longer exists and
// returns how many were removed.
func (s *DocumentService) Reconcile(ctx context.Context) (int, error) {
	var orphans []uint
	var batch []models.VendorDocument
	res := s.db.WithContext(ctx).Model(&models.VendorDocument{}).FindInBatches(&batch, 100, func(tx *gorm.DB, _ int) error {
		for _, d := range batch {
			ok, err := s.store.Exists(ctx, d.FilePath)
			if err != nil {
				return fmt.Errorf("check %s: %w", d.FilePath, err)
			}
			if !ok {
				orphans = append(orphans, d.ID)
			}
		}
		return nil
	})
	if res.Error != nil {
		return 0, res.Error
	}
	if len(orphans) == 0 {
		return 0, nil
	}
	if err := s.db.WithContext(ctx).Delete(&models.VendorDocument{}, orphans).Error; err != nil {
		return 0, err
	}
	s.cache.InvalidatePrefix(realtime.KeyDocuments)
	return len(orphans), nil
}
