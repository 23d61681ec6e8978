// Package service implements the upload/list/download relay operations.
package service

import (
	"context"
	"io"
	"mime"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uprelay/uprelay/internal/common/errors"
	"github.com/uprelay/uprelay/internal/common/logger"
	"github.com/uprelay/uprelay/internal/relay/journal"
	"github.com/uprelay/uprelay/internal/relay/listing"
	"github.com/uprelay/uprelay/internal/relay/naming"
	"github.com/uprelay/uprelay/internal/relay/storage"
)

// RelayService orchestrates the storage backend, the listing aggregator
// and the upload journal.
type RelayService struct {
	backend       storage.Backend
	aggregator    *listing.Aggregator
	journal       journal.Store
	maxBatchFiles int
	signedTTL     time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// NewRelayService creates a new RelayService. The journal may be nil;
// batches are then not recorded.
func NewRelayService(backend storage.Backend, aggregator *listing.Aggregator, journalStore journal.Store, maxBatchFiles int, signedTTL time.Duration) *RelayService {
	if maxBatchFiles <= 0 {
		maxBatchFiles = 20
	}
	if signedTTL <= 0 {
		signedTTL = 60 * time.Second
	}
	return &RelayService{
		backend:       backend,
		aggregator:    aggregator,
		journal:       journalStore,
		maxBatchFiles: maxBatchFiles,
		signedTTL:     signedTTL,
		logger:        logger.WithComponent("RelayService"),
		now:           time.Now,
	}
}

// UploadFile is one file of an upload batch.
type UploadFile struct {
	Name        string
	Size        int64
	ContentType string
	Content     io.Reader
}

// UploadedFile reports one stored file of an accepted batch.
type UploadedFile struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// UploadResult reports an accepted upload batch.
type UploadResult struct {
	BatchID string
	Count   int
	Files   []UploadedFile
}

// Upload persists a batch of files. The whole batch shares one wall-clock
// timestamp; repeated names inside the batch get a counter suffix. Any
// failed write aborts the batch, there is no partial success. An empty
// batch is accepted with a zero count.
func (s *RelayService) Upload(ctx context.Context, files []UploadFile) (*UploadResult, error) {
	if len(files) > s.maxBatchFiles {
		return nil, errors.E("RelayService.Upload", errors.ErrBatchTooLarge, nil,
			"batch of "+strconv.Itoa(len(files))+" exceeds limit of "+strconv.Itoa(s.maxBatchFiles))
	}

	result := &UploadResult{BatchID: uuid.New().String()}
	if len(files) == 0 {
		return result, nil
	}

	ts := s.now().UnixMilli()
	seen := make(map[string]bool, len(files))

	for _, f := range files {
		key := listing.UploadsPrefix + "/" + naming.Encode(f.Name, ts)
		for n := 1; seen[key]; n++ {
			key = listing.UploadsPrefix + "/" + withCounter(naming.Encode(f.Name, ts), n)
		}
		seen[key] = true

		contentType := f.ContentType
		if contentType == "" {
			contentType = mime.TypeByExtension(path.Ext(f.Name))
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		if err := s.backend.Put(ctx, key, f.Content, f.Size, contentType); err != nil {
			s.logger.Error("upload batch aborted",
				zap.String("batch_id", result.BatchID),
				zap.String("key", key),
				zap.Error(err),
			)
			return nil, errors.E("RelayService.Upload", errors.ErrUploadFailed, err, f.Name)
		}

		result.Files = append(result.Files, UploadedFile{
			Name: naming.Decode(key),
			Key:  key,
		})
	}
	result.Count = len(result.Files)

	s.recordBatch(ctx, result, ts)

	s.logger.Info("upload batch accepted",
		zap.String("batch_id", result.BatchID),
		zap.Int("count", result.Count),
	)

	return result, nil
}

// List returns all stored objects, newest first.
func (s *RelayService) List(ctx context.Context) ([]listing.Object, error) {
	return s.aggregator.Aggregate(ctx)
}

// ResolveDownload resolves a storage key to a short-lived signed URL that
// forces a download under the display name.
func (s *RelayService) ResolveDownload(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.E("RelayService.ResolveDownload", errors.ErrMissingParameter, nil, "key")
	}

	downloadName := naming.Decode(path.Base(key))
	return s.backend.SignedURL(ctx, key, s.signedTTL, downloadName)
}

// RecentBatches returns the most recent upload batches from the journal.
func (s *RelayService) RecentBatches(ctx context.Context, limit int) ([]*journal.BatchRecord, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.Recent(ctx, limit)
}

// recordBatch writes the batch to the journal; failures are logged only.
func (s *RelayService) recordBatch(ctx context.Context, result *UploadResult, ts int64) {
	if s.journal == nil {
		return
	}

	rec := &journal.BatchRecord{
		ID:         result.BatchID,
		Count:      result.Count,
		UploadedAt: time.UnixMilli(ts),
	}
	for _, f := range result.Files {
		rec.Keys = append(rec.Keys, f.Key)
	}

	if err := s.journal.Record(ctx, rec); err != nil {
		s.logger.Warn("failed to record upload batch",
			zap.String("batch_id", result.BatchID),
			zap.Error(err),
		)
	}
}

// withCounter inserts a disambiguating counter before the extension, so
// "report__1700.pdf" becomes "report__1700_1.pdf". Decode cuts at the
// first marker and is unaffected.
func withCounter(storedName string, n int) string {
	ext := path.Ext(storedName)
	base := storedName[:len(storedName)-len(ext)]
	return base + "_" + strconv.Itoa(n) + ext
}
