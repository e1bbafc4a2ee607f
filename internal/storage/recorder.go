package storage

import (
	"log"
	"path/filepath"
	"time"

	"github.com/tabscribe/tabscribe/internal/types"
)

// retryPause scales the backoff between upload attempts.
var retryPause = 2 * time.Second

// Uploader mirrors a document to remote storage and returns its URL.
type Uploader interface {
	Upload(filename, document string) (string, error)
}

// Recorder persists completed extractions: one database row per extraction,
// plus an optional remote mirror of the document. Remote failures degrade to
// local-only; the extraction itself already succeeded.
type Recorder struct {
	store    *Store
	uploader Uploader
}

// NewRecorder creates a recorder. uploader may be nil to disable mirroring.
func NewRecorder(store *Store, uploader Uploader) *Recorder {
	return &Recorder{store: store, uploader: uploader}
}

// Record saves the extraction record, mirroring the document first so the
// row carries the remote URL when the upload succeeds.
func (r *Recorder) Record(rec types.ExtractionRecord, document string) error {
	if r.uploader != nil && rec.LocalPath != "" {
		url, err := r.uploadWithRetry(rec, document)
		if err != nil {
			log.Printf("storage: drive upload failed for %s, keeping local only: %v", rec.OpID, err)
		} else {
			rec.DriveURL = url
		}
	}

	return r.store.Save(rec)
}

// uploadWithRetry attempts the upload up to 3 times with linear backoff.
func (r *Recorder) uploadWithRetry(rec types.ExtractionRecord, document string) (string, error) {
	// The local path's base already carries the sanitized export filename.
	filename := filepath.Base(rec.LocalPath)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		url, err := r.uploader.Upload(filename, document)
		if err == nil {
			return url, nil
		}
		lastErr = err
		log.Printf("storage: upload attempt %d/3 failed for %s: %v", attempt, rec.OpID, err)
		if attempt < 3 {
			time.Sleep(time.Duration(attempt) * retryPause)
		}
	}
	return "", lastErr
}
