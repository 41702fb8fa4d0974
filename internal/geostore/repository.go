package geostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/geotrack/internal/monitoring"
)

// ImageUploader stores an image and returns a reference to it.
type ImageUploader interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// Repository merges observations into a Store.
type Repository struct {
	store    Store
	uploader ImageUploader
}

// NewRepository creates a Repository. uploader may be nil, in which case
// observation images are ignored.
func NewRepository(store Store, uploader ImageUploader) *Repository {
	return &Repository{store: store, uploader: uploader}
}

// Store returns the underlying store.
func (r *Repository) Store() Store {
	return r.store
}

// UpsertAndAppend appends obs's coordinate to the path stored under obs.Key,
// creating the record if needed. Coordinates already stored are kept;
// duplicates of an existing point are appended too.
//
// When obs carries an image and the stored record has none, the image is
// uploaded before the transaction starts. A failed upload is logged and the
// point is still recorded.
func (r *Repository) UpsertAndAppend(ctx context.Context, obs Observation) (*Record, error) {
	if obs.Key == "" {
		return nil, errors.New("observation has no key")
	}

	imageURL := r.uploadIfMissing(ctx, obs)

	rec, err := r.store.RunTransaction(ctx, obs.Key, func(cur *Record) (*Record, error) {
		if cur == nil {
			cur = &Record{
				ID:   obs.Key,
				Name: obs.Name,
				Icon: obs.Icon,
			}
		}
		cur.Lat = append(cur.Lat, obs.Coordinate.Lat)
		cur.Lon = append(cur.Lon, obs.Coordinate.Lon)
		cur.Altitude = obs.Coordinate.Altitude
		cur.Tracked = obs.Time
		if cur.ImageURL == nil && imageURL != "" {
			cur.ImageURL = &imageURL
		}
		if cur.DetectedText == nil && obs.DetectedText != nil {
			text := *obs.DetectedText
			cur.DetectedText = &text
		}
		return cur, nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", obs.Key, err)
	}
	return rec, nil
}

// uploadIfMissing uploads obs.Image when the stored record lacks an image.
// It returns "" when nothing was uploaded.
func (r *Repository) uploadIfMissing(ctx context.Context, obs Observation) string {
	if r.uploader == nil || len(obs.Image) == 0 {
		return ""
	}

	existing, err := r.store.Get(ctx, obs.Key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		// The transaction will surface a persistent read failure.
		monitoring.Logf("geostore: read %s before upload: %v", obs.Key, err)
		return ""
	case existing.ImageURL != nil:
		return ""
	}

	url, err := r.uploader.Upload(ctx, obs.Key, obs.Image)
	if err != nil {
		monitoring.Logf("geostore: image upload for %s failed, recording point without image: %v", obs.Key, err)
		return ""
	}
	return url
}
