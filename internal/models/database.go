package models

import (
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Ping verifies the underlying store is open and readable
func (db *Database) Ping() error {
	return db.store.Bolt().View(func(tx *bbolt.Tx) error {
		return nil
	})
}

// Media operations

// CreateMedia creates a new media item in the database
func (db *Database) CreateMedia(media *Media) error {
	media.CreatedAt = time.Now()
	media.UpdatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), media)
}

// UpdateMedia updates an existing media item
func (db *Database) UpdateMedia(media *Media) error {
	media.UpdatedAt = time.Now()
	return db.store.Update(media.ID, media)
}

// GetMediaByID retrieves a media item by ID
func (db *Database) GetMediaByID(id uint64) (*Media, error) {
	var media Media
	err := db.store.Get(id, &media)
	if err != nil {
		return nil, err
	}
	return &media, nil
}

// GetMediaByTmdbID retrieves a media item by TMDB ID and type
func (db *Database) GetMediaByTmdbID(tmdbID int, mediaType MediaType) (*Media, error) {
	var media Media
	err := db.store.FindOne(&media,
		bolthold.Where("TmdbID").Eq(tmdbID).And("MediaType").Eq(mediaType))
	if err != nil {
		return nil, err
	}
	return &media, nil
}

// DeleteMedia deletes a media item by ID
func (db *Database) DeleteMedia(id uint64) error {
	return db.store.Delete(id, &Media{})
}

// Request operations

// CreateRequest creates a new request
func (db *Database) CreateRequest(request *Request) error {
	request.CreatedAt = time.Now()
	request.UpdatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), request)
}

// UpdateRequest updates an existing request
func (db *Database) UpdateRequest(request *Request) error {
	request.UpdatedAt = time.Now()
	return db.store.Update(request.ID, request)
}

// GetRequestByID retrieves a request by ID
func (db *Database) GetRequestByID(id uint64) (*Request, error) {
	var request Request
	err := db.store.Get(id, &request)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// GetAllRequests retrieves all requests
func (db *Database) GetAllRequests() ([]*Request, error) {
	var requests []*Request
	err := db.store.Find(&requests, nil)
	return requests, err
}

// GetAllMedias retrieves all media items
func (db *Database) GetAllMedias() ([]*Media, error) {
	var medias []*Media
	err := db.store.Find(&medias, nil)
	return medias, err
}

// GetRequestsByMediaID retrieves all requests targeting a media item
func (db *Database) GetRequestsByMediaID(mediaID uint64) ([]*Request, error) {
	var requests []*Request
	err := db.store.Find(&requests, bolthold.Where("MediaID").Eq(mediaID))
	return requests, err
}

// GetRequestsByStatus retrieves all requests with a specific status
func (db *Database) GetRequestsByStatus(status RequestStatus) ([]*Request, error) {
	var requests []*Request
	err := db.store.Find(&requests, bolthold.Where("Status").Eq(status))
	return requests, err
}

// GetUndispatchedApproved retrieves approved requests whose external add call
// has not been confirmed before the cutoff time
func (db *Database) GetUndispatchedApproved(cutoff time.Time) ([]*Request, error) {
	var requests []*Request
	err := db.store.Find(&requests, bolthold.Where("Status").Eq(RequestStatusApproved))
	if err != nil {
		return nil, err
	}

	var stale []*Request
	for _, request := range requests {
		if request.DispatchedAt == nil && request.UpdatedAt.Before(cutoff) {
			stale = append(stale, request)
		}
	}
	return stale, nil
}

// DeleteRequest deletes a request and its season requests
func (db *Database) DeleteRequest(id uint64) error {
	if err := db.DeleteSeasonRequestsByRequestID(id); err != nil {
		return err
	}
	return db.store.Delete(id, &Request{})
}

// Season request operations

// CreateSeasonRequest creates a new season request
func (db *Database) CreateSeasonRequest(season *SeasonRequest) error {
	season.CreatedAt = time.Now()
	season.UpdatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), season)
}

// UpdateSeasonRequest updates an existing season request
func (db *Database) UpdateSeasonRequest(season *SeasonRequest) error {
	season.UpdatedAt = time.Now()
	return db.store.Update(season.ID, season)
}

// GetSeasonRequestsByRequestID retrieves the season requests of a request
func (db *Database) GetSeasonRequestsByRequestID(requestID uint64) ([]*SeasonRequest, error) {
	var seasons []*SeasonRequest
	err := db.store.Find(&seasons, bolthold.Where("RequestID").Eq(requestID))
	return seasons, err
}

// DeleteSeasonRequestsByRequestID deletes all season requests of a request
func (db *Database) DeleteSeasonRequestsByRequestID(requestID uint64) error {
	var seasons []*SeasonRequest
	err := db.store.Find(&seasons, bolthold.Where("RequestID").Eq(requestID))
	if err != nil {
		return err
	}

	for _, season := range seasons {
		if err := db.store.Delete(season.ID, &SeasonRequest{}); err != nil {
			return err
		}
	}

	return nil
}
