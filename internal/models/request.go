package models

import "time"

// Request represents a user request for a media title on one quality tier
type Request struct {
	ID      uint64 `boltholdKey:"ID"`
	MediaID uint64 `boltholdIndex:"MediaID"`

	MediaType MediaType
	Is4K      bool
	Status    RequestStatus `boltholdIndex:"Status"`

	// Requester identity
	RequestedBy string

	// Per-request overrides of the destination server defaults.
	// Zero values mean "use the server default".
	ServerID          *int
	ProfileID         *int
	RootFolder        string
	LanguageProfileID *int
	Tags              []int

	// Set once the external add call has been confirmed. Approved requests
	// without it are picked up by the dispatch sweep.
	DispatchedAt *time.Time

	// Set when the availability notification for this request has fired,
	// so repeated completion events notify at most once.
	NotifiedAt *time.Time

	// Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SeasonRequest tracks per-season approval state for a series request
type SeasonRequest struct {
	ID        uint64 `boltholdKey:"ID"`
	RequestID uint64 `boltholdIndex:"RequestID"`

	SeasonNumber int
	Status       RequestStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}
