package models

// MediaType represents the type of media (movie or tv show)
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// RequestStatus represents the lifecycle status of a request
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusDeclined  RequestStatus = "declined"
	RequestStatusFailed    RequestStatus = "failed"
	RequestStatusCompleted RequestStatus = "completed"
)

// MediaStatus represents the availability of a media item for one tier
type MediaStatus string

const (
	MediaStatusUnknown            MediaStatus = "unknown"
	MediaStatusPending            MediaStatus = "pending"
	MediaStatusProcessing         MediaStatus = "processing"
	MediaStatusPartiallyAvailable MediaStatus = "partially_available"
	MediaStatusAvailable          MediaStatus = "available"
	MediaStatusDeleted            MediaStatus = "deleted"
)
