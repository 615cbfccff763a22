package models

import "time"

// Media represents a title known to the system, tracked per quality tier
type Media struct {
	ID     uint64 `boltholdKey:"ID"`
	TmdbID int    `boltholdIndex:"TmdbID"`
	TvdbID int
	ImdbID string

	MediaType MediaType
	Title     string

	// Availability per tier
	Status   MediaStatus
	Status4K MediaStatus

	// External acquisition service linkage per tier
	ServiceID             *int
	ExternalServiceID     *int
	ExternalServiceSlug   string
	ServiceID4K           *int
	ExternalServiceID4K   *int
	ExternalServiceSlug4K string

	// TV show seasons (empty for movies)
	Seasons []Season

	// Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Season tracks per-season availability for a TV show
type Season struct {
	SeasonNumber int
	Status       MediaStatus
	Status4K     MediaStatus
}

// StatusForTier returns the media status for the given tier
func (m *Media) StatusForTier(is4k bool) MediaStatus {
	if is4k {
		return m.Status4K
	}
	return m.Status
}

// SetStatusForTier sets the media status for the given tier
func (m *Media) SetStatusForTier(is4k bool, status MediaStatus) {
	if is4k {
		m.Status4K = status
	} else {
		m.Status = status
	}
}

// SeasonStatusForTier returns the status of a season for the given tier,
// or MediaStatusUnknown when the season is not tracked
func (m *Media) SeasonStatusForTier(seasonNumber int, is4k bool) MediaStatus {
	for _, season := range m.Seasons {
		if season.SeasonNumber == seasonNumber {
			if is4k {
				return season.Status4K
			}
			return season.Status
		}
	}
	return MediaStatusUnknown
}

// SetSeasonStatusForTier sets a season's status for the given tier, creating
// the season entry when it is not tracked yet
func (m *Media) SetSeasonStatusForTier(seasonNumber int, is4k bool, status MediaStatus) {
	for i := range m.Seasons {
		if m.Seasons[i].SeasonNumber == seasonNumber {
			if is4k {
				m.Seasons[i].Status4K = status
			} else {
				m.Seasons[i].Status = status
			}
			return
		}
	}

	season := Season{SeasonNumber: seasonNumber, Status: MediaStatusUnknown, Status4K: MediaStatusUnknown}
	if is4k {
		season.Status4K = status
	} else {
		season.Status = status
	}
	m.Seasons = append(m.Seasons, season)
}

// SetServiceLinkage records the external service linkage for the given tier
func (m *Media) SetServiceLinkage(is4k bool, serviceID, externalID int, slug string) {
	if is4k {
		m.ServiceID4K = &serviceID
		m.ExternalServiceID4K = &externalID
		m.ExternalServiceSlug4K = slug
	} else {
		m.ServiceID = &serviceID
		m.ExternalServiceID = &externalID
		m.ExternalServiceSlug = slug
	}
}
