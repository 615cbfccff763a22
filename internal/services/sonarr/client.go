package sonarr

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/requestarr/internal/config"
	"github.com/amaumene/requestarr/internal/rest"
	"github.com/sirupsen/logrus"
)

const tagTTL = 1 * time.Minute

// Series type constants understood by Sonarr
const (
	SeriesTypeStandard = "standard"
	SeriesTypeAnime    = "anime"
)

// Client handles communication with a single Sonarr instance
type Client struct {
	rest   *rest.Client
	logger *logrus.Logger
}

// NewClient creates a new Sonarr client for one configured server
func NewClient(server config.SonarrServer, logger *logrus.Logger) (*Client, error) {
	if server.URL == "" {
		return nil, fmt.Errorf("sonarr URL is required")
	}
	if server.APIKey == "" {
		return nil, fmt.Errorf("sonarr API key is required")
	}

	return &Client{
		rest: rest.NewClient("sonarr-"+server.Name, server.URL+"/api/v3", logger,
			rest.WithHeaders(map[string]string{"X-Api-Key": server.APIKey}),
			rest.WithRateLimit(rest.RateLimit{MaxRPS: 5})),
		logger: logger,
	}, nil
}

// Series is the subset of the Sonarr series resource this core needs
type Series struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	TitleSlug string `json:"titleSlug"`
	TvdbID    int    `json:"tvdbId"`
}

// Tag is a Sonarr tag
type Tag struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// AddSeriesSeason selects one season on an add call
type AddSeriesSeason struct {
	SeasonNumber int  `json:"seasonNumber"`
	Monitored    bool `json:"monitored"`
}

// AddSeriesOptions is the payload for adding a series
type AddSeriesOptions struct {
	Title             string            `json:"title"`
	TvdbID            int               `json:"tvdbId"`
	QualityProfileID  int               `json:"qualityProfileId"`
	LanguageProfileID int               `json:"languageProfileId"`
	RootFolderPath    string            `json:"rootFolderPath"`
	SeriesType        string            `json:"seriesType"`
	SeasonFolder      bool              `json:"seasonFolder"`
	Monitored         bool              `json:"monitored"`
	Tags              []int             `json:"tags"`
	Seasons           []AddSeriesSeason `json:"seasons"`
	AddOptions        struct {
		SearchForMissingEpisodes bool `json:"searchForMissingEpisodes"`
	} `json:"addOptions"`
}

// AddSeries adds a series to Sonarr
func (c *Client) AddSeries(ctx context.Context, opts AddSeriesOptions) (*Series, error) {
	var series Series
	if err := c.rest.Post(ctx, "/series", opts, nil, 0, &series); err != nil {
		return nil, fmt.Errorf("failed to add series: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"tvdb_id": opts.TvdbID,
		"id":      series.ID,
		"slug":    series.TitleSlug,
	}).Info("Series sent to Sonarr")

	return &series, nil
}

// GetTags retrieves all tags
func (c *Client) GetTags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	if err := c.rest.Get(ctx, "/tag", nil, tagTTL, &tags); err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}
	return tags, nil
}

// CreateTag creates a tag and invalidates the cached tag list
func (c *Client) CreateTag(ctx context.Context, label string) (*Tag, error) {
	var tag Tag
	if err := c.rest.Post(ctx, "/tag", map[string]string{"label": label}, nil, 0, &tag); err != nil {
		return nil, fmt.Errorf("failed to create tag %q: %w", label, err)
	}

	c.rest.RemoveCache("/tag", nil)
	return &tag, nil
}

// ClearCache invalidates cached reads for a title after a mutation
func (c *Client) ClearCache(tvdbID int) {
	c.rest.RemoveCache("/series", nil)
	c.rest.RemoveCache(fmt.Sprintf("/series/lookup/tvdb/%d", tvdbID), nil)
}
