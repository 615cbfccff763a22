package radarr

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/requestarr/internal/config"
	"github.com/amaumene/requestarr/internal/rest"
	"github.com/sirupsen/logrus"
)

const tagTTL = 1 * time.Minute

// Client handles communication with a single Radarr instance
type Client struct {
	rest   *rest.Client
	logger *logrus.Logger
}

// NewClient creates a new Radarr client for one configured server
func NewClient(server config.RadarrServer, logger *logrus.Logger) (*Client, error) {
	if server.URL == "" {
		return nil, fmt.Errorf("radarr URL is required")
	}
	if server.APIKey == "" {
		return nil, fmt.Errorf("radarr API key is required")
	}

	return &Client{
		rest: rest.NewClient("radarr-"+server.Name, server.URL+"/api/v3", logger,
			rest.WithHeaders(map[string]string{"X-Api-Key": server.APIKey}),
			rest.WithRateLimit(rest.RateLimit{MaxRPS: 5})),
		logger: logger,
	}, nil
}

// Movie is the subset of the Radarr movie resource this core needs
type Movie struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	TitleSlug string `json:"titleSlug"`
	TmdbID    int    `json:"tmdbId"`
	HasFile   bool   `json:"hasFile"`
}

// Tag is a Radarr tag
type Tag struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// AddMovieOptions is the payload for adding a movie
type AddMovieOptions struct {
	Title               string `json:"title"`
	TmdbID              int    `json:"tmdbId"`
	QualityProfileID    int    `json:"qualityProfileId"`
	RootFolderPath      string `json:"rootFolderPath"`
	MinimumAvailability string `json:"minimumAvailability"`
	Monitored           bool   `json:"monitored"`
	Tags                []int  `json:"tags"`
	AddOptions          struct {
		SearchForMovie bool `json:"searchForMovie"`
	} `json:"addOptions"`
}

// AddMovie adds a movie to Radarr
func (c *Client) AddMovie(ctx context.Context, opts AddMovieOptions) (*Movie, error) {
	var movie Movie
	if err := c.rest.Post(ctx, "/movie", opts, nil, 0, &movie); err != nil {
		return nil, fmt.Errorf("failed to add movie: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"tmdb_id": opts.TmdbID,
		"id":      movie.ID,
		"slug":    movie.TitleSlug,
	}).Info("Movie sent to Radarr")

	return &movie, nil
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
func (c *Client) ClearCache(tmdbID int) {
	c.rest.RemoveCache("/movie", nil)
	c.rest.RemoveCache(fmt.Sprintf("/movie/lookup/tmdb/%d", tmdbID), nil)
}
