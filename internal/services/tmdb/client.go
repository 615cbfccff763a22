package tmdb

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/amaumene/requestarr/internal/rest"
	"github.com/sirupsen/logrus"
)

const (
	baseURL = "https://api.themoviedb.org/3"

	// AnimeKeywordID is the TMDB keyword attached to anime series
	AnimeKeywordID = 210024

	detailTTL = 5 * time.Minute
)

// Client handles communication with the TMDB API
type Client struct {
	rest   *rest.Client
	apiKey string
	logger *logrus.Logger
}

// NewClient creates a new TMDB client
func NewClient(apiKey string, logger *logrus.Logger) (*Client, error) {
	return NewClientForURL(baseURL, apiKey, logger)
}

// NewClientForURL creates a TMDB client against a specific base URL
func NewClientForURL(apiURL, apiKey string, logger *logrus.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("TMDB API key is required")
	}

	return &Client{
		rest: rest.NewClient("tmdb", apiURL, logger,
			rest.WithRateLimit(rest.RateLimit{MaxRequests: 40, WindowSeconds: 10})),
		apiKey: apiKey,
		logger: logger,
	}, nil
}

// Movie represents a movie from TMDB
type Movie struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	Overview    string `json:"overview"`
	PosterPath  string `json:"poster_path"`
	ImdbID      string `json:"imdb_id"`
}

// Keyword represents a TMDB keyword
type Keyword struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Series represents a TV series from TMDB, including external ids and keywords
type Series struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	FirstAirDate string `json:"first_air_date"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`

	ExternalIDs struct {
		TvdbID int    `json:"tvdb_id"`
		ImdbID string `json:"imdb_id"`
	} `json:"external_ids"`

	Keywords struct {
		Results []Keyword `json:"results"`
	} `json:"keywords"`

	Seasons []struct {
		SeasonNumber int `json:"season_number"`
	} `json:"seasons"`
}

// IsAnime reports whether the series carries the anime keyword
func (s *Series) IsAnime() bool {
	for _, keyword := range s.Keywords.Results {
		if keyword.ID == AnimeKeywordID {
			return true
		}
	}
	return false
}

func (c *Client) params(extra url.Values) url.Values {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	for name, values := range extra {
		for _, value := range values {
			params.Add(name, value)
		}
	}
	return params
}

// GetMovie retrieves a movie by TMDB id
func (c *Client) GetMovie(ctx context.Context, id int) (*Movie, error) {
	var movie Movie
	endpoint := fmt.Sprintf("/movie/%d", id)
	if err := c.rest.Get(ctx, endpoint, c.params(nil), detailTTL, &movie); err != nil {
		return nil, fmt.Errorf("failed to get movie %d: %w", id, err)
	}
	return &movie, nil
}

// GetSeries retrieves a series by TMDB id, with external ids and keywords
func (c *Client) GetSeries(ctx context.Context, id int) (*Series, error) {
	var series Series
	endpoint := fmt.Sprintf("/tv/%d", id)
	params := c.params(url.Values{"append_to_response": []string{"external_ids,keywords"}})
	if err := c.rest.Get(ctx, endpoint, params, detailTTL, &series); err != nil {
		return nil, fmt.Errorf("failed to get series %d: %w", id, err)
	}
	return &series, nil
}

// GetMovieRolling is GetMovie through the rolling cache, for high-frequency
// callers like the watchlist fan-out
func (c *Client) GetMovieRolling(ctx context.Context, id int) (*Movie, error) {
	var movie Movie
	endpoint := fmt.Sprintf("/movie/%d", id)
	if err := c.rest.GetRolling(ctx, endpoint, c.params(nil), detailTTL, &movie); err != nil {
		return nil, fmt.Errorf("failed to get movie %d: %w", id, err)
	}
	return &movie, nil
}

// GetSeriesRolling is GetSeries through the rolling cache
func (c *Client) GetSeriesRolling(ctx context.Context, id int) (*Series, error) {
	var series Series
	endpoint := fmt.Sprintf("/tv/%d", id)
	params := c.params(url.Values{"append_to_response": []string{"external_ids,keywords"}})
	if err := c.rest.GetRolling(ctx, endpoint, params, detailTTL, &series); err != nil {
		return nil, fmt.Errorf("failed to get series %d: %w", id, err)
	}
	return &series, nil
}
