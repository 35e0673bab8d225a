package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"matchflow/logger"
)

// Entity collections holding provider reference data.
const (
	entityEventTypes = "opta_event_types"
	entityTeams      = "opta_teams"
	entityPlayers    = "opta_players"
	entityQualifiers = "opta_event_qualifiers"
)

var (
	// ErrNotFound means the catalog answered but holds no record for the id.
	ErrNotFound = errors.New("catalog: record not found")

	// ErrUnavailable means the catalog could not be reached or answered with
	// a failure; callers degrade to the "Unknown" placeholder.
	ErrUnavailable = errors.New("catalog: lookup unavailable")
)

// Record is a resolved reference entry. Only the fields the pipeline reads
// are decoded; Photo and GoalTemplate are empty for entities that lack them.
type Record struct {
	Name         string `json:"name"`
	Photo        string `json:"photo"`
	GoalTemplate string `json:"goal_template"`
}

// Client resolves opaque provider ids against a Directus-style items API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func NewClient(baseURL, token string, timeout time.Duration, rps float64, burst int) *Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Transport: transport, Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
	}

	c.log.WithComponent("catalog").WithFields(logger.Fields{
		"base_url": baseURL,
		"timeout":  timeout,
	}).Info("catalog client initialized")

	return c
}

// EventTypeByProviderID resolves a provider event type id to its display record.
func (c *Client) EventTypeByProviderID(ctx context.Context, id int) (*Record, error) {
	return c.lookup(ctx, entityEventTypes, fmt.Sprintf("%d", id))
}

// TeamByProviderID resolves a provider contestant id to its display record.
func (c *Client) TeamByProviderID(ctx context.Context, id string) (*Record, error) {
	return c.lookup(ctx, entityTeams, id)
}

// PlayerByProviderID resolves a provider player id to its display record.
func (c *Client) PlayerByProviderID(ctx context.Context, id string) (*Record, error) {
	return c.lookup(ctx, entityPlayers, id)
}

// QualifierByProviderID resolves a provider qualifier id to its display record.
func (c *Client) QualifierByProviderID(ctx context.Context, id int) (*Record, error) {
	return c.lookup(ctx, entityQualifiers, fmt.Sprintf("%d", id))
}

func (c *Client) lookup(ctx context.Context, entity, providerID string) (*Record, error) {
	if providerID == "" || providerID == "0" {
		return nil, ErrNotFound
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	filter := fmt.Sprintf(`{"opta_id":{"_eq":%q}}`, providerID)
	query := url.Values{}
	query.Set("filter", filter)
	query.Set("limit", "1")

	u := fmt.Sprintf("%s/items/%s?%s", c.baseURL, entity, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnavailable, entity, resp.StatusCode)
	}

	var body struct {
		Data []Record `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(body.Data) == 0 {
		return nil, ErrNotFound
	}
	return &body.Data[0], nil
}
