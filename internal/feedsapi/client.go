package feedsapi

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"matchflow/logger"
)

// Client talks to the provider's stats REST API: token exchange, tournament
// calendar, fixture discovery and per-fixture match stats. The feed client
// does not need it; enrichment uses it to look up the current scoreline for
// goal media payloads.
type Client struct {
	baseURL     string
	authURL     string
	outlet      string
	secret      string
	competition string
	client      *http.Client
	log         *logger.Log

	mu    sync.Mutex
	token string
}

func NewClient(baseURL, authURL, outlet, secret, competition string, timeout time.Duration) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		authURL:     strings.TrimRight(authURL, "/"),
		outlet:      outlet,
		secret:      secret,
		competition: competition,
		client:      &http.Client{Timeout: timeout},
		log:         logger.GetLogger(),
	}

	c.log.WithComponent("feeds_api").WithFields(logger.Fields{
		"base_url": baseURL,
		"outlet":   outlet,
	}).Info("feeds api client initialized")

	return c
}

// uniqueHash is the provider's request signature:
// SHA-512 over outlet + millisecond timestamp + secret.
func uniqueHash(outlet, secret string, timestamp int64) string {
	sum := sha512.Sum512([]byte(outlet + fmt.Sprintf("%d", timestamp) + secret))
	return hex.EncodeToString(sum[:])
}

// Authenticate exchanges the outlet credential for a bearer token.
func (c *Client) Authenticate(ctx context.Context) error {
	timestamp := time.Now().UnixMilli()
	hash := uniqueHash(c.outlet, c.secret, timestamp)

	body := url.Values{}
	body.Set("grant_type", "client_credentials")
	body.Set("scope", "b2b-feeds-auth")

	u := fmt.Sprintf("%s/%s?_fmt=json&_rt=b", c.authURL, c.outlet)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(body.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+hash)
	req.Header.Set("Timestamp", fmt.Sprintf("%d", timestamp))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token request returned status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("token response carried no access token")
	}

	c.mu.Lock()
	c.token = out.AccessToken
	c.mu.Unlock()

	c.log.WithComponent("feeds_api").Info("authenticated with feeds api")
	return nil
}

func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ActiveTournamentCalendarID returns the active tournament calendar for the
// configured competition.
func (c *Client) ActiveTournamentCalendarID(ctx context.Context) (string, error) {
	u := fmt.Sprintf("%s/tournamentcalendar/%s/active?_rt=b&_fmt=json&comp=%s",
		c.baseURL, c.outlet, url.QueryEscape(c.competition))

	var data struct {
		Competition []struct {
			TournamentCalendar []struct {
				ID string `json:"id"`
			} `json:"tournamentCalendar"`
		} `json:"competition"`
	}
	if err := c.get(ctx, u, &data); err != nil {
		return "", err
	}
	if len(data.Competition) == 0 || len(data.Competition[0].TournamentCalendar) == 0 {
		return "", fmt.Errorf("could not extract tournament calendar id")
	}
	return data.Competition[0].TournamentCalendar[0].ID, nil
}

// TodayFixtureUUIDs returns the fixture ids scheduled for today in the given
// tournament calendar.
func (c *Client) TodayFixtureUUIDs(ctx context.Context, tournamentID string) ([]string, error) {
	u := fmt.Sprintf("%s/tournamentschedule/%s?tmcl=%s&_fmt=json&_rt=b",
		c.baseURL, c.outlet, url.QueryEscape(tournamentID))

	var data struct {
		MatchDate []struct {
			Date  string `json:"date"`
			Match []struct {
				ID string `json:"id"`
			} `json:"match"`
		} `json:"matchDate"`
	}
	if err := c.get(ctx, u, &data); err != nil {
		return nil, err
	}

	today := time.Now().Format("2006-01-02")
	var fixtures []string
	for _, md := range data.MatchDate {
		date := strings.TrimSuffix(md.Date, "Z")
		if !strings.HasPrefix(date, today) {
			continue
		}
		for _, m := range md.Match {
			fixtures = append(fixtures, m.ID)
		}
	}
	return fixtures, nil
}

// MatchScores returns the raw scores object from the fixture's live match
// details, for embedding in goal media payloads.
func (c *Client) MatchScores(ctx context.Context, fixtureUUID string) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/matchstats/%s/%s?_rt=b&_fmt=json", c.baseURL, c.outlet, fixtureUUID)

	var data struct {
		LiveData struct {
			MatchDetails struct {
				Scores json.RawMessage `json:"scores"`
			} `json:"matchDetails"`
		} `json:"liveData"`
	}
	if err := c.get(ctx, u, &data); err != nil {
		return nil, err
	}
	if len(data.LiveData.MatchDetails.Scores) == 0 {
		return nil, fmt.Errorf("no scores in match stats for fixture %s", fixtureUUID)
	}
	return data.LiveData.MatchDetails.Scores, nil
}
