package mentions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	redditAuthURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIURL  = "https://oauth.reddit.com"

	// redditPageSize is the largest listing page reddit serves.
	redditPageSize = 100
)

// ErrMissingRedditCredentials is returned when client id or secret is empty.
var ErrMissingRedditCredentials = errors.New("mentions: missing reddit credentials (REDDIT_CLIENT_ID / REDDIT_CLIENT_SECRET)")

// RedditCredentials identify a script-type reddit app.
type RedditCredentials struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
}

// RedditSource reads /r/{sub}/new listings with an application-only
// OAuth token.
type RedditSource struct {
	creds      RedditCredentials
	authURL    string
	apiURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// RedditOption configures a RedditSource.
type RedditOption func(*RedditSource)

// WithRedditBaseURLs points the source at different auth and API hosts.
func WithRedditBaseURLs(authURL, apiURL string) RedditOption {
	return func(s *RedditSource) {
		s.authURL = authURL
		s.apiURL = apiURL
	}
}

// WithRedditHTTPClient sets a custom HTTP client.
func WithRedditHTTPClient(c *http.Client) RedditOption {
	return func(s *RedditSource) {
		s.httpClient = c
	}
}

// WithRedditRateLimit sets the request rate limit.
func WithRedditRateLimit(l *rate.Limiter) RedditOption {
	return func(s *RedditSource) {
		s.limiter = l
	}
}

// WithRedditClock overrides the clock used for the lookback cutoff.
func WithRedditClock(now func() time.Time) RedditOption {
	return func(s *RedditSource) {
		s.now = now
	}
}

// NewRedditSource creates a reddit source. Credentials are checked on
// Fetch so a missing key degrades to the fallback dataset instead of
// failing startup.
func NewRedditSource(creds RedditCredentials, opts ...RedditOption) *RedditSource {
	if creds.UserAgent == "" {
		creds.UserAgent = "pennybuzz/0.1"
	}
	s := &RedditSource{
		creds:      creds,
		authURL:    redditAuthURL,
		apiURL:     redditAPIURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		// reddit allows 100 QPM for OAuth clients.
		limiter: rate.NewLimiter(rate.Every(600*time.Millisecond), 5),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data struct {
				Title      string  `json:"title"`
				Selftext   string  `json:"selftext"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch returns posts newer than now-Lookback from each subreddit, reading
// at most LimitPerSource posts per subreddit.
func (s *RedditSource) Fetch(ctx context.Context, q Query) ([]Post, error) {
	if strings.TrimSpace(s.creds.ClientID) == "" || strings.TrimSpace(s.creds.ClientSecret) == "" {
		return nil, ErrMissingRedditCredentials
	}
	cutoff := s.now().UTC().Add(-q.Lookback)

	var posts []Post
	for _, sub := range q.Subreddits {
		read := 0
		after := ""
		for read < q.LimitPerSource {
			n := min(redditPageSize, q.LimitPerSource-read)
			listing, err := s.listNew(ctx, sub, n, after)
			if err != nil {
				return nil, fmt.Errorf("list r/%s: %w", sub, err)
			}
			for _, child := range listing.Data.Children {
				created := time.Unix(int64(child.Data.CreatedUTC), 0).UTC()
				if created.Before(cutoff) {
					continue
				}
				posts = append(posts, Post{
					Text:      child.Data.Title + "\n" + child.Data.Selftext,
					CreatedAt: created,
				})
			}
			read += len(listing.Data.Children)
			after = listing.Data.After
			if after == "" || len(listing.Data.Children) == 0 {
				break
			}
		}
	}
	return posts, nil
}

func (s *RedditSource) listNew(ctx context.Context, sub string, limit int, after string) (*redditListing, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("raw_json", "1")
	if after != "" {
		params.Set("after", after)
	}
	endpoint := fmt.Sprintf("%s/r/%s/new?%s", s.apiURL, url.PathEscape(sub), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := s.do(req)
	if err != nil {
		return nil, err
	}
	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("unmarshal listing: %w", err)
	}
	return &listing, nil
}

func (s *RedditSource) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(s.creds.ClientID, s.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := s.do(req)
	if err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("unmarshal token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token: empty access token")
	}
	s.token = tok.AccessToken
	// Refresh a minute early.
	s.tokenExpiry = s.now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return s.token, nil
}

func (s *RedditSource) do(req *http.Request) ([]byte, error) {
	if err := s.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	req.Header.Set("User-Agent", s.creds.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
