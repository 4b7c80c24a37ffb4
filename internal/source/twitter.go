// internal/source/twitter.go

package source

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	twitter "github.com/g8rswimmer/go-twitter/v2"
	"github.com/rs/zerolog"

	"trendwire/internal/config"
	"trendwire/internal/domain/record"
)

const twitterAPIHost = "https://api.twitter.com"

// Ingester is the pipeline surface the source feeds into.
type Ingester interface {
	IngestBatch(ctx context.Context, candidates []*record.Candidate) []*record.IngestResult
}

type bearerAuthorizer struct {
	token string
}

func (a bearerAuthorizer) Add(req *http.Request) {
	req.Header.Add("Authorization", "Bearer "+a.token)
}

// TwitterSource polls the recent-search API and feeds matching tweets into
// the ingest pipeline as candidates.
type TwitterSource struct {
	client   *twitter.Client
	ingester Ingester
	config   config.TwitterConfig
	logger   zerolog.Logger

	sinceID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// NewTwitterSource creates a new Twitter source adapter
func NewTwitterSource(ingester Ingester, cfg config.TwitterConfig, logger zerolog.Logger) *TwitterSource {
	client := &twitter.Client{
		Authorizer: bearerAuthorizer{token: cfg.BearerToken},
		Client:     &http.Client{Timeout: 30 * time.Second},
		Host:       twitterAPIHost,
	}

	return &TwitterSource{
		client:   client,
		ingester: ingester,
		config:   cfg,
		logger:   logger.With().Str("component", "twitter_source").Logger(),
	}
}

// Start begins polling for tweets
func (s *TwitterSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return fmt.Errorf("twitter source already started")
	}
	if s.config.BearerToken == "" {
		return fmt.Errorf("twitter bearer token not configured")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.active = true

	s.wg.Add(1)
	go s.pollLoop()

	s.logger.Info().Str("query", s.config.Query).Dur("interval", s.config.PollInterval).Msg("twitter source started")
	return nil
}

// Stop halts polling and waits for the in-flight poll to finish
func (s *TwitterSource) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TwitterSource) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// First poll immediately so a fresh deploy does not sit idle.
	s.poll()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *TwitterSource) poll() {
	opts := twitter.TweetRecentSearchOpts{
		MaxResults: s.config.MaxResults,
		TweetFields: []twitter.TweetField{
			twitter.TweetFieldCreatedAt,
			twitter.TweetFieldLanguage,
			twitter.TweetFieldPublicMetrics,
			twitter.TweetFieldAuthorID,
		},
	}
	if s.sinceID != "" {
		opts.SinceID = s.sinceID
	}

	resp, err := s.client.TweetRecentSearch(s.ctx, s.config.Query, opts)
	if err != nil {
		s.logger.Warn().Err(err).Msg("tweet search failed")
		return
	}
	if resp.Raw == nil || len(resp.Raw.Tweets) == 0 {
		return
	}

	if resp.Meta != nil && resp.Meta.NewestID != "" {
		s.sinceID = resp.Meta.NewestID
	}

	candidates := make([]*record.Candidate, 0, len(resp.Raw.Tweets))
	for _, tweet := range resp.Raw.Tweets {
		candidates = append(candidates, candidateFromTweet(tweet))
	}

	results := s.ingester.IngestBatch(s.ctx, candidates)

	var ingested, duplicates, failed int
	for _, r := range results {
		switch r.Status {
		case record.StatusIngested:
			ingested++
		case record.StatusDuplicate:
			duplicates++
		default:
			failed++
		}
	}
	s.logger.Info().
		Int("tweets", len(candidates)).
		Int("ingested", ingested).
		Int("duplicates", duplicates).
		Int("failed", failed).
		Msg("poll complete")
}

// candidateFromTweet maps a tweet onto the ingest candidate shape. The tweet
// text doubles as title and summary; the pipeline normalizes from there.
func candidateFromTweet(tweet *twitter.TweetObj) *record.Candidate {
	title := tweet.Text
	if runes := []rune(title); len(runes) > 120 {
		title = string(runes[:120])
	}

	c := &record.Candidate{
		Platform:  "twitter",
		Category:  "social",
		Title:     title,
		Summary:   tweet.Text,
		SourceID:  tweet.ID,
		Author:    tweet.AuthorID,
		Language:  tweet.Language,
		URL:       fmt.Sprintf("https://twitter.com/i/web/status/%s", tweet.ID),
		Timestamp: tweet.CreatedAt,
	}

	if m := tweet.PublicMetrics; m != nil {
		c.Engagement = &record.EngagementMetrics{
			Likes:    int64(m.Likes),
			Shares:   int64(m.Retweets + m.Quotes),
			Comments: int64(m.Replies),
		}
	}

	return c
}
