package job

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aditus/server/internal/module/billing/usage"
	"github.com/aditus/server/internal/module/guard"
	"github.com/aditus/server/internal/module/user"
)

// Estimated token costs used for the quota check before the real cost
// is known.
const (
	extractCost     = 2_000
	personalizeCost = 3_000
)

var (
	// ErrNoInput is returned when an extraction request carries no source.
	ErrNoInput = errors.New("provide a url, text or screenshot")
	// ErrJobNotFound is returned when a posting key has no cached posting.
	ErrJobNotFound = errors.New("job posting not found")
	// ErrNoProfile is returned when personalization runs without a profile.
	ErrNoProfile = errors.New("master profile not set")
)

// UsageSink accepts usage records for asynchronous persistence.
type UsageSink interface {
	Record(record *usage.Record)
}

// ProfileSource provides the caller's master profile.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*user.MasterProfile, error)
}

// ExtractInput is one job posting source. Exactly one field set.
type ExtractInput struct {
	URL         string
	Text        string
	Screenshot  []byte
	ContentType string
}

// ExtractResult is an extraction answer with its cache key.
type ExtractResult struct {
	Key     string
	Posting *Posting
	Cached  bool
}

// PersonalizeResult is a personalization answer with its cache key.
type PersonalizeResult struct {
	Key     string
	Content string
	Cached  bool
}

// Service implements job extraction and CV personalization. Every
// expensive path runs through the guard, which owns the quota check and
// the cache.
type Service struct {
	ai          AIClient
	guard       *guard.Service
	profiles    ProfileSource
	screenshots ScreenshotStore
	recorder    UsageSink
	logger      *zap.Logger
}

// NewService creates a new job service.
func NewService(ai AIClient, g *guard.Service, profiles ProfileSource, screenshots ScreenshotStore, recorder UsageSink, logger *zap.Logger) *Service {
	return &Service{
		ai:          ai,
		guard:       g,
		profiles:    profiles,
		screenshots: screenshots,
		recorder:    recorder,
		logger:      logger,
	}
}

// ExtractJob resolves the input to raw content, then extracts a
// structured posting through the guard. Identical content from any user
// reuses the cached posting.
func (s *Service) ExtractJob(ctx context.Context, userID uuid.UUID, input ExtractInput) (*ExtractResult, error) {
	content, source, sourceRef, err := s.resolveInput(ctx, userID, input)
	if err != nil {
		return nil, err
	}

	key := contentKey(content)
	started := time.Now()
	var tokens int64

	value, cached, err := s.guard.GetOrCompute(ctx, userID, key, guard.TierJobPosting, "extract_job", extractCost,
		func(ctx context.Context) (json.RawMessage, error) {
			posting, used, err := s.ai.ExtractJob(ctx, content)
			if err != nil {
				return nil, fmt.Errorf("extract job: %w", err)
			}
			tokens = used
			posting.Source = source
			posting.SourceRef = sourceRef
			return json.Marshal(posting)
		},
	)
	s.record(userID, key, "extract_job", tokens, started, err == nil, cached)
	if err != nil {
		return nil, err
	}

	var posting Posting
	if err := json.Unmarshal(value, &posting); err != nil {
		return nil, fmt.Errorf("decode posting: %w", err)
	}
	return &ExtractResult{Key: key, Posting: &posting, Cached: cached}, nil
}

// PersonalizeCV tailors the caller's master profile to an extracted
// posting. The result is cached per user and keyed by both the posting
// and the profile content, so a profile update naturally misses.
func (s *Service) PersonalizeCV(ctx context.Context, userID uuid.UUID, jobKey string) (*PersonalizeResult, error) {
	postingRaw, found, err := s.guard.Get(ctx, uuid.Nil, jobKey, guard.TierJobPosting)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrJobNotFound
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrProfileNotFound) {
			return nil, ErrNoProfile
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	key := contentKey(jobKey + "|" + profile.Content)
	started := time.Now()
	var tokens int64

	value, cached, err := s.guard.GetOrCompute(ctx, userID, key, guard.TierContent, "personalize_cv", personalizeCost,
		func(ctx context.Context) (json.RawMessage, error) {
			content, used, err := s.ai.PersonalizeCV(ctx, profile.Content, string(postingRaw))
			if err != nil {
				return nil, fmt.Errorf("personalize cv: %w", err)
			}
			tokens = used
			return json.Marshal(content)
		},
	)
	s.record(userID, key, "personalize_cv", tokens, started, err == nil, cached)
	if err != nil {
		return nil, err
	}

	var content string
	if err := json.Unmarshal(value, &content); err != nil {
		return nil, fmt.Errorf("decode cv: %w", err)
	}
	return &PersonalizeResult{Key: key, Content: content, Cached: cached}, nil
}

func (s *Service) resolveInput(ctx context.Context, userID uuid.UUID, input ExtractInput) (content string, source Source, sourceRef string, err error) {
	switch {
	case input.URL != "":
		return input.URL, SourceURL, input.URL, nil
	case input.Text != "":
		return input.Text, SourceText, "", nil
	case len(input.Screenshot) > 0:
		if s.screenshots == nil {
			return "", "", "", errors.New("screenshot storage not configured")
		}
		key, err := s.screenshots.Store(ctx, userID, input.Screenshot, input.ContentType)
		if err != nil {
			return "", "", "", fmt.Errorf("store screenshot: %w", err)
		}
		return key, SourceScreenshot, key, nil
	default:
		return "", "", "", ErrNoInput
	}
}

func (s *Service) record(userID uuid.UUID, key, taskType string, tokens int64, started time.Time, success, cached bool) {
	if cached {
		tokens = 0
	}
	s.recorder.Record(&usage.Record{
		UserID:    userID,
		RequestID: key,
		TaskType:  taskType,
		Tokens:    tokens,
		LatencyMs: int(time.Since(started).Milliseconds()),
		Success:   success,
		CacheHit:  cached,
	})
}

func contentKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
