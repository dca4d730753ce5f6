package job

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aditus/server/internal/module/billing"
	"github.com/aditus/server/internal/module/billing/usage"
	"github.com/aditus/server/internal/module/guard"
	"github.com/aditus/server/internal/module/user"
	"github.com/aditus/server/internal/shared/config"
	apperrors "github.com/aditus/server/internal/shared/errors"
)

// fakeAI counts calls and answers with fixed content.
type fakeAI struct {
	extracts     int
	personalizes int
	err          error
}

func (f *fakeAI) ExtractJob(_ context.Context, content string) (*Posting, int64, error) {
	f.extracts++
	if f.err != nil {
		return nil, 0, f.err
	}
	return &Posting{Title: "Backend Engineer", Company: "Acme", Description: content}, 1_800, nil
}

func (f *fakeAI) PersonalizeCV(_ context.Context, profile, _ string) (string, int64, error) {
	f.personalizes++
	if f.err != nil {
		return "", 0, f.err
	}
	return "CV tailored from: " + profile, 2_500, nil
}

// fakeStore records uploads without talking to object storage.
type fakeStore struct {
	uploads int
}

func (f *fakeStore) Store(_ context.Context, userID uuid.UUID, _ []byte, _ string) (string, error) {
	f.uploads++
	return fmt.Sprintf("screenshots/%s/test-%d", userID, f.uploads), nil
}

// fakeProfiles serves one profile for every user.
type fakeProfiles struct {
	content string
	missing bool
}

func (f *fakeProfiles) GetProfile(_ context.Context, userID uuid.UUID) (*user.MasterProfile, error) {
	if f.missing {
		return nil, user.ErrProfileNotFound
	}
	return &user.MasterProfile{UserID: userID, Content: f.content}, nil
}

// fakeSink collects usage records synchronously.
type fakeSink struct {
	records []*usage.Record
}

func (f *fakeSink) Record(record *usage.Record) {
	f.records = append(f.records, record)
}

// quotaStub implements the billing interface the guard consults.
type quotaStub struct {
	billing.ServiceInterface
	denied bool
}

func (q *quotaStub) CheckQuota(_ context.Context, _ uuid.UUID, _ string, _ int64) error {
	if q.denied {
		return apperrors.QuotaExceeded("daily token limit reached", nil)
	}
	return nil
}

type fixture struct {
	svc      *Service
	ai       *fakeAI
	store    *fakeStore
	profiles *fakeProfiles
	sink     *fakeSink
	quota    *quotaStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&guard.CacheEntry{}))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	quota := &quotaStub{}
	g := guard.NewService(guard.NewRepository(db), quota, &config.CacheConfig{
		JobPostingTTL: 7 * 24 * time.Hour,
		SessionTTL:    time.Hour,
		ContentTTL:    24 * time.Hour,
	}, nil, zap.NewNop())

	f := &fixture{
		ai:       &fakeAI{},
		store:    &fakeStore{},
		profiles: &fakeProfiles{content: "10 years of Go"},
		sink:     &fakeSink{},
		quota:    quota,
	}
	f.svc = NewService(f.ai, g, f.profiles, f.store, f.sink, zap.NewNop())
	return f
}

func TestExtractJobFromText(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	result, err := f.svc.ExtractJob(context.Background(), userID, ExtractInput{Text: "We are hiring a backend engineer"})
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, "Backend Engineer", result.Posting.Title)
	assert.Equal(t, SourceText, result.Posting.Source)
	assert.Len(t, result.Key, 64, "key is a sha256 hex digest")

	require.Len(t, f.sink.records, 1)
	assert.Equal(t, int64(1_800), f.sink.records[0].Tokens)
	assert.False(t, f.sink.records[0].CacheHit)
}

func TestExtractJobCachedAcrossUsers(t *testing.T) {
	f := newFixture(t)
	input := ExtractInput{URL: "https://jobs.example/backend"}

	first, err := f.svc.ExtractJob(context.Background(), uuid.New(), input)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.svc.ExtractJob(context.Background(), uuid.New(), input)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, 1, f.ai.extracts, "extraction ran once")

	// The cache hit is still a metered request, at zero tokens.
	require.Len(t, f.sink.records, 2)
	assert.True(t, f.sink.records[1].CacheHit)
	assert.Zero(t, f.sink.records[1].Tokens)
}

func TestExtractJobScreenshotStoredFirst(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.ExtractJob(context.Background(), uuid.New(), ExtractInput{
		Screenshot:  []byte{0x89, 0x50, 0x4e, 0x47},
		ContentType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.uploads)
	assert.Equal(t, SourceScreenshot, result.Posting.Source)
	assert.NotEmpty(t, result.Posting.SourceRef)
}

func TestExtractJobNoInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ExtractJob(context.Background(), uuid.New(), ExtractInput{})
	assert.ErrorIs(t, err, ErrNoInput)
	assert.Zero(t, f.ai.extracts)
}

func TestExtractJobQuotaDenied(t *testing.T) {
	f := newFixture(t)
	f.quota.denied = true

	_, err := f.svc.ExtractJob(context.Background(), uuid.New(), ExtractInput{Text: "hiring"})
	require.Error(t, err)
	assert.Equal(t, 429, apperrors.GetStatusCode(err))
	assert.Zero(t, f.ai.extracts, "denied before compute")
}

func TestPersonalizeCV(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	extracted, err := f.svc.ExtractJob(context.Background(), userID, ExtractInput{Text: "hiring"})
	require.NoError(t, err)

	result, err := f.svc.PersonalizeCV(context.Background(), userID, extracted.Key)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Contains(t, result.Content, "10 years of Go")

	// Same posting and same profile: served from cache.
	again, err := f.svc.PersonalizeCV(context.Background(), userID, extracted.Key)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, 1, f.ai.personalizes)

	// A profile change produces a new key and a fresh call.
	f.profiles.content = "12 years of Go"
	fresh, err := f.svc.PersonalizeCV(context.Background(), userID, extracted.Key)
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.NotEqual(t, result.Key, fresh.Key)
	assert.Equal(t, 2, f.ai.personalizes)
}

func TestPersonalizeCVUnknownJob(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PersonalizeCV(context.Background(), uuid.New(), "0000000000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestPersonalizeCVWithoutProfile(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	extracted, err := f.svc.ExtractJob(context.Background(), userID, ExtractInput{Text: "hiring"})
	require.NoError(t, err)

	f.profiles.missing = true
	_, err = f.svc.PersonalizeCV(context.Background(), userID, extracted.Key)
	assert.ErrorIs(t, err, ErrNoProfile)
}

func TestPersonalizeCVResultsAreUserScoped(t *testing.T) {
	f := newFixture(t)
	alice, bob := uuid.New(), uuid.New()

	extracted, err := f.svc.ExtractJob(context.Background(), alice, ExtractInput{Text: "hiring"})
	require.NoError(t, err)

	_, err = f.svc.PersonalizeCV(context.Background(), alice, extracted.Key)
	require.NoError(t, err)

	// Bob shares the posting cache but not Alice's CV.
	result, err := f.svc.PersonalizeCV(context.Background(), bob, extracted.Key)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 2, f.ai.personalizes)
}

func TestExtractJobAIFailureRecordedAsFailure(t *testing.T) {
	f := newFixture(t)
	f.ai.err = fmt.Errorf("model unavailable")

	_, err := f.svc.ExtractJob(context.Background(), uuid.New(), ExtractInput{Text: "hiring"})
	require.Error(t, err)

	require.Len(t, f.sink.records, 1)
	assert.False(t, f.sink.records[0].Success)
}
