package oracle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/resilience"
	"github.com/daybreak-data/holiday-registry/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// memCache is an in-memory Cache for tests.
type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemCache() *memCache { return &memCache{m: map[string][]byte{}} }

func (c *memCache) GetOracleAnswer(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *memCache) PutOracleAnswer(_ context.Context, key string, answer []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = answer
	return nil
}

func testOpts(cache Cache) LLMOptions {
	return LLMOptions{
		MergeModel:  "merge-model",
		VerifyModel: "verify-model",
		CallTimeout: time.Second,
		Retry:       resilience.Policy{Attempts: 2, BaseDelay: time.Millisecond},
		Limiter:     rate.NewLimiter(rate.Inf, 1),
		Cache:       cache,
	}
}

func mergeQuery() MergeQuery {
	d, _ := time.Parse(model.DateLayout, "2025-12-25")
	return MergeQuery{
		CountryCode: "DE",
		Date:        d,
		NameA:       "Christmas Day",
		NameB:       "1. Weihnachtstag",
		TypeA:       model.TypePublic,
		TypeB:       model.TypePublic,
	}
}

func TestSameHoliday_ParsesDecision(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{
			Model: "merge-model",
			Text:  `{"same_holiday": true, "reasoning": "translation"}`,
			Usage: anthropic.TokenUsage{InputTokens: 50, OutputTokens: 10},
		}, nil).Once()

	llm := NewLLM(client, testOpts(newMemCache()))
	d, err := llm.SameHoliday(context.Background(), mergeQuery())
	require.NoError(t, err)
	assert.True(t, d.SameHoliday)
	client.AssertExpectations(t)
}

func TestSameHoliday_CacheHitSkipsCall(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{
			Model: "merge-model",
			Text:  `{"same_holiday": true}`,
		}, nil).Once()

	cache := newMemCache()
	llm := NewLLM(client, testOpts(cache))

	_, err := llm.SameHoliday(context.Background(), mergeQuery())
	require.NoError(t, err)

	// Second ask, reversed name order: same memo key, no second call.
	q := mergeQuery()
	q.NameA, q.NameB = q.NameB, q.NameA
	d, err := llm.SameHoliday(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, d.SameHoliday)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestSameHoliday_MalformedOutputMeansNoMerge(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{Model: "merge-model", Text: "I think probably yes?"}, nil).Once()

	llm := NewLLM(client, testOpts(nil))
	d, err := llm.SameHoliday(context.Background(), mergeQuery())
	require.NoError(t, err)
	assert.False(t, d.SameHoliday)
}

func TestSameHoliday_MarkdownFence(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{
			Model: "merge-model",
			Text:  "```json\n{\"same_holiday\": true}\n```",
		}, nil).Once()

	llm := NewLLM(client, testOpts(nil))
	d, err := llm.SameHoliday(context.Background(), mergeQuery())
	require.NoError(t, err)
	assert.True(t, d.SameHoliday)
}

func TestVerify_Confirmed(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{
			Model: "verify-model",
			Text:  `{"is_holiday": true, "regions": ["National Holiday"]}`,
		}, nil).Once()

	llm := NewLLM(client, testOpts(nil))
	d, _ := time.Parse(model.DateLayout, "2025-07-04")
	r, err := llm.Verify(context.Background(), VerifyQuery{CountryCode: "US", Date: d, Name: "Independence Day"})
	require.NoError(t, err)
	assert.Equal(t, VerdictConfirmed, r.Verdict)
	assert.Equal(t, []string{"National Holiday"}, r.Regions)
}

func TestVerify_RejectedStringBool(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{
			Model: "verify-model",
			Text:  `{"is_holiday": "false", "regions": []}`,
		}, nil).Once()

	llm := NewLLM(client, testOpts(nil))
	d, _ := time.Parse(model.DateLayout, "2025-02-14")
	r, err := llm.Verify(context.Background(), VerifyQuery{CountryCode: "US", Date: d, Name: "Valentine's Day"})
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, r.Verdict)
}

func TestVerify_InconclusiveNotCached(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{
			Model: "verify-model",
			Text:  `{"is_holiday": "unknown"}`,
		}, nil).Twice()

	cache := newMemCache()
	llm := NewLLM(client, testOpts(cache))
	d, _ := time.Parse(model.DateLayout, "2025-03-08")
	q := VerifyQuery{CountryCode: "XX", Date: d, Name: "Mystery Day"}

	r, err := llm.Verify(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, VerdictInconclusive, r.Verdict)

	// Second ask hits the oracle again: inconclusive answers are not memoized.
	_, err = llm.Verify(context.Background(), q)
	require.NoError(t, err)
	client.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestVerify_TransientErrorRetriedThenSurfaces(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.MarkTransient(assert.AnError, 529)).Times(2)

	llm := NewLLM(client, testOpts(nil))
	d, _ := time.Parse(model.DateLayout, "2025-07-04")
	_, err := llm.Verify(context.Background(), VerifyQuery{CountryCode: "US", Date: d, Name: "Independence Day"})
	assert.Error(t, err)
	client.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestKeys_Shape(t *testing.T) {
	q := mergeQuery()
	assert.Equal(t, "merge|DE|2025-12-25|1 weihnachtstag|christmas day", q.MergeKey())

	d, _ := time.Parse(model.DateLayout, "2025-07-04")
	vq := VerifyQuery{CountryCode: "us", Date: d, Name: "Independence Day"}
	assert.Equal(t, "verify|US|2025-07-04|day independence", vq.VerifyKey())
}
