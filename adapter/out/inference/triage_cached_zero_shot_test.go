package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/core/domain"
)

type memoryCache struct {
	data    map[string][]byte
	readErr error
}

func (m *memoryCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	if m.readErr != nil {
		return false, m.readErr
	}
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

type countingZeroShot struct {
	calls  int
	scores []domain.LabelScore
	err    error
}

func (c *countingZeroShot) ZeroShot(context.Context, string, []string) ([]domain.LabelScore, error) {
	c.calls++
	return c.scores, c.err
}

func TestCachedZeroShot(t *testing.T) {
	labels := []string{"Produtivo", "Improdutivo"}
	next := &countingZeroShot{scores: []domain.LabelScore{{Label: "Produtivo", Score: 0.8}, {Label: "Improdutivo", Score: 0.2}}}
	mem := &memoryCache{data: map[string][]byte{}}
	c := NewCachedZeroShot(next, mem, "bart", 0, zerolog.Nop())

	first, err := c.ZeroShot(context.Background(), "Preciso do boleto", labels)
	require.NoError(t, err)
	second, err := c.ZeroShot(context.Background(), "Preciso do boleto", labels)
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first, second)

	_, err = c.ZeroShot(context.Background(), "Outro texto", labels)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedZeroShotDoesNotStoreErrors(t *testing.T) {
	next := &countingZeroShot{err: domain.ErrRemoteUnavailable}
	mem := &memoryCache{data: map[string][]byte{}}
	c := NewCachedZeroShot(next, mem, "bart", time.Minute, zerolog.Nop())

	_, err := c.ZeroShot(context.Background(), "x", []string{"Produtivo"})
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.Empty(t, mem.data)
}

func TestCachedZeroShotReadErrorFallsThrough(t *testing.T) {
	next := &countingZeroShot{scores: []domain.LabelScore{{Label: "Produtivo", Score: 1}}}
	mem := &memoryCache{data: map[string][]byte{}, readErr: errors.New("redis down")}
	c := NewCachedZeroShot(next, mem, "bart", time.Minute, zerolog.Nop())

	scores, err := c.ZeroShot(context.Background(), "x", []string{"Produtivo"})
	require.NoError(t, err)
	assert.Len(t, scores, 1)
	assert.Equal(t, 1, next.calls)
}

func TestCachedZeroShotSkipsUnusableScores(t *testing.T) {
	tests := []struct {
		name   string
		scores []domain.LabelScore
	}{
		{name: "unknown label", scores: []domain.LabelScore{{Label: "spam", Score: 0.9}, {Label: "Produtivo", Score: 0.1}}},
		{name: "score above one", scores: []domain.LabelScore{{Label: "Produtivo", Score: 1.5}}},
		{name: "empty", scores: []domain.LabelScore{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &countingZeroShot{scores: tt.scores}
			mem := &memoryCache{data: map[string][]byte{}}
			c := NewCachedZeroShot(next, mem, "bart", time.Minute, zerolog.Nop())

			for n := 0; n < 2; n++ {
				_, err := c.ZeroShot(context.Background(), "x", []string{"Produtivo", "Improdutivo"})
				require.NoError(t, err)
			}
			assert.Empty(t, mem.data)
			assert.Equal(t, 2, next.calls)
		})
	}
}
