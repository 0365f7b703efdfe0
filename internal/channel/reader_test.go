package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	info      Info
	infoErr   error
	messages  []Message
	readErr   error
	infoCalls int
	lastLimit int
}

func (f *fakeClient) ChannelInfo(ctx context.Context, sourceID string) (Info, error) {
	f.infoCalls++
	if f.infoErr != nil {
		return Info{}, f.infoErr
	}
	return f.info, nil
}

func (f *fakeClient) ReadHistory(ctx context.Context, channelID string, limit int) ([]Message, error) {
	f.lastLimit = limit
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.messages, nil
}

func TestReaderDepth(t *testing.T) {
	r := NewReader(&fakeClient{}, ReaderConfig{InitialLimit: 10, RegularLimit: 20})
	assert.Equal(t, 10, r.Depth(true))
	assert.Equal(t, 20, r.Depth(false))
}

func TestReadRecentFilters(t *testing.T) {
	client := &fakeClient{
		info: Info{ID: "ozon_news", Title: "Ozon News"},
		messages: []Message{
			{ID: 110, Text: "Ozon changes logistics tariffs from next week"},
			{ID: 109, Text: "short"},
			{ID: 108, Text: ""},
			{ID: 112, Text: "Alice joined the channel today", Service: false},
			{ID: 107, Text: "Service message body", Service: true},
			{ID: 106, Text: "   Wildberries opens a new warehouse in Kazan   "},
		},
	}
	r := NewReader(client, ReaderConfig{InitialLimit: 10, RegularLimit: 20, MinTextLength: 15})

	batch, err := r.ReadRecent(context.Background(), "ozon_news", 10)
	require.NoError(t, err)

	assert.Equal(t, 6, batch.Fetched)
	assert.Equal(t, int64(112), batch.MaxItemID)
	assert.Equal(t, "Ozon News", batch.Info.Title)
	require.Len(t, batch.Items, 2)
	assert.Equal(t, int64(110), batch.Items[0].PlatformItemID)
	assert.Equal(t, "Wildberries opens a new warehouse in Kazan", batch.Items[1].Text)
	assert.Equal(t, "ozon_news", batch.Items[1].SourceID)
	assert.False(t, batch.Items[0].ObservedAt.IsZero())
}

func TestReadRecentKeepsLongPostsMentioningMarkers(t *testing.T) {
	text := "The seller support chat pinned a long guide about returns " + strings.Repeat("and details ", 10)
	client := &fakeClient{messages: []Message{{ID: 1, Text: text}}}
	r := NewReader(client, ReaderConfig{MinTextLength: 15})

	batch, err := r.ReadRecent(context.Background(), "a", 5)
	require.NoError(t, err)
	assert.Len(t, batch.Items, 1)
}

func TestReadRecentCapsDepth(t *testing.T) {
	var msgs []Message
	for i := 30; i > 0; i-- {
		msgs = append(msgs, Message{ID: int64(i), Text: fmt.Sprintf("message number %d with enough text", i)})
	}
	client := &fakeClient{messages: msgs}
	r := NewReader(client, ReaderConfig{MinTextLength: 15})

	batch, err := r.ReadRecent(context.Background(), "a", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, client.lastLimit)
	assert.Len(t, batch.Items, 10)
	assert.Equal(t, int64(30), batch.Items[0].PlatformItemID)

	_, err = r.ReadRecent(context.Background(), "a", 0)
	assert.Error(t, err)
}

func TestReadRecentCachesInfo(t *testing.T) {
	client := &fakeClient{info: Info{ID: "x"}}
	r := NewReader(client, ReaderConfig{InfoTTL: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := r.ReadRecent(context.Background(), "x", 5)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, client.infoCalls)

	r.Forget("x")
	_, err := r.ReadRecent(context.Background(), "x", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, client.infoCalls)
}

func TestReadRecentErrorsKeepKind(t *testing.T) {
	r := NewReader(&fakeClient{infoErr: ErrSourceUnavailable}, ReaderConfig{})
	_, err := r.ReadRecent(context.Background(), "private", 5)
	assert.Equal(t, KindUnavailable, Classify(err))

	r = NewReader(&fakeClient{readErr: &RateLimitedError{RetryAfter: 3 * time.Second}}, ReaderConfig{})
	_, err = r.ReadRecent(context.Background(), "busy", 5)
	assert.Equal(t, KindRateLimited, Classify(err))
	wait, ok := RetryAfter(err)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, wait)
}

func TestClassifyAndDescribe(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
		desc string
	}{
		{nil, KindNone, ""},
		{fmt.Errorf("wrap: %w", ErrSourceUnavailable), KindUnavailable, "Private channel"},
		{ErrSourceNotFound, KindNotFound, "Invalid channel"},
		{&RateLimitedError{RetryAfter: time.Second}, KindRateLimited, "Rate limited"},
		{ErrTransient, KindTransient, "Transient error"},
		{errors.New("boom"), KindUnknown, "boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, Classify(tt.err))
		assert.Equal(t, tt.desc, Describe(tt.err))
	}
	assert.True(t, errors.Is(&RateLimitedError{}, ErrRateLimited))
}
