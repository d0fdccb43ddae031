package report

import (
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureEvents(t *testing.T) *[]*sentry.Event {
	t.Helper()
	var events []*sentry.Event
	require.NoError(t, sentry.Init(sentry.ClientOptions{
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			events = append(events, event)
			return nil
		},
	}))
	t.Cleanup(func() { _ = sentry.Init(sentry.ClientOptions{}) })
	return &events
}

func TestWarnReportsWithOperationTag(t *testing.T) {
	events := captureEvents(t)

	tags := map[string]string{"user_id": "u1"}
	Warn(errors.New("broker down"), "topic_sync", tags)

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, sentry.LevelWarning, ev.Level)
	assert.Equal(t, "topic_sync", ev.Tags["operation"])
	assert.Equal(t, "u1", ev.Tags["user_id"])
	assert.NotContains(t, tags, "operation")
}

func TestErrorIgnoresNil(t *testing.T) {
	events := captureEvents(t)

	Error(nil, Options{})
	Warn(nil, "prefetch", nil)
	assert.Empty(t, *events)
}
