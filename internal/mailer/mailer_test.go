package mailer

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSender_DoesNotLogBody(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := NewLogSender(log)

	require.NoError(t, s.Send(context.Background(), Message{To: "a@x.com", Subject: "Reset", Body: "token=secret"}))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "a@x.com", entry.Data["to"])
	assert.NotContains(t, entry.Data, "body")
}

func TestOutbox(t *testing.T) {
	var o Outbox
	require.NoError(t, o.Send(context.Background(), Message{To: "a@x.com"}))
	assert.Len(t, o.Sent(), 1)
}
