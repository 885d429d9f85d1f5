package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	messages []message
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message{subject: subject, data: data})
	return nil
}

func TestPublish(t *testing.T) {
	fc := &fakeConn{}
	p := &Publisher{conn: fc}

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	err := p.Publish(ConversationEvent{Type: Created, RunID: "run_1", Repo: "o/FIPs", ZID: 7, PRNumber: 12, FIPNumber: 99, Title: "Hello", IsActive: true, At: at})
	require.NoError(t, err)
	require.Len(t, fc.messages, 1)
	assert.Equal(t, "fipsync.conversation.created", fc.messages[0].subject)

	var got ConversationEvent
	require.NoError(t, json.Unmarshal(fc.messages[0].data, &got))
	assert.Equal(t, int64(7), got.ZID)
	assert.Equal(t, 99, got.FIPNumber)
	assert.True(t, got.At.Equal(at))
}

func TestPublishStampsTime(t *testing.T) {
	fc := &fakeConn{}
	p := &Publisher{conn: fc}
	require.NoError(t, p.Publish(ConversationEvent{Type: Closed, Repo: "o/FIPs", PRNumber: 3, Merged: true}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(fc.messages[0].data, &got))
	assert.Equal(t, "fipsync.conversation.closed", fc.messages[0].subject)
	assert.NotEmpty(t, got["at"])
	assert.NotContains(t, got, "fipNumber")
}

func TestPublishError(t *testing.T) {
	p := &Publisher{conn: &fakeConn{err: errors.New("nats: connection closed")}}
	err := p.Publish(ConversationEvent{Type: Updated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fipsync.conversation.updated")
	assert.NoError(t, p.Close())
}
