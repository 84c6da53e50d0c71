package frame

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lisuiheng/xiaozhi-sink/pkg/transcript"
	"github.com/stretchr/testify/require"
)

func TestFrameAudio(t *testing.T) {
	f, err := FrameAudio([]byte{0x00, 0x01, 0xfe, 0xff})
	require.NoError(t, err)
	require.Equal(t, TypeAudio, f.Type)
	require.JSONEq(t, `{"type":"audio","data":"AAH+/w=="}`, f.Text)

	parsed, err := Parse([]byte(f.Text))
	require.NoError(t, err)
	msg, ok := parsed.(AudioMessage)
	require.True(t, ok, "parsed type %T", parsed)
	b, err := msg.Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x01, 0xfe, 0xff}, b)
}

func TestFrameTranscript(t *testing.T) {
	event := transcript.Event{
		Text:           "hello there",
		Sender:         transcript.SenderBot,
		Timestamp:      time.Unix(1700000000, 500000000),
		ConversationID: "conv-1",
	}

	f, err := FrameTranscript(event)
	require.NoError(t, err)
	require.Equal(t, TypeTranscript, f.Type)

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.Text), &fields))
	require.Equal(t, "transcript", fields["type"])
	require.Equal(t, "hello there", fields["text"])
	require.Equal(t, "bot", fields["sender"])
	require.Equal(t, "conv-1", fields["conversation_id"])
	require.InDelta(t, 1700000000.5, fields["timestamp"], 1e-6)

	parsed, err := Parse([]byte(f.Text))
	require.NoError(t, err)
	got := parsed.(TranscriptMessage).Event()
	require.Equal(t, event.Text, got.Text)
	require.Equal(t, event.Sender, got.Sender)
	require.Equal(t, event.ConversationID, got.ConversationID)
	require.WithinDuration(t, event.Timestamp, got.Timestamp, time.Millisecond)
}

func TestFrameTranscriptOmitsEmptyConversation(t *testing.T) {
	f, err := FrameTranscript(transcript.Event{Text: "hi", Sender: transcript.SenderHuman})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"transcript","text":"hi","sender":"human","timestamp":0}`, f.Text)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`{"type":"video"}`))
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Parse([]byte(`not json`))
	require.Error(t, err)
}
