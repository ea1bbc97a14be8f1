package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel(t *testing.T) {
	assert.Equal(t, "notify:user:42", Channel(42))
}

func TestMessageJSON(t *testing.T) {
	b, err := json.Marshal(Message{Event: "booking-accepted", UserID: 7, Payload: map[string]string{"bookingId": "b1"}})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "booking-accepted", got["event"])
	assert.EqualValues(t, 7, got["user_id"])
	assert.Equal(t, "b1", got["payload"].(map[string]any)["bookingId"])
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, LogNotifier{}.Emit(context.Background(), 1, "x", nil))
}
