package webhook_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetver/fleetver/internal/webhook"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNotifyDelivers(t *testing.T) {
	received := make(chan map[string]any, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Contains(t, r.Header.Get("Content-Type"), "application/json")
		var envelope map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		received <- envelope
	}))
	defer server.Close()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	notifier := webhook.NewNotifier(server.URL, log)
	notifier.Notify(map[string]any{
		"event_type": "version_change",
		"device_id":  int64(7),
	})

	select {
	case envelope := <-received:
		require.Equal(t, "version_change", envelope["event_type"])
		require.Equal(t, float64(7), envelope["device_id"])
		require.NotEmpty(t, envelope["delivery_id"])
	case <-time.After(3 * time.Second):
		t.Fatal("webhook never delivered")
	}
}

func TestNotifyNoopWithoutURL(t *testing.T) {
	log := logrus.New()
	notifier := webhook.NewNotifier("", log)
	// Must not panic or spawn a delivery.
	notifier.Notify(map[string]any{"event_type": "state_change"})

	var nilNotifier *webhook.Notifier
	nilNotifier.Notify(map[string]any{"event_type": "state_change"})
}
