// Package webhook posts event envelopes to a configured receiver.
// Delivery is fire-and-forget: the event log is the source of truth and a
// missed webhook is never retried.
package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const deliveryTimeout = 2 * time.Second

type Notifier struct {
	url    string
	client *http.Client
	log    logrus.FieldLogger
}

// NewNotifier returns a notifier for the given URL. An empty URL yields a
// notifier whose Notify is a no-op.
func NewNotifier(url string, log logrus.FieldLogger) *Notifier {
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: deliveryTimeout},
		log:    log,
	}
}

// Notify posts the envelope on a detached goroutine. Failures are logged at
// debug and otherwise dropped.
func (n *Notifier) Notify(envelope map[string]any) {
	if n == nil || n.url == "" {
		return
	}
	envelope["delivery_id"] = uuid.NewString()
	go n.send(envelope)
}

func (n *Notifier) send(envelope map[string]any) {
	data, err := json.Marshal(envelope)
	if err != nil {
		n.log.Debugf("webhook envelope not serializable: %v", err)
		return
	}
	resp, err := n.client.Post(n.url, "application/json; charset=utf-8", bytes.NewReader(data))
	if err != nil {
		n.log.Debugf("webhook delivery failed: %v", err)
		return
	}
	defer resp.Body.Close()
}
