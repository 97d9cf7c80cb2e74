package economy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPLedger posts deposits to an external currency service.
type HTTPLedger struct {
	url    string
	client *http.Client
}

func NewHTTPLedger(url string) *HTTPLedger {
	return &HTTPLedger{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type depositBody struct {
	ActorID string  `json:"actor_id"`
	Amount  float64 `json:"amount"`
}

func (l *HTTPLedger) Deposit(actorID string, amount float64) error {
	body, err := json.Marshal(depositBody{ActorID: actorID, Amount: amount})
	if err != nil {
		return err
	}
	resp, err := l.client.Post(l.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("ledger: status %d", resp.StatusCode)
	}
	return nil
}

// DiscardLedger accepts every deposit and forgets it; used when no ledger is
// configured (money effectively disabled).
type DiscardLedger struct{}

func (DiscardLedger) Deposit(string, float64) error { return nil }
