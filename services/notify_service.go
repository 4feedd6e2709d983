package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"take-receipts-system/models"
)

const resendEndpoint = "https://api.resend.com/emails"

// NotifierService sends resolution emails through the Resend API.
// With no RESEND_API_KEY it stays disabled and every send is a no-op.
type NotifierService struct {
	apiKey     string
	from       string
	endpoint   string
	httpClient *http.Client
}

func NewNotifierService() *NotifierService {
	apiKey := os.Getenv("RESEND_API_KEY")
	from := os.Getenv("RESEND_FROM_ADDRESS")
	if from == "" {
		from = "Take Receipts <notifications@takereceipts.app>"
	}
	if apiKey == "" {
		log.Println("[NOTIFY] ⚠️ RESEND_API_KEY not set, resolution emails disabled")
	}
	return &NotifierService{
		apiKey:   apiKey,
		from:     from,
		endpoint: resendEndpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NewNotifierServiceWithEndpoint is for tests.
func NewNotifierServiceWithEndpoint(endpoint, apiKey string) *NotifierService {
	n := NewNotifierService()
	n.endpoint = endpoint
	n.apiKey = apiKey
	return n
}

func (n *NotifierService) Enabled() bool {
	return n.apiKey != ""
}

// SendResolutionEmail tells the take's owner how it resolved. Best-effort:
// errors are logged and swallowed.
func (n *NotifierService) SendResolutionEmail(ctx context.Context, take *models.Take, owner *models.User, status, reasoning string) {
	if !n.Enabled() {
		return
	}

	subject := fmt.Sprintf("Your take was proven wrong: %q", truncateText(take.Text, 60))
	verdict := "did not come true"
	if status == models.TakeStatusVerified {
		subject = fmt.Sprintf("Your take was verified: %q", truncateText(take.Text, 60))
		verdict = "came true"
	}

	body := fmt.Sprintf(
		"Hi %s,\n\nYour take %s:\n\n%q\n\n%s\n\nYou can appeal this resolution if you believe it is wrong.\n",
		owner.Username, verdict, take.Text, reasoning)

	payload, err := json.Marshal(map[string]interface{}{
		"from":    n.from,
		"to":      []string{owner.Email},
		"subject": subject,
		"text":    body,
	})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		log.Printf("[NOTIFY] ⚠️ Failed to build email request: %v", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+n.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Printf("[NOTIFY] ⚠️ Failed to send resolution email for %s: %v", take.ID, err)
		return
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[NOTIFY] ⚠️ Resend returned %d for take %s", resp.StatusCode, take.ID)
		return
	}
	log.Printf("[NOTIFY] ✅ Resolution email sent for take %s", take.ID)
}
