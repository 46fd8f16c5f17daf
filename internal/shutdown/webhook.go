package shutdown

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// webhookClient is shared by every Webhook step, built on first use.
var (
	webhookClient     *retryablehttp.Client
	webhookClientOnce sync.Once
)

func getWebhookClient() *retryablehttp.Client {
	webhookClientOnce.Do(func() {
		webhookClient = retryablehttp.NewClient()
		webhookClient.RetryMax = 2
		webhookClient.RetryWaitMin = 100 * time.Millisecond
		webhookClient.RetryWaitMax = time.Second
		webhookClient.HTTPClient.Timeout = 5 * time.Second
		webhookClient.Logger = nil
	})
	return webhookClient
}

// WebhookPayload is the JSON body posted by [Webhook].
type WebhookPayload struct {
	Record
	Host string `json:"host"`
}

// Webhook POSTs a [WebhookPayload] to url. Retries stop when ctx expires. A
// nil client uses a shared one with two retries.
func Webhook(url string, client *retryablehttp.Client) Step {
	return Step{
		Name: "webhook",
		Run: func(ctx context.Context, sig os.Signal) error {
			c := client
			if c == nil {
				c = getWebhookClient()
			}
			return postWebhook(ctx, c, url, sig)
		},
	}
}

func postWebhook(ctx context.Context, client *retryablehttp.Client, url string, sig os.Signal) error {
	host, _ := os.Hostname()
	body, err := json.Marshal(WebhookPayload{Record: NewRecord(sig), Host: host})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST %s: status %d", url, resp.StatusCode)
	}
	return nil
}
