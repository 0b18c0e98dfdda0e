package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

// DingTalkNotifier posts job lifecycle events to a DingTalk group robot
// webhook. A nil notifier is safe to call and does nothing.
type DingTalkNotifier struct {
	webhook string
	client  *http.Client
}

var _ ports.Notifier = (*DingTalkNotifier)(nil)

// NewDingTalkNotifier registers the webhook URL.
func NewDingTalkNotifier(webhook string) *DingTalkNotifier {
	return &DingTalkNotifier{
		webhook: webhook,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// JobStarted announces a pipeline run.
func (n *DingTalkNotifier) JobStarted(ctx context.Context, daysBack, topN int) error {
	text := fmt.Sprintf(
		"## Paper digest started\n\n- **Time**: %s\n- **Days back**: %d\n- **Top N**: %d",
		time.Now().Format("2006-01-02 15:04:05"), daysBack, topN,
	)
	return n.sendMarkdown(ctx, "Paper digest started", text)
}

// JobCompleted reports the run statistics.
func (n *DingTalkNotifier) JobCompleted(ctx context.Context, stats domain.RunStats) error {
	delivery := "skipped"
	if stats.Delivery != nil {
		delivery = fmt.Sprintf("%d/%d recipients", stats.Delivery.Success, stats.Delivery.Total)
	}

	text := fmt.Sprintf(
		"## Paper digest completed\n\n"+
			"- **Time**: %s\n"+
			"- **Duration**: %.1fs\n\n"+
			"### Papers\n"+
			"- **Fetched**: %d\n"+
			"- **New**: %d (duplicates %d)\n"+
			"- **Selected**: %d\n\n"+
			"### Enrichment\n"+
			"- **Summaries**: %d ok / %d fallback / %d error\n"+
			"- **Assessments**: %d ok / %d fallback / %d error\n\n"+
			"### Delivery\n"+
			"- **Email**: %s",
		stats.FinishedAt.Format("2006-01-02 15:04:05"),
		stats.FinishedAt.Sub(stats.StartedAt).Seconds(),
		stats.Fetched,
		stats.Unique, stats.Duplicates,
		stats.Filtered,
		stats.Enrichment.Summary.Success, stats.Enrichment.Summary.Fallback, stats.Enrichment.Summary.Error,
		stats.Enrichment.Quality.Success, stats.Enrichment.Quality.Fallback, stats.Enrichment.Quality.Error,
		delivery,
	)
	return n.sendMarkdown(ctx, "Paper digest completed", text)
}

// JobFailed reports a run that aborted before producing a digest.
func (n *DingTalkNotifier) JobFailed(ctx context.Context, reason string) error {
	text := fmt.Sprintf(
		"## Paper digest failed\n\n- **Time**: %s\n- **Error**: %s\n\nCheck server logs.",
		time.Now().Format("2006-01-02 15:04:05"), reason,
	)
	return n.sendMarkdown(ctx, "Paper digest failed", text)
}

func (n *DingTalkNotifier) sendMarkdown(ctx context.Context, title, text string) error {
	if n == nil || n.webhook == "" {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": title,
			"text":  text,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dingtalk error: %s", resp.Status)
	}

	var decoded webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if decoded.ErrCode != 0 {
		return fmt.Errorf("dingtalk error %d: %s", decoded.ErrCode, decoded.ErrMsg)
	}

	return nil
}
