package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Report summarises a finished plot run.
type Report struct {
	GeneratedAt  time.Time
	Region       string
	InstanceType string
	// Zone is set when the run was restricted to one availability zone.
	Zone         string
	Zones        []string
	Observations int
	Retained     int
	MeanBefore   decimal.Decimal
	MeanAfter    decimal.Decimal
	ImagePath    string
}

// Filtered reports whether an outlier clip was applied.
func (r Report) Filtered() bool {
	return r.Zone != ""
}

// Notifier delivers run reports.
type Notifier interface {
	Notify(ctx context.Context, report Report) error
}

// TelegramNotifier pushes reports through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "report_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered report.
func (n *TelegramNotifier) Notify(ctx context.Context, report Report) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(report),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("instance_type", report.InstanceType).Msg("report sent (Telegram)")
	return nil
}

func renderMessage(r Report) string {
	builder := strings.Builder{}
	builder.WriteString("[Spot price report]\n")
	builder.WriteString(fmt.Sprintf("Generated: %s UTC\n", r.GeneratedAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Instance: %s (%s)\n", r.InstanceType, r.Region))
	if r.Filtered() {
		builder.WriteString(fmt.Sprintf("Zone: %s\n", r.Zone))
		builder.WriteString(fmt.Sprintf("Prices: %d kept of %d\n", r.Retained, r.Observations))
		builder.WriteString(fmt.Sprintf("Mean before filter: %s\n", r.MeanBefore.StringFixed(4)))
		builder.WriteString(fmt.Sprintf("Mean after filter: %s\n", r.MeanAfter.StringFixed(4)))
	} else {
		builder.WriteString(fmt.Sprintf("Zones: %s\n", strings.Join(r.Zones, ",")))
		builder.WriteString(fmt.Sprintf("Prices: %d\n", r.Observations))
		builder.WriteString(fmt.Sprintf("Average price: %s\n", r.MeanBefore.StringFixed(4)))
	}
	if r.ImagePath != "" {
		builder.WriteString(fmt.Sprintf("Image: %s\n", r.ImagePath))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
