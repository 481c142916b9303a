package agent

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/agent-portal/internal/ai"
	"github.com/suPer8Hu/agent-portal/internal/metrics"
	"github.com/suPer8Hu/agent-portal/internal/models"
)

const (
	ErrCompletionNotConfigured = "Azure OpenAI completion service not configured"

	replySystemPrompt = "You are a helpful AI assistant integrated with Slack. " +
		"Provide clear, concise, and accurate responses to user questions."
	summarySystemPrompt = "You are a helpful assistant that creates concise and informative summaries. " +
		"Create a well-structured summary with key points and important details."

	replyMaxTokens     = 1000
	replyTemperature   = 0.7
	summaryMaxTokens   = 500
	summaryTemperature = 0.5

	defaultVendorTimeout = 30 * time.Second
)

type ReplyRequest struct {
	Message     string
	ChannelID   string
	SlackUserID string
	MessageTS   string
	Context     []string
}

type SummaryRequest struct {
	Title      string
	Content    string
	SaveToDocs bool
}

// Result is the outcome of a workflow. Upstream failures are reported with
// Success false and Error set; the returned error is kept for internal
// failures only.
type Result struct {
	Success         bool    `json:"success"`
	Error           string  `json:"error,omitempty"`
	Response        string  `json:"response,omitempty"`
	TokensUsed      int     `json:"tokens_used"`
	ExecutionTimeMS float64 `json:"execution_time_ms"`

	SummaryID          uint64  `json:"summary_id,omitempty"`
	Summary            string  `json:"summary,omitempty"`
	GoogleDriveFileID  *string `json:"google_drive_file_id,omitempty"`
	GoogleDriveFileURL *string `json:"google_drive_file_url,omitempty"`
}

type Service struct {
	repo          *Repo
	factory       AdapterFactory
	pricing       models.Pricing
	vendorTimeout time.Duration
}

func NewService(repo *Repo, factory AdapterFactory, pricing models.Pricing, vendorTimeout time.Duration) *Service {
	if vendorTimeout <= 0 {
		vendorTimeout = defaultVendorTimeout
	}
	return &Service{repo: repo, factory: factory, pricing: pricing, vendorTimeout: vendorTimeout}
}

func (s *Service) generate(ctx context.Context, c Completer, workflow string, msgs []ai.Message, opts ai.Options) (ai.Completion, error) {
	vctx, cancel := context.WithTimeout(ctx, s.vendorTimeout)
	defer cancel()

	start := time.Now()
	out, err := c.Generate(vctx, msgs, opts)
	metrics.VendorCall("azure_openai", workflow, start, err)
	if err == nil && out.LatencyMS == 0 {
		out.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	}
	return out, err
}

// Reply answers req.Message with the user's completion adapter, delivers the
// answer to the chat thread when a chat adapter is configured, and records
// the interaction.
func (s *Service) Reply(ctx context.Context, userID uint64, req ReplyRequest) (Result, error) {
	ad, err := s.factory.Adapters(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if ad.Completion == nil {
		metrics.Workflow("reply", "not_configured", 0)
		return Result{Success: false, Error: ErrCompletionNotConfigured}, nil
	}

	msgs := []ai.Message{{Role: ai.RoleSystem, Content: replySystemPrompt}}
	if len(req.Context) > 0 {
		msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: "Context: " + strings.Join(req.Context, "\n")})
	}
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: req.Message})

	out, err := s.generate(ctx, ad.Completion, "reply", msgs, ai.Options{MaxTokens: replyMaxTokens, Temperature: replyTemperature})
	if err != nil {
		log.Warn().Err(err).Uint64("user_id", userID).Msg("completion failed")
		metrics.Workflow("reply", "upstream_error", 0)
		return Result{Success: false, Error: err.Error()}, nil
	}

	if ad.Chat != nil && req.ChannelID != "" {
		s.deliver(ctx, ad.Chat, userID, req.ChannelID, out.Text, req.MessageTS)
	}

	in := &Interaction{
		UserID:         userID,
		SlackUserID:    req.SlackUserID,
		SlackChannelID: req.ChannelID,
		SlackMessageTS: req.MessageTS,
		UserMessage:    req.Message,
		BotResponse:    out.Text,
		TokensUsed:     out.TokensUsed,
		ResponseTimeMS: out.LatencyMS,
	}
	usage := s.pricing.Usage(userID, models.ServiceAzureOpenAI, models.ActionMessage, out.TokensUsed, out.LatencyMS,
		map[string]any{"channel_id": req.ChannelID})
	audit := models.AuditEntry{
		UserID:       userID,
		Action:       "slack_message",
		ResourceType: "message",
		ResourceID:   req.MessageTS,
		Details:      map[string]any{"channel": req.ChannelID, "tokens": out.TokensUsed},
	}
	if err := s.repo.RecordReply(ctx, in, usage, audit); err != nil {
		return Result{}, err
	}

	metrics.Workflow("reply", "success", out.TokensUsed)
	return Result{
		Success:         true,
		Response:        out.Text,
		TokensUsed:      out.TokensUsed,
		ExecutionTimeMS: out.LatencyMS,
	}, nil
}

// Summarize condenses req.Content, exports it to a Google Doc when asked and
// possible, and records the summary. A failed export is logged and the
// summary is kept without a document link.
func (s *Service) Summarize(ctx context.Context, userID uint64, req SummaryRequest) (Result, error) {
	ad, err := s.factory.Adapters(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if ad.Completion == nil {
		metrics.Workflow("summary", "not_configured", 0)
		return Result{Success: false, Error: ErrCompletionNotConfigured}, nil
	}

	msgs := []ai.Message{
		{Role: ai.RoleSystem, Content: summarySystemPrompt},
		{Role: ai.RoleUser, Content: "Please create a comprehensive summary of the following content:\n\n" + req.Content},
	}
	out, err := s.generate(ctx, ad.Completion, "summary", msgs, ai.Options{MaxTokens: summaryMaxTokens, Temperature: summaryTemperature})
	if err != nil {
		log.Warn().Err(err).Uint64("user_id", userID).Msg("summary completion failed")
		metrics.Workflow("summary", "upstream_error", 0)
		return Result{Success: false, Error: err.Error()}, nil
	}

	sum := &Summary{UserID: userID, Title: req.Title, Content: out.Text}
	if req.SaveToDocs && ad.Docs != nil {
		vctx, cancel := context.WithTimeout(ctx, s.vendorTimeout)
		start := time.Now()
		doc, err := ad.Docs.Create(vctx, req.Title, out.Text)
		metrics.VendorCall("google", "create_document", start, err)
		cancel()
		if err != nil {
			log.Warn().Err(err).Uint64("user_id", userID).Msg("document export failed, keeping summary without link")
		} else {
			sum.GoogleDriveFileID = &doc.ID
			if doc.URL != "" {
				sum.GoogleDriveFileURL = &doc.URL
			}
		}
	}

	usage := s.pricing.Usage(userID, models.ServiceAzureOpenAI, models.ActionSummary, out.TokensUsed, out.LatencyMS, nil)
	audit := models.AuditEntry{
		UserID:       userID,
		Action:       "generate_summary",
		ResourceType: "summary",
		Details:      map[string]any{"title": req.Title, "saved_to_drive": sum.GoogleDriveFileID != nil},
	}
	if err := s.repo.RecordSummary(ctx, sum, usage, audit); err != nil {
		return Result{}, err
	}

	metrics.Workflow("summary", "success", out.TokensUsed)
	return Result{
		Success:            true,
		Summary:            out.Text,
		SummaryID:          sum.ID,
		GoogleDriveFileID:  sum.GoogleDriveFileID,
		GoogleDriveFileURL: sum.GoogleDriveFileURL,
		TokensUsed:         out.TokensUsed,
		ExecutionTimeMS:    out.LatencyMS,
	}, nil
}

// Notify posts text through the user's chat adapter. Delivery is best
// effort; it reports whether a message was sent.
func (s *Service) Notify(ctx context.Context, userID uint64, channel, text, threadTS string) bool {
	ad, err := s.factory.Adapters(ctx, userID)
	if err != nil {
		log.Error().Err(err).Uint64("user_id", userID).Msg("resolve adapters for notify")
		return false
	}
	if ad.Chat == nil {
		return false
	}
	return s.deliver(ctx, ad.Chat, userID, channel, text, threadTS)
}

func (s *Service) deliver(ctx context.Context, chat ChatSender, userID uint64, channel, text, threadTS string) bool {
	vctx, cancel := context.WithTimeout(ctx, s.vendorTimeout)
	defer cancel()

	start := time.Now()
	_, err := chat.Send(vctx, channel, text, threadTS)
	metrics.VendorCall("slack", "post_message", start, err)
	if err != nil {
		log.Warn().Err(err).Uint64("user_id", userID).Str("channel", channel).Msg("chat delivery failed")
		return false
	}
	return true
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) ListInteractions(ctx context.Context, userID uint64, limit, offset int) ([]Interaction, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListInteractions(ctx, userID, limit, offset)
}

func (s *Service) ListSummaries(ctx context.Context, userID uint64, limit, offset int) ([]Summary, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListSummaries(ctx, userID, limit, offset)
}

func (s *Service) GetSummary(ctx context.Context, userID, id uint64) (*Summary, error) {
	return s.repo.GetSummary(ctx, userID, id)
}
