// Package slackapi sends messages through the Slack Web API on behalf of one
// workspace bot token.
package slackapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

type Client struct {
	api *slack.Client
}

type Option func(*[]slack.Option)

// WithAPIURL points the client at another Web API root. Used by tests.
func WithAPIURL(url string) Option {
	return func(opts *[]slack.Option) {
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		*opts = append(*opts, slack.OptionAPIURL(url))
	}
}

func New(botToken string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(botToken) == "" {
		return nil, errors.New("slack: bot token is required")
	}
	var sopts []slack.Option
	for _, o := range opts {
		o(&sopts)
	}
	return &Client{api: slack.New(botToken, sopts...)}, nil
}

// Send posts text to channel, threaded under threadTS when it is set, and
// returns the new message timestamp.
func (c *Client) Send(ctx context.Context, channel, text, threadTS string) (string, error) {
	msgOpts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		msgOpts = append(msgOpts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := c.api.PostMessageContext(ctx, channel, msgOpts...)
	if err != nil {
		return "", fmt.Errorf("slack post message: %w", err)
	}
	return ts, nil
}

// Identity describes the workspace and bot a token belongs to.
type Identity struct {
	Team   string
	TeamID string
	User   string
	BotID  string
}

func (c *Client) Probe(ctx context.Context) (Identity, error) {
	res, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("slack auth test: %w", err)
	}
	return Identity{Team: res.Team, TeamID: res.TeamID, User: res.User, BotID: res.BotID}, nil
}
