// Package adapters turns decrypted credentials into vendor clients for the
// agent workflows and into testers for the credential vault.
package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"github.com/suPer8Hu/agent-portal/internal/agent"
	"github.com/suPer8Hu/agent-portal/internal/ai"
	"github.com/suPer8Hu/agent-portal/internal/gdocs"
	"github.com/suPer8Hu/agent-portal/internal/slackapi"
	"github.com/suPer8Hu/agent-portal/internal/vault"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Builder constructs vendor clients. The zero value talks to the public
// vendor endpoints.
type Builder struct {
	AzureAPIVersion string
	SlackOptions    []slackapi.Option
	GoogleOptions   []option.ClientOption
}

func (b Builder) completion(p vault.CompletionCredential) (*ai.AzureOpenAI, error) {
	version := p.APIVersion
	if version == "" {
		version = b.AzureAPIVersion
	}
	return ai.NewAzureOpenAI(p.Endpoint, p.APIKey, p.Deployment, version)
}

func (b Builder) chat(p vault.SlackCredential) (*slackapi.Client, error) {
	return slackapi.New(p.BotToken, b.SlackOptions...)
}

func (b Builder) docs(ctx context.Context, p vault.DocumentStoreCredential) (*gdocs.Client, error) {
	tok := gdocs.Token{
		AccessToken:  p.Token,
		RefreshToken: p.RefreshToken,
		TokenURI:     p.TokenURI,
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Scopes:       p.Scopes,
		Expiry:       p.Expiry,
	}
	return gdocs.New(ctx, tok.TokenSource(ctx), b.GoogleOptions...)
}

// Connect implements vault.Connector.
func (b Builder) Connect(ctx context.Context, p vault.Payload) (vault.Tester, error) {
	switch p := p.(type) {
	case vault.CompletionCredential:
		c, err := b.completion(p)
		if err != nil {
			return nil, err
		}
		return completionTester{c}, nil
	case vault.SlackCredential:
		c, err := b.chat(p)
		if err != nil {
			return nil, err
		}
		return chatTester{c}, nil
	case vault.DocumentStoreCredential:
		c, err := b.docs(ctx, p)
		if err != nil {
			return nil, err
		}
		return docsTester{c}, nil
	default:
		return nil, fmt.Errorf("no live adapter for %s", p.Service())
	}
}

// CredentialSource is the read side of the vault.
type CredentialSource interface {
	Get(ctx context.Context, userID uint64, service vault.ServiceType) (vault.Payload, error)
}

// Factory resolves a user's adapters from the vault. It implements
// agent.AdapterFactory.
type Factory struct {
	creds   CredentialSource
	builder Builder
}

func NewFactory(creds CredentialSource, b Builder) *Factory {
	return &Factory{creds: creds, builder: b}
}

func (f *Factory) Adapters(ctx context.Context, userID uint64) (agent.Adapters, error) {
	var ad agent.Adapters

	p, err := f.lookup(ctx, userID, vault.ServiceAzureOpenAI)
	if err != nil {
		return agent.Adapters{}, err
	}
	if p != nil {
		if c, err := f.builder.completion(p.(vault.CompletionCredential)); err != nil {
			log.Warn().Err(err).Uint64("user_id", userID).Msg("azure openai credential unusable")
		} else {
			ad.Completion = c
		}
	}

	p, err = f.lookup(ctx, userID, vault.ServiceSlack)
	if err != nil {
		return agent.Adapters{}, err
	}
	if p != nil {
		if c, err := f.builder.chat(p.(vault.SlackCredential)); err != nil {
			log.Warn().Err(err).Uint64("user_id", userID).Msg("slack credential unusable")
		} else {
			ad.Chat = c
		}
	}

	p, err = f.lookup(ctx, userID, vault.ServiceGoogleWorkspace)
	if err != nil {
		return agent.Adapters{}, err
	}
	if p != nil {
		if c, err := f.builder.docs(ctx, p.(vault.DocumentStoreCredential)); err != nil {
			log.Warn().Err(err).Uint64("user_id", userID).Msg("google workspace credential unusable")
		} else {
			ad.Docs = c
		}
	}

	return ad, nil
}

// lookup returns nil when the user has no such credential.
func (f *Factory) lookup(ctx context.Context, userID uint64, service vault.ServiceType) (vault.Payload, error) {
	p, err := f.creds.Get(ctx, userID, service)
	if errors.Is(err, vault.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type completionTester struct{ c *ai.AzureOpenAI }

func (t completionTester) TestConnection(ctx context.Context) vault.TestOutcome {
	out, err := t.c.Probe(ctx)
	if err != nil {
		return vault.TestOutcome{Status: vault.TestFailed, Message: "Connection failed: " + err.Error()}
	}
	return vault.TestOutcome{
		Status:  vault.TestSuccess,
		Message: "Successfully connected to Azure OpenAI",
		Details: map[string]any{"deployment": t.c.Deployment(), "model": out.Model},
	}
}

type chatTester struct{ c *slackapi.Client }

func (t chatTester) TestConnection(ctx context.Context) vault.TestOutcome {
	id, err := t.c.Probe(ctx)
	if err != nil {
		var apiErr slack.SlackErrorResponse
		if errors.As(err, &apiErr) {
			return vault.TestOutcome{Status: vault.TestFailed, Message: "Connection failed: " + apiErr.Err}
		}
		return vault.TestOutcome{Status: vault.TestError, Message: "Error: " + err.Error()}
	}
	return vault.TestOutcome{
		Status:  vault.TestSuccess,
		Message: "Connected to workspace: " + id.Team,
		Details: map[string]any{"team": id.Team, "user": id.User, "bot_id": id.BotID},
	}
}

type docsTester struct{ c *gdocs.Client }

func (t docsTester) TestConnection(ctx context.Context) vault.TestOutcome {
	acct, err := t.c.Probe(ctx)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return vault.TestOutcome{Status: vault.TestFailed, Message: "Connection failed: " + apiErr.Error()}
		}
		return vault.TestOutcome{Status: vault.TestError, Message: "Error: " + err.Error()}
	}
	return vault.TestOutcome{
		Status:  vault.TestSuccess,
		Message: "Connected to Google Drive for user: " + acct.Email,
		Details: map[string]any{"email": acct.Email, "display_name": acct.DisplayName},
	}
}
