package vault

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/agent-portal/internal/common"
)

type ServiceType string

const (
	ServiceSlack           ServiceType = "slack"
	ServiceAzureOpenAI     ServiceType = "azure_openai"
	ServiceGoogleWorkspace ServiceType = "google_workspace"
	ServiceGoogleOAuth     ServiceType = "google_oauth"
)

var serviceTypes = []ServiceType{ServiceSlack, ServiceAzureOpenAI, ServiceGoogleWorkspace, ServiceGoogleOAuth}

func ParseServiceType(s string) (ServiceType, error) {
	st := ServiceType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range serviceTypes {
		if st == known {
			return st, nil
		}
	}
	names := make([]string, len(serviceTypes))
	for i, known := range serviceTypes {
		names[i] = string(known)
	}
	return "", common.NewValidationError("service_type",
		"invalid service type, must be one of: "+strings.Join(names, ", "))
}

// Payload is the decrypted credential set of one service. The vault stores
// the serialized variant and never its individual fields.
type Payload interface {
	Service() ServiceType
	validate() error
}

type SlackCredential struct {
	BotToken      string `json:"bot_token"`
	AppToken      string `json:"app_token,omitempty"`
	SigningSecret string `json:"signing_secret,omitempty"`
}

func (SlackCredential) Service() ServiceType { return ServiceSlack }

func (p SlackCredential) validate() error {
	if strings.TrimSpace(p.BotToken) == "" {
		return common.NewValidationError("bot_token", "required")
	}
	return nil
}

type CompletionCredential struct {
	Endpoint   string `json:"endpoint"`
	APIKey     string `json:"api_key"`
	Deployment string `json:"deployment"`
	APIVersion string `json:"api_version,omitempty"`
}

func (CompletionCredential) Service() ServiceType { return ServiceAzureOpenAI }

func (p CompletionCredential) validate() error {
	switch {
	case strings.TrimSpace(p.Endpoint) == "":
		return common.NewValidationError("endpoint", "required")
	case strings.TrimSpace(p.APIKey) == "":
		return common.NewValidationError("api_key", "required")
	case strings.TrimSpace(p.Deployment) == "":
		return common.NewValidationError("deployment", "required")
	}
	return nil
}

type DocumentStoreCredential struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenURI     string     `json:"token_uri,omitempty"`
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"client_secret"`
	Scopes       []string   `json:"scopes,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

func (DocumentStoreCredential) Service() ServiceType { return ServiceGoogleWorkspace }

func (p DocumentStoreCredential) validate() error {
	if p.Token == "" && p.RefreshToken == "" {
		return common.NewValidationError("token", "token or refresh_token required")
	}
	if p.ClientID == "" || p.ClientSecret == "" {
		return common.NewValidationError("client_id", "client_id and client_secret required")
	}
	return nil
}

// OAuthClientCredential is a Google OAuth client registration. It has no
// live endpoint to probe, so it is only checked statically on test.
type OAuthClientCredential struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
}

func (OAuthClientCredential) Service() ServiceType { return ServiceGoogleOAuth }

func (OAuthClientCredential) validate() error { return nil }

// DecodePayload turns a submitted credential object into the variant for
// service and checks its required fields.
func DecodePayload(service ServiceType, raw json.RawMessage) (Payload, error) {
	p, err := unmarshalPayload(service, raw)
	if err != nil {
		return nil, common.NewValidationError("credentials", err.Error())
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func unmarshalPayload(service ServiceType, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch service {
	case ServiceSlack:
		var p SlackCredential
		err := json.Unmarshal(raw, &p)
		return p, err
	case ServiceAzureOpenAI:
		var p CompletionCredential
		err := json.Unmarshal(raw, &p)
		return p, err
	case ServiceGoogleWorkspace:
		var p DocumentStoreCredential
		err := json.Unmarshal(raw, &p)
		return p, err
	case ServiceGoogleOAuth:
		var p OAuthClientCredential
		err := json.Unmarshal(raw, &p)
		return p, err
	default:
		return nil, fmt.Errorf("unknown service type %q", service)
	}
}
