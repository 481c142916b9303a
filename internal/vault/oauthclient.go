package vault

import "strings"

const (
	googleClientIDSuffix     = ".apps.googleusercontent.com"
	googleClientSecretPrefix = "GOCSPX-"
)

func checkOAuthClient(p OAuthClientCredential) TestOutcome {
	switch {
	case p.ClientID == "" || p.ClientSecret == "":
		return TestOutcome{Status: TestFailed, Message: "Client ID and Client Secret are required"}
	case !strings.HasSuffix(p.ClientID, googleClientIDSuffix):
		return TestOutcome{Status: TestFailed, Message: "Invalid Client ID format. Should end with " + googleClientIDSuffix}
	case !strings.HasPrefix(p.ClientSecret, googleClientSecretPrefix):
		return TestOutcome{Status: TestFailed, Message: "Invalid Client Secret format. Should start with " + googleClientSecretPrefix}
	}
	return TestOutcome{
		Status:  TestSuccess,
		Message: "Google OAuth credentials saved. Click 'Connect Google Workspace' to authorize.",
		Details: map[string]any{
			"client_id":    p.ClientID,
			"redirect_uri": p.RedirectURI,
		},
	}
}
