// Package gdocs creates Google Docs in the connected user's Drive.
package gdocs

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Document is a created Google Doc.
type Document struct {
	ID  string
	URL string
}

// Account is the Drive user a token belongs to.
type Account struct {
	Email       string
	DisplayName string
}

type Client struct {
	docs  *docs.Service
	drive *drive.Service
}

// New builds Docs and Drive clients authorized by ts. Extra options are
// applied to both services.
func New(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	all := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)

	ds, err := docs.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("google docs client: %w", err)
	}
	dr, err := drive.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("google drive client: %w", err)
	}
	return &Client{docs: ds, drive: dr}, nil
}

// Create makes a new document titled title holding content and returns its
// id and browser link.
func (c *Client) Create(ctx context.Context, title, content string) (Document, error) {
	doc, err := c.docs.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return Document{}, fmt.Errorf("create document: %w", err)
	}

	if content != "" {
		req := &docs.BatchUpdateDocumentRequest{
			Requests: []*docs.Request{{
				InsertText: &docs.InsertTextRequest{
					Location: &docs.Location{Index: 1},
					Text:     content,
				},
			}},
		}
		if _, err := c.docs.Documents.BatchUpdate(doc.DocumentId, req).Context(ctx).Do(); err != nil {
			return Document{}, fmt.Errorf("insert document text: %w", err)
		}
	}

	f, err := c.drive.Files.Get(doc.DocumentId).Fields("webViewLink").Context(ctx).Do()
	if err != nil {
		return Document{}, fmt.Errorf("get document link: %w", err)
	}
	return Document{ID: doc.DocumentId, URL: f.WebViewLink}, nil
}

func (c *Client) Probe(ctx context.Context) (Account, error) {
	about, err := c.drive.About.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		return Account{}, fmt.Errorf("drive about: %w", err)
	}
	if about.User == nil {
		return Account{}, nil
	}
	return Account{Email: about.User.EmailAddress, DisplayName: about.User.DisplayName}, nil
}
