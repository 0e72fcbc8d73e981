// Package blogger publishes rendered documents to a Blogger blog.
package blogger

import (
	"context"
	"errors"
	"fmt"

	bloggerapi "google.golang.org/api/blogger/v3"
	"google.golang.org/api/option"

	"github.com/deusflow/impactdigest/internal/logger"
	"github.com/deusflow/impactdigest/internal/render"
)

type Client struct {
	svc    *bloggerapi.Service
	blogID string
}

// NewClient authenticates with an authorized-user token JSON.
func NewClient(ctx context.Context, blogID, tokenJSON string) (*Client, error) {
	if tokenJSON == "" {
		return nil, errors.New("blogger token JSON is empty")
	}
	return New(ctx, blogID,
		option.WithCredentialsJSON([]byte(tokenJSON)),
		option.WithScopes(bloggerapi.BloggerScope),
	)
}

func New(ctx context.Context, blogID string, opts ...option.ClientOption) (*Client, error) {
	if blogID == "" {
		return nil, errors.New("blog id is empty")
	}
	svc, err := bloggerapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Blogger service: %w", err)
	}
	return &Client{svc: svc, blogID: blogID}, nil
}

// Publish inserts doc as a live post and returns its public URL.
func (c *Client) Publish(ctx context.Context, doc render.BlogDocument) (string, error) {
	post := &bloggerapi.Post{
		Title:   doc.Title,
		Content: doc.HTML,
		Labels:  doc.Labels,
	}

	created, err := c.svc.Posts.Insert(c.blogID, post).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert post: %w", err)
	}
	if created.Url == "" {
		return "", errors.New("blogger returned a post without URL")
	}

	logger.Info("Published blog post", "url", created.Url, "id", created.Id)
	return created.Url, nil
}
