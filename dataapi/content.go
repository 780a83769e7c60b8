// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package dataapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mmia-foundation/mmia/lib/schema"
)

// FindContent returns content id, or nil when it does not exist.
func (c *Client) FindContent(ctx context.Context, id int64) (*schema.Content, error) {
	return findOne[schema.Content](ctx, c, fmt.Sprintf("/services/contents/%d", id), nil)
}

// UpdateContent saves content. The API rejects a stale Version with 409.
func (c *Client) UpdateContent(ctx context.Context, content *schema.Content) (*schema.Content, error) {
	var updated schema.Content
	if err := c.call(ctx, http.MethodPut, fmt.Sprintf("/services/contents/%d", content.ID), content, &updated, nil); err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetImageFile returns the image attached to content id, or nil when
// there is none.
func (c *Client) GetImageFile(ctx context.Context, contentID int64) ([]byte, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/services/contents/%d/image", contentID), nil, nil)
	if IsNotFound(err) {
		return nil, nil
	}
	return body, err
}

func referencePath(source string) string {
	return "/services/content/references/" + url.PathEscape(source)
}

// FindContentReference implements contentref.Store.
func (c *Client) FindContentReference(ctx context.Context, source, uid string) (*schema.ContentReference, error) {
	return findOne[schema.ContentReference](ctx, c, referencePath(source), url.Values{"uid": {uid}})
}

// AddContentReference implements contentref.Store.
func (c *Client) AddContentReference(ctx context.Context, reference *schema.ContentReference) (*schema.ContentReference, error) {
	var added schema.ContentReference
	if err := c.call(ctx, http.MethodPost, "/services/content/references", reference, &added, nil); err != nil {
		return nil, err
	}
	return &added, nil
}

// UpdateContentReference implements contentref.Store.
func (c *Client) UpdateContentReference(ctx context.Context, reference *schema.ContentReference) (*schema.ContentReference, error) {
	var updated schema.ContentReference
	if err := c.call(ctx, http.MethodPut, referencePath(reference.Source), reference, &updated, url.Values{"uid": {reference.UID}}); err != nil {
		return nil, err
	}
	return &updated, nil
}

// FindWorkOrder implements workorder.Store.
func (c *Client) FindWorkOrder(ctx context.Context, id int64) (*schema.WorkOrder, error) {
	return findOne[schema.WorkOrder](ctx, c, fmt.Sprintf("/services/work/orders/%d", id), nil)
}

// UpdateWorkOrder implements workorder.Store.
func (c *Client) UpdateWorkOrder(ctx context.Context, order *schema.WorkOrder) (*schema.WorkOrder, error) {
	var updated schema.WorkOrder
	if err := c.call(ctx, http.MethodPut, fmt.Sprintf("/services/work/orders/%d", order.ID), order, &updated, nil); err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetUser returns user id, or nil when it does not exist.
func (c *Client) GetUser(ctx context.Context, id int64) (*schema.User, error) {
	return findOne[schema.User](ctx, c, fmt.Sprintf("/services/users/%d", id), nil)
}
