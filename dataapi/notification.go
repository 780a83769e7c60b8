// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package dataapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mmia-foundation/mmia/lib/schema"
)

// GetNotification returns notification id, or nil when it does not
// exist.
func (c *Client) GetNotification(ctx context.Context, id int64) (*schema.Notification, error) {
	return findOne[schema.Notification](ctx, c, fmt.Sprintf("/services/notifications/%d", id), nil)
}

// GetAllNotifications returns every notification, enabled or not.
func (c *Client) GetAllNotifications(ctx context.Context) ([]schema.Notification, error) {
	var notifications []schema.Notification
	if err := c.call(ctx, http.MethodGet, "/services/notifications", nil, &notifications, nil); err != nil {
		return nil, err
	}
	return notifications, nil
}

// AddNotificationInstance records a sent notification.
func (c *Client) AddNotificationInstance(ctx context.Context, instance *schema.NotificationInstance) (*schema.NotificationInstance, error) {
	var added schema.NotificationInstance
	if err := c.call(ctx, http.MethodPost, "/services/notifications/instances", instance, &added, nil); err != nil {
		return nil, err
	}
	return &added, nil
}
