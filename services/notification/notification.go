// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package notification emails subscribers when content matching their
// notifications arrives.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/schema"
	"github.com/mmia-foundation/mmia/render"
	"github.com/mmia-foundation/mmia/services/delivery"
	"github.com/mmia-foundation/mmia/store"
)

// API is the part of the data API the service uses.
type API interface {
	FindContent(ctx context.Context, id int64) (*schema.Content, error)
	GetNotification(ctx context.Context, id int64) (*schema.Notification, error)
	GetAllNotifications(ctx context.Context) ([]schema.Notification, error)
	AddNotificationInstance(ctx context.Context, instance *schema.NotificationInstance) (*schema.NotificationInstance, error)
}

// Links are the application URLs offered to templates.
type Links struct {
	MmiaURL              string
	ViewContentURL       string
	RequestTranscriptURL string
	AddToReportURL       string
}

// TemplateData is what notification templates render.
type TemplateData struct {
	Notification *schema.Notification
	Content      *schema.Content

	MmiaURL              string
	ViewContentURL       string
	RequestTranscriptURL string
	AddToReportURL       string
}

// fallbackTemplate names the definition used by notifications without
// a template.
const fallbackTemplate = "notification"

// Strategy processes NotificationRequest messages.
type Strategy struct {
	api         API
	sender      *delivery.Sender
	engine      *render.Engine
	definitions render.Definitions
	validator   Validator
	links       Links
	clock       clock.Clock
}

// NewStrategy returns the notification strategy.
func NewStrategy(api API, sender *delivery.Sender, engine *render.Engine, definitions render.Definitions, validator Validator, links Links, clk clock.Clock) *Strategy {
	return &Strategy{
		api:         api,
		sender:      sender,
		engine:      engine,
		definitions: definitions,
		validator:   validator,
		links:       links,
		clock:       clk,
	}
}

// CheckOwnership always proceeds; notifications have no content
// reference.
func (s *Strategy) CheckOwnership(context.Context, *consumer.Message[schema.NotificationRequest]) (consumer.Ownership, error) {
	return consumer.Proceed(), nil
}

// UpdateStatus reports no work order.
func (s *Strategy) UpdateStatus(context.Context, *consumer.Message[schema.NotificationRequest], schema.WorkOrderStatus) (consumer.Transition, error) {
	return consumer.TransitionAbsent, nil
}

// PerformAction sends the requested notification, or every
// notification, for the request's content.
func (s *Strategy) PerformAction(ctx context.Context, message *consumer.Message[schema.NotificationRequest]) error {
	request := &message.Value
	logger := message.Logger

	content, err := s.content(ctx, request)
	if err != nil {
		return err
	}
	if content == nil {
		logger.Warn("content does not exist for notification request", "content_id", request.ContentID)
		return nil
	}

	var notifications []schema.Notification
	if request.NotificationID != nil {
		notification, err := s.api.GetNotification(ctx, *request.NotificationID)
		if err != nil {
			return fmt.Errorf("fetching notification %d: %w", *request.NotificationID, err)
		}
		if notification == nil {
			logger.Debug("notification does not exist", "notification_id", *request.NotificationID)
			return nil
		}
		notifications = []schema.Notification{*notification}
	} else {
		notifications, err = s.api.GetAllNotifications(ctx)
		if err != nil {
			return fmt.Errorf("fetching notifications: %w", err)
		}
	}

	for i := range notifications {
		notification := &notifications[i]
		if !request.IgnoreValidation {
			if ok, reason := s.validator.Confirm(notification, content); !ok {
				logger.Debug("notification not sent",
					"notification_id", notification.ID, "content_id", content.ID, "reason", reason)
				continue
			}
		}
		if err := s.send(ctx, logger, request, notification, content); err != nil {
			return err
		}
	}
	return nil
}

// content returns the request's content, fetched by id or decoded from
// the embedded copy.
func (s *Strategy) content(ctx context.Context, request *schema.NotificationRequest) (*schema.Content, error) {
	if request.ContentID != nil {
		content, err := s.api.FindContent(ctx, *request.ContentID)
		if err != nil {
			return nil, fmt.Errorf("fetching content %d: %w", *request.ContentID, err)
		}
		return content, nil
	}
	if len(request.Content) == 0 {
		return nil, consumer.Skip("notification request has neither content id nor content")
	}
	var content schema.Content
	if err := json.Unmarshal(request.Content, &content); err != nil {
		return nil, consumer.Skip("decoding embedded content: %v", err)
	}
	return &content, nil
}

func (s *Strategy) send(ctx context.Context, logger *slog.Logger, request *schema.NotificationRequest, notification *schema.Notification, content *schema.Content) error {
	template, err := s.definitions.Resolve(notification.Template, fallbackTemplate)
	if err != nil {
		return consumer.Skip("notification %d: %v", notification.ID, err)
	}
	data := TemplateData{
		Notification:         notification,
		Content:              content,
		MmiaURL:              s.links.MmiaURL,
		ViewContentURL:       viewContentURL(s.links.ViewContentURL, content.ID),
		RequestTranscriptURL: s.links.RequestTranscriptURL,
		AddToReportURL:       s.links.AddToReportURL,
	}
	subject, body, err := s.engine.Render("notification-"+strconv.FormatInt(notification.ID, 10), template, data)
	if err != nil {
		return consumer.Skip("rendering notification %d: %v", notification.ID, err)
	}

	recipients := make([]string, 0, len(notification.Subscribers))
	for _, subscriber := range notification.Subscribers {
		if subscriber.IsSubscribed {
			recipients = append(recipients, subscriber.Email)
		}
	}
	response, err := s.sender.Send(ctx, delivery.Email{
		Kind:        store.DeliveryNotification,
		RecordID:    notification.ID,
		Subject:     subject,
		Body:        body,
		Recipients:  recipients,
		To:          request.To,
		Tag:         fmt.Sprintf("%s-%d", notification.Name, content.ID),
		RequestorID: request.RequestorID,
	})
	if err != nil {
		return err
	}
	if response == nil {
		logger.Debug("notification has no recipients", "notification_id", notification.ID)
		return nil
	}
	logger.Info("notification sent", "notification_id", notification.ID, "content_id", content.ID)

	now := s.clock.Now().UTC()
	_, err = s.api.AddNotificationInstance(ctx, &schema.NotificationInstance{
		NotificationID: notification.ID,
		ContentID:      content.ID,
		Subject:        subject,
		Body:           body,
		Response:       response,
		SentOn:         &now,
	})
	if err != nil {
		return fmt.Errorf("recording notification %d instance: %w", notification.ID, err)
	}
	return nil
}

// viewContentURL appends the content id to base.
func viewContentURL(base string, contentID int64) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strconv.FormatInt(contentID, 10)
}
