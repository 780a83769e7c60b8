// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mmia-foundation/mmia/broker"
	"github.com/mmia-foundation/mmia/ches"
	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/schema"
	"github.com/mmia-foundation/mmia/render"
	"github.com/mmia-foundation/mmia/services/delivery"
)

const alertAction = 4

type fakeAPI struct {
	contents      map[int64]*schema.Content
	notifications []schema.Notification
	instances     []schema.NotificationInstance
	addErr        error
}

func (f *fakeAPI) FindContent(_ context.Context, id int64) (*schema.Content, error) {
	return f.contents[id], nil
}

func (f *fakeAPI) GetNotification(_ context.Context, id int64) (*schema.Notification, error) {
	for i := range f.notifications {
		if f.notifications[i].ID == id {
			notification := f.notifications[i]
			return &notification, nil
		}
	}
	return nil, nil
}

func (f *fakeAPI) GetAllNotifications(context.Context) ([]schema.Notification, error) {
	return append([]schema.Notification(nil), f.notifications...), nil
}

func (f *fakeAPI) AddNotificationInstance(_ context.Context, instance *schema.NotificationInstance) (*schema.NotificationInstance, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.instances = append(f.instances, *instance)
	return instance, nil
}

func (f *fakeAPI) GetUser(_ context.Context, id int64) (*schema.User, error) {
	return &schema.User{ID: id, Email: "requestor@example.com"}, nil
}

type fakeMailer struct {
	merges []ches.EmailMerge
}

func (f *fakeMailer) NewMerge(subject, body string, contexts []ches.EmailContext) ches.EmailMerge {
	return ches.EmailMerge{Subject: subject, Body: body, Contexts: contexts}
}

func (f *fakeMailer) SendEmail(_ context.Context, merge ches.EmailMerge) (*ches.EmailResponse, error) {
	f.merges = append(f.merges, merge)
	return &ches.EmailResponse{TransactionID: "tx"}, nil
}

type committer struct{ committed []int64 }

func (c *committer) Commit(_ context.Context, record *broker.Record) error {
	c.committed = append(c.committed, record.Offset)
	return nil
}

func (c *committer) Resume(*broker.Record) {}

type fixture struct {
	api       *fakeAPI
	mailer    *fakeMailer
	committer *committer
	pipeline  *consumer.Pipeline[schema.NotificationRequest]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	fake := clock.Fake(time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC))
	source := int64(11)
	api := &fakeAPI{
		contents: map[int64]*schema.Content{
			1: {ID: 1, Headline: "Flood warning", ContentType: schema.ContentStory, SourceID: &source,
				Actions: []schema.ContentAction{{ActionID: alertAction, Value: "true"}}},
			2: {ID: 2, Headline: "Weather", ContentType: schema.ContentAudioVideo, SourceID: &source},
		},
		notifications: []schema.Notification{
			{
				ID: 10, Name: "alerts", IsEnabled: true,
				Settings: schema.NotificationSettings{AlertOnly: true},
				Template: &schema.Template{Subject: "ALERT {{.Content.Headline}}", Body: "<a href=\"{{.ViewContentURL}}\">view</a>"},
				Subscribers: []schema.NotificationSubscriber{
					{Email: "a@example.com", IsSubscribed: true},
					{Email: "gone@example.com", IsSubscribed: false},
				},
			},
			{
				ID: 20, Name: "av", IsEnabled: true,
				Settings:    schema.NotificationSettings{ContentTypes: []schema.ContentType{schema.ContentAudioVideo}},
				Subscribers: []schema.NotificationSubscriber{{Email: "b@example.com", IsSubscribed: true}},
			},
		},
	}
	mailer := &fakeMailer{}
	definitions := render.Definitions{
		"notification": {Name: "notification", Subject: "{{.Content.Headline}}", Body: "# {{.Content.Headline}}", Format: "markdown"},
	}
	strategy := NewStrategy(api,
		delivery.NewSender(api, mailer, nil, fake, logger),
		render.NewEngine(), definitions,
		Validator{AlertActionID: alertAction},
		Links{ViewContentURL: "https://mmia.example.com/view/"},
		fake)
	commits := &committer{}
	return &fixture{
		api:       api,
		mailer:    mailer,
		committer: commits,
		pipeline:  consumer.NewPipeline[schema.NotificationRequest](strategy, commits, consumer.PipelineConfig{}, logger),
	}
}

func (f *fixture) handle(t *testing.T, offset int64, request schema.NotificationRequest) error {
	t.Helper()
	value, err := json.Marshal(request)
	if err != nil {
		t.Fatal(err)
	}
	return f.pipeline.Handle(context.Background(), &broker.Record{Topic: "notify", Offset: offset, Value: value})
}

func ptr[T any](v T) *T { return &v }

func TestAllNotificationsValidated(t *testing.T) {
	f := newFixture(t)

	if err := f.handle(t, 0, schema.NotificationRequest{ContentID: ptr(int64(1))}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.mailer.merges) != 1 {
		t.Fatalf("sent %d merges, want only the alert", len(f.mailer.merges))
	}
	merge := f.mailer.merges[0]
	if merge.Subject != "ALERT Flood warning" {
		t.Errorf("subject = %q", merge.Subject)
	}
	if !strings.Contains(merge.Body, "https://mmia.example.com/view/1") {
		t.Errorf("body = %q", merge.Body)
	}
	if len(merge.Contexts) != 1 || merge.Contexts[0].To[0] != "a@example.com" || merge.Contexts[0].Tag != "alerts-1" {
		t.Errorf("contexts = %+v", merge.Contexts)
	}
	if len(f.api.instances) != 1 || f.api.instances[0].NotificationID != 10 {
		t.Fatalf("instances = %+v", f.api.instances)
	}
	if !strings.Contains(string(f.api.instances[0].Response), `"txId":"tx"`) {
		t.Errorf("response = %s", f.api.instances[0].Response)
	}
	if len(f.committer.committed) != 1 {
		t.Errorf("committed = %v", f.committer.committed)
	}
}

func TestSingleNotificationUsesFallbackTemplate(t *testing.T) {
	f := newFixture(t)

	err := f.handle(t, 0, schema.NotificationRequest{NotificationID: ptr(int64(20)), ContentID: ptr(int64(2))})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.mailer.merges) != 1 {
		t.Fatalf("sent %d merges", len(f.mailer.merges))
	}
	if !strings.Contains(f.mailer.merges[0].Body, "<h1>Weather</h1>") {
		t.Errorf("body = %q", f.mailer.merges[0].Body)
	}
}

func TestIgnoreValidationAndExplicitTo(t *testing.T) {
	f := newFixture(t)

	err := f.handle(t, 0, schema.NotificationRequest{
		NotificationID:   ptr(int64(10)),
		ContentID:        ptr(int64(2)),
		IgnoreValidation: true,
		To:               "x@example.com,y@example.com",
		RequestorID:      ptr(int64(5)),
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	merge := f.mailer.merges[0]
	if len(merge.Contexts) != 1 || len(merge.Contexts[0].To) != 2 {
		t.Errorf("contexts = %+v", merge.Contexts)
	}
	if merge.Requestor != "requestor@example.com" {
		t.Errorf("requestor = %q", merge.Requestor)
	}
}

func TestMissingContentAndNotificationCommit(t *testing.T) {
	f := newFixture(t)

	if err := f.handle(t, 0, schema.NotificationRequest{ContentID: ptr(int64(404))}); err != nil {
		t.Fatalf("missing content: %v", err)
	}
	if err := f.handle(t, 1, schema.NotificationRequest{NotificationID: ptr(int64(99)), ContentID: ptr(int64(1))}); err != nil {
		t.Fatalf("missing notification: %v", err)
	}
	if err := f.handle(t, 2, schema.NotificationRequest{}); err != nil {
		t.Fatalf("empty request: %v", err)
	}
	if len(f.mailer.merges) != 0 {
		t.Errorf("sent %d merges", len(f.mailer.merges))
	}
	if len(f.committer.committed) != 3 {
		t.Errorf("committed = %v", f.committer.committed)
	}
}

func TestEmbeddedContent(t *testing.T) {
	f := newFixture(t)
	content, _ := json.Marshal(schema.Content{ID: 77, Headline: "Inline", ContentType: schema.ContentAudioVideo})

	if err := f.handle(t, 0, schema.NotificationRequest{NotificationID: ptr(int64(20)), Content: content}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.api.instances) != 1 || f.api.instances[0].ContentID != 77 {
		t.Errorf("instances = %+v", f.api.instances)
	}
}

func TestInstanceFailureLeavesUncommitted(t *testing.T) {
	f := newFixture(t)
	f.api.addErr = errors.New("api down")

	if err := f.handle(t, 0, schema.NotificationRequest{ContentID: ptr(int64(1))}); err == nil {
		t.Fatal("expected error")
	}
	if len(f.committer.committed) != 0 {
		t.Errorf("committed = %v", f.committer.committed)
	}
}

func TestValidator(t *testing.T) {
	source := int64(3)
	content := &schema.Content{ContentType: schema.ContentPrint, ProductID: 2, SourceID: &source}
	validator := Validator{AlertActionID: alertAction}

	tests := []struct {
		name     string
		settings schema.NotificationSettings
		enabled  bool
		want     bool
	}{
		{"disabled", schema.NotificationSettings{}, false, false},
		{"no filters", schema.NotificationSettings{}, true, true},
		{"type match", schema.NotificationSettings{ContentTypes: []schema.ContentType{schema.ContentPrint}}, true, true},
		{"type mismatch", schema.NotificationSettings{ContentTypes: []schema.ContentType{schema.ContentImage}}, true, false},
		{"product mismatch", schema.NotificationSettings{ProductIDs: []int64{9}}, true, false},
		{"source match", schema.NotificationSettings{SourceIDs: []int64{3}}, true, true},
		{"source mismatch", schema.NotificationSettings{SourceIDs: []int64{4}}, true, false},
		{"alert only", schema.NotificationSettings{AlertOnly: true}, true, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			notification := &schema.Notification{IsEnabled: test.enabled, Settings: test.settings}
			if got, reason := validator.Confirm(notification, content); got != test.want {
				t.Errorf("Confirm = %v (%s), want %v", got, reason, test.want)
			}
		})
	}
}
