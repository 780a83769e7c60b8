// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package reporting

import (
	"context"
	"encoding/json"
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

type fakeAPI struct {
	reports          map[int64]*schema.Report
	found            map[string][]schema.Content
	instances        map[int64]*schema.ReportInstance
	instanceContent  []schema.ReportInstanceContent
	overviews        map[int64]*schema.AVOverviewInstance
	overviewTemplate *schema.AVOverviewTemplate
	images           map[int64][]byte

	added            []schema.ReportInstance
	updated          []schema.ReportInstance
	updatedOverviews []schema.AVOverviewInstance
}

func (f *fakeAPI) GetReport(_ context.Context, id int64) (*schema.Report, error) {
	return f.reports[id], nil
}

func (f *fakeAPI) FindContentForReport(context.Context, int64) (map[string][]schema.Content, error) {
	return f.found, nil
}

func (f *fakeAPI) GetReportInstance(_ context.Context, id int64) (*schema.ReportInstance, error) {
	return f.instances[id], nil
}

func (f *fakeAPI) GetReportInstanceContent(context.Context, int64) ([]schema.ReportInstanceContent, error) {
	return f.instanceContent, nil
}

func (f *fakeAPI) AddReportInstance(_ context.Context, instance *schema.ReportInstance) (*schema.ReportInstance, error) {
	added := *instance
	added.ID = int64(100 + len(f.added))
	f.added = append(f.added, added)
	return &added, nil
}

func (f *fakeAPI) UpdateReportInstance(_ context.Context, instance *schema.ReportInstance) (*schema.ReportInstance, error) {
	f.updated = append(f.updated, *instance)
	return instance, nil
}

func (f *fakeAPI) GetAVOverviewInstance(_ context.Context, id int64) (*schema.AVOverviewInstance, error) {
	return f.overviews[id], nil
}

func (f *fakeAPI) GetAVOverviewTemplate(context.Context, string) (*schema.AVOverviewTemplate, error) {
	return f.overviewTemplate, nil
}

func (f *fakeAPI) UpdateAVOverviewInstance(_ context.Context, instance *schema.AVOverviewInstance) (*schema.AVOverviewInstance, error) {
	f.updatedOverviews = append(f.updatedOverviews, *instance)
	return instance, nil
}

func (f *fakeAPI) GetImageFile(_ context.Context, id int64) ([]byte, error) {
	return f.images[id], nil
}

func (f *fakeAPI) GetUser(_ context.Context, id int64) (*schema.User, error) {
	return &schema.User{ID: id, Email: "owner@example.com"}, nil
}

type fakeMailer struct{ merges []ches.EmailMerge }

func (f *fakeMailer) NewMerge(subject, body string, contexts []ches.EmailContext) ches.EmailMerge {
	return ches.EmailMerge{Subject: subject, Body: body, Contexts: contexts}
}

func (f *fakeMailer) SendEmail(_ context.Context, merge ches.EmailMerge) (*ches.EmailResponse, error) {
	f.merges = append(f.merges, merge)
	return &ches.EmailResponse{TransactionID: "tx-r"}, nil
}

type committer struct{ committed int }

func (c *committer) Commit(context.Context, *broker.Record) error { c.committed++; return nil }
func (c *committer) Resume(*broker.Record)                        {}

const reportBody = `{{range .Sections}}<h2>{{.Label}}</h2>{{range .Content}}<p>{{.Headline}}{{if .Image}}<img src="data:image/jpeg;base64,{{.Image}}">{{end}}</p>{{end}}{{end}}`

func newAPI() *fakeAPI {
	report := &schema.Report{
		ID: 1, Name: "Morning", IsEnabled: true,
		Template: &schema.Template{Subject: "{{.Report.Name}} report", Body: reportBody},
		Sections: []schema.ReportSection{
			{Name: "photos", Label: "Photos", SortOrder: 2, ShowImages: true},
			{Name: "top", Label: "Top", SortOrder: 1},
		},
		Subscribers: []schema.ReportSubscriber{
			{Email: "a@example.com", IsSubscribed: true},
			{Email: "b@example.com", IsSubscribed: true},
		},
	}
	return &fakeAPI{
		reports: map[int64]*schema.Report{1: report},
		found: map[string][]schema.Content{
			"top":    {{ID: 1, Headline: "Lead story", ContentType: schema.ContentStory}},
			"photos": {{ID: 2, Headline: "Sunrise", ContentType: schema.ContentImage}},
		},
		images: map[int64][]byte{2: []byte("jpeg")},
	}
}

type fixture struct {
	api       *fakeAPI
	mailer    *fakeMailer
	committer *committer
	pipeline  *consumer.Pipeline[schema.ReportRequest]
}

func newFixture(t *testing.T, api *fakeAPI) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	fake := clock.Fake(time.Date(2026, 4, 4, 6, 0, 0, 0, time.UTC))
	mailer := &fakeMailer{}
	definitions := render.Definitions{
		"av-overview": {Name: "av-overview", Subject: "Evening overview", Body: "{{range .Sections}}<h3>{{.Name}}</h3>{{range .Items}}<p>{{.Summary}}</p>{{end}}{{end}}"},
	}
	strategy := NewStrategy(api, delivery.NewSender(api, mailer, nil, fake, logger),
		render.NewEngine(), definitions, "https://mmia.example.com/view", fake)
	commits := &committer{}
	return &fixture{
		api:       api,
		mailer:    mailer,
		committer: commits,
		pipeline:  consumer.NewPipeline[schema.ReportRequest](strategy, commits, consumer.PipelineConfig{}, logger),
	}
}

func (f *fixture) handle(t *testing.T, request schema.ReportRequest) error {
	t.Helper()
	value, err := json.Marshal(request)
	if err != nil {
		t.Fatal(err)
	}
	return f.pipeline.Handle(context.Background(), &broker.Record{Topic: "reporting", Value: value})
}

func TestGenerateReport(t *testing.T) {
	f := newFixture(t, newAPI())

	if err := f.handle(t, schema.ReportRequest{ReportType: schema.ReportContent, ReportID: 1}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.mailer.merges) != 1 {
		t.Fatalf("sent %d merges", len(f.mailer.merges))
	}
	merge := f.mailer.merges[0]
	if merge.Subject != "Morning report" {
		t.Errorf("subject = %q", merge.Subject)
	}
	top := strings.Index(merge.Body, "<h2>Top</h2>")
	photos := strings.Index(merge.Body, "<h2>Photos</h2>")
	if top < 0 || photos < 0 || top > photos {
		t.Errorf("sections out of order: %q", merge.Body)
	}
	if !strings.Contains(merge.Body, "base64,anBlZw==") {
		t.Errorf("image not inlined: %q", merge.Body)
	}
	if len(merge.Contexts) != 2 || merge.Contexts[0].Tag != "Morning-1" {
		t.Errorf("contexts = %+v", merge.Contexts)
	}

	if len(f.api.added) != 1 || len(f.api.added[0].Content) != 2 || f.api.added[0].Status != schema.ReportPending {
		t.Fatalf("added = %+v", f.api.added)
	}
	if len(f.api.updated) != 1 {
		t.Fatalf("updated = %+v", f.api.updated)
	}
	updated := f.api.updated[0]
	if updated.ID != 100 || updated.Status != schema.ReportCompleted || updated.SentOn == nil {
		t.Errorf("updated = %+v", updated)
	}
	if !strings.Contains(string(updated.Response), "tx-r") {
		t.Errorf("response = %s", updated.Response)
	}
	if f.committer.committed != 1 {
		t.Errorf("committed = %d", f.committer.committed)
	}
}

func TestSendExistingInstance(t *testing.T) {
	api := newAPI()
	api.instances = map[int64]*schema.ReportInstance{
		7: {ID: 7, ReportID: 1, Status: schema.ReportPending, Report: api.reports[1]},
	}
	api.instanceContent = []schema.ReportInstanceContent{
		{ContentID: 1, SectionName: "top", SortOrder: 1, Content: &schema.Content{ID: 1, Headline: "Second"}},
		{ContentID: 3, SectionName: "top", SortOrder: 0, Content: &schema.Content{ID: 3, Headline: "First"}},
	}
	f := newFixture(t, api)

	instanceID := int64(7)
	err := f.handle(t, schema.ReportRequest{ReportType: schema.ReportContent, ReportID: 1, ReportInstanceID: &instanceID, To: "x@example.com"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.api.added) != 0 {
		t.Error("existing instance was regenerated")
	}
	body := f.mailer.merges[0].Body
	if strings.Index(body, "First") > strings.Index(body, "Second") {
		t.Errorf("instance content not in sort order: %q", body)
	}
	contexts := f.mailer.merges[0].Contexts
	if len(contexts) != 1 || contexts[0].To[0] != "x@example.com" {
		t.Errorf("contexts = %+v", contexts)
	}
	if len(f.api.updated) != 1 || f.api.updated[0].PublishedOn == nil {
		t.Errorf("updated = %+v", f.api.updated)
	}
}

func TestInstanceWithUnknownSectionIsSkipped(t *testing.T) {
	api := newAPI()
	api.instances = map[int64]*schema.ReportInstance{7: {ID: 7, Report: api.reports[1]}}
	api.instanceContent = []schema.ReportInstanceContent{{ContentID: 1, SectionName: "gone"}}
	f := newFixture(t, api)

	instanceID := int64(7)
	if err := f.handle(t, schema.ReportRequest{ReportInstanceID: &instanceID}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.mailer.merges) != 0 || f.committer.committed != 1 {
		t.Errorf("merges = %d, committed = %d", len(f.mailer.merges), f.committer.committed)
	}
}

func TestAVOverview(t *testing.T) {
	api := newAPI()
	api.overviews = map[int64]*schema.AVOverviewInstance{
		5: {ID: 5, TemplateType: "Weekday", Sections: []schema.AVOverviewSection{
			{Name: "CBC News", SortOrder: 1, Items: []schema.AVOverviewSectionItem{
				{Summary: "second", SortOrder: 2}, {Summary: "first", SortOrder: 1},
			}},
		}},
	}
	api.overviewTemplate = &schema.AVOverviewTemplate{
		TemplateType: "Weekday",
		Subscribers:  []schema.ReportSubscriber{{Email: "av@example.com", IsSubscribed: true}},
	}
	f := newFixture(t, api)

	if err := f.handle(t, schema.ReportRequest{ReportType: schema.ReportAVOverview, ReportID: 5}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.mailer.merges) != 1 {
		t.Fatalf("sent %d merges", len(f.mailer.merges))
	}
	body := f.mailer.merges[0].Body
	if strings.Index(body, "first") > strings.Index(body, "second") {
		t.Errorf("items not in sort order: %q", body)
	}
	if len(f.api.updatedOverviews) != 1 || !f.api.updatedOverviews[0].IsPublished {
		t.Errorf("updated = %+v", f.api.updatedOverviews)
	}
}

func TestAVOverviewWithoutSubscribers(t *testing.T) {
	api := newAPI()
	api.overviews = map[int64]*schema.AVOverviewInstance{5: {ID: 5, TemplateType: "Weekday"}}
	api.overviewTemplate = &schema.AVOverviewTemplate{TemplateType: "Weekday"}
	f := newFixture(t, api)

	if err := f.handle(t, schema.ReportRequest{ReportType: schema.ReportAVOverview, ReportID: 5}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.mailer.merges) != 0 || len(f.api.updatedOverviews) != 0 {
		t.Error("overview without subscribers was sent")
	}
	if f.committer.committed != 1 {
		t.Errorf("committed = %d", f.committer.committed)
	}
}

func TestMissingRecordsAndUnknownType(t *testing.T) {
	f := newFixture(t, newAPI())

	for _, request := range []schema.ReportRequest{
		{ReportType: schema.ReportContent, ReportID: 404},
		{ReportType: schema.ReportAVOverview, ReportID: 404},
		{ReportType: "Podcast", ReportID: 1},
	} {
		if err := f.handle(t, request); err != nil {
			t.Errorf("Handle(%+v): %v", request, err)
		}
	}
	if len(f.mailer.merges) != 0 || f.committer.committed != 3 {
		t.Errorf("merges = %d, committed = %d", len(f.mailer.merges), f.committer.committed)
	}
}
