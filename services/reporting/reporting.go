// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package reporting generates report and AV overview emails and
// records each edition sent.
package reporting

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/schema"
	"github.com/mmia-foundation/mmia/render"
	"github.com/mmia-foundation/mmia/services/delivery"
	"github.com/mmia-foundation/mmia/store"
)

// API is the part of the data API the service uses.
type API interface {
	GetReport(ctx context.Context, id int64) (*schema.Report, error)
	FindContentForReport(ctx context.Context, reportID int64) (map[string][]schema.Content, error)
	GetReportInstance(ctx context.Context, id int64) (*schema.ReportInstance, error)
	GetReportInstanceContent(ctx context.Context, id int64) ([]schema.ReportInstanceContent, error)
	AddReportInstance(ctx context.Context, instance *schema.ReportInstance) (*schema.ReportInstance, error)
	UpdateReportInstance(ctx context.Context, instance *schema.ReportInstance) (*schema.ReportInstance, error)
	GetAVOverviewInstance(ctx context.Context, id int64) (*schema.AVOverviewInstance, error)
	GetAVOverviewTemplate(ctx context.Context, templateType string) (*schema.AVOverviewTemplate, error)
	UpdateAVOverviewInstance(ctx context.Context, instance *schema.AVOverviewInstance) (*schema.AVOverviewInstance, error)
	GetImageFile(ctx context.Context, contentID int64) ([]byte, error)
}

// Fallback definitions for reports without a template.
const (
	reportTemplate     = "report"
	avOverviewTemplate = "av-overview"
)

// ReportData is what report templates render.
type ReportData struct {
	Report         *schema.Report
	Sections       []Section
	ViewContentURL string
	Now            time.Time
}

// Section is one report section with its content in sort order.
type Section struct {
	schema.ReportSection
	Content []Item
}

// Item is content placed in a section.
type Item struct {
	*schema.Content
	SortOrder int
	// Image is the base64 image for image content in sections that
	// show images.
	Image string
}

// OverviewData is what AV overview templates render.
type OverviewData struct {
	Instance *schema.AVOverviewInstance
	Sections []schema.AVOverviewSection
	Now      time.Time
}

// Strategy processes ReportRequest messages.
type Strategy struct {
	api            API
	sender         *delivery.Sender
	engine         *render.Engine
	definitions    render.Definitions
	viewContentURL string
	clock          clock.Clock
}

// NewStrategy returns the reporting strategy.
func NewStrategy(api API, sender *delivery.Sender, engine *render.Engine, definitions render.Definitions, viewContentURL string, clk clock.Clock) *Strategy {
	return &Strategy{
		api:            api,
		sender:         sender,
		engine:         engine,
		definitions:    definitions,
		viewContentURL: viewContentURL,
		clock:          clk,
	}
}

// CheckOwnership always proceeds.
func (s *Strategy) CheckOwnership(context.Context, *consumer.Message[schema.ReportRequest]) (consumer.Ownership, error) {
	return consumer.Proceed(), nil
}

// UpdateStatus reports no work order.
func (s *Strategy) UpdateStatus(context.Context, *consumer.Message[schema.ReportRequest], schema.WorkOrderStatus) (consumer.Transition, error) {
	return consumer.TransitionAbsent, nil
}

// PerformAction generates and sends the requested report.
func (s *Strategy) PerformAction(ctx context.Context, message *consumer.Message[schema.ReportRequest]) error {
	request := &message.Value
	logger := message.Logger.With("report_type", request.ReportType, "report_id", request.ReportID)

	switch request.ReportType {
	case schema.ReportContent, "":
		if request.ReportInstanceID != nil && !request.GenerateInstance {
			instance, err := s.api.GetReportInstance(ctx, *request.ReportInstanceID)
			if err != nil {
				return fmt.Errorf("fetching report instance %d: %w", *request.ReportInstanceID, err)
			}
			if instance == nil {
				logger.Warn("report instance does not exist", "instance_id", *request.ReportInstanceID)
				return nil
			}
			return s.sendInstance(ctx, logger, request, instance)
		}
		report, err := s.api.GetReport(ctx, request.ReportID)
		if err != nil {
			return fmt.Errorf("fetching report %d: %w", request.ReportID, err)
		}
		if report == nil {
			logger.Warn("report does not exist")
			return nil
		}
		return s.generate(ctx, logger, request, report)

	case schema.ReportAVOverview:
		instance, err := s.api.GetAVOverviewInstance(ctx, request.ReportID)
		if err != nil {
			return fmt.Errorf("fetching AV overview instance %d: %w", request.ReportID, err)
		}
		if instance == nil {
			logger.Warn("AV overview instance does not exist")
			return nil
		}
		return s.sendOverview(ctx, logger, request, instance)
	}
	return consumer.Skip("report type %q is not supported", request.ReportType)
}

// generate builds a new instance of report from current content,
// records it, sends it and stores the response.
func (s *Strategy) generate(ctx context.Context, logger *slog.Logger, request *schema.ReportRequest, report *schema.Report) error {
	found, err := s.api.FindContentForReport(ctx, report.ID)
	if err != nil {
		return fmt.Errorf("finding content for report %d: %w", report.ID, err)
	}

	sections := make([]Section, 0, len(report.Sections))
	var placed []schema.ReportInstanceContent
	for _, reportSection := range sortedSections(report.Sections) {
		section := Section{ReportSection: reportSection}
		for i := range found[reportSection.Name] {
			content := &found[reportSection.Name][i]
			section.Content = append(section.Content, Item{Content: content, SortOrder: i})
			placed = append(placed, schema.ReportInstanceContent{
				ContentID: content.ID, SectionName: reportSection.Name, SortOrder: i,
			})
		}
		sections = append(sections, section)
	}
	if err := s.attachImages(ctx, sections); err != nil {
		return err
	}

	subject, body, err := s.render(report, sections)
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	instance, err := s.api.AddReportInstance(ctx, &schema.ReportInstance{
		ReportID:    report.ID,
		OwnerID:     request.RequestorID,
		Status:      schema.ReportPending,
		PublishedOn: &now,
		Subject:     subject,
		Body:        body,
		Content:     placed,
	})
	if err != nil {
		return fmt.Errorf("adding instance of report %d: %w", report.ID, err)
	}
	if instance == nil {
		return fmt.Errorf("adding instance of report %d: no instance returned", report.ID)
	}

	return s.deliver(ctx, logger, request, report, instance, subject, body)
}

// sendInstance sends an existing instance with the content it was
// generated with.
func (s *Strategy) sendInstance(ctx context.Context, logger *slog.Logger, request *schema.ReportRequest, instance *schema.ReportInstance) error {
	report := instance.Report
	if report == nil {
		return consumer.Skip("report instance %d does not include its report", instance.ID)
	}
	placed, err := s.api.GetReportInstanceContent(ctx, instance.ID)
	if err != nil {
		return fmt.Errorf("fetching content of report instance %d: %w", instance.ID, err)
	}

	byName := make(map[string]int, len(report.Sections))
	sections := make([]Section, 0, len(report.Sections))
	for _, reportSection := range sortedSections(report.Sections) {
		byName[reportSection.Name] = len(sections)
		sections = append(sections, Section{ReportSection: reportSection})
	}
	for _, entry := range placed {
		index, ok := byName[entry.SectionName]
		if !ok {
			return consumer.Skip("report instance %d places content in unknown section %q", instance.ID, entry.SectionName)
		}
		if entry.Content == nil {
			continue
		}
		sections[index].Content = append(sections[index].Content, Item{Content: entry.Content, SortOrder: entry.SortOrder})
	}
	for i := range sections {
		sort.SliceStable(sections[i].Content, func(a, b int) bool {
			return sections[i].Content[a].SortOrder < sections[i].Content[b].SortOrder
		})
	}
	if err := s.attachImages(ctx, sections); err != nil {
		return err
	}

	subject, body, err := s.render(report, sections)
	if err != nil {
		return err
	}
	instance.Subject = subject
	instance.Body = body
	if instance.PublishedOn == nil {
		now := s.clock.Now().UTC()
		instance.PublishedOn = &now
	}
	return s.deliver(ctx, logger, request, report, instance, subject, body)
}

// deliver sends the rendered report and records the response on
// instance.
func (s *Strategy) deliver(ctx context.Context, logger *slog.Logger, request *schema.ReportRequest, report *schema.Report, instance *schema.ReportInstance, subject, body string) error {
	response, err := s.sender.Send(ctx, delivery.Email{
		Kind:        store.DeliveryReport,
		RecordID:    instance.ID,
		Subject:     subject,
		Body:        body,
		Recipients:  reportRecipients(report.Subscribers),
		To:          request.To,
		Tag:         fmt.Sprintf("%s-%d", report.Name, report.ID),
		RequestorID: request.RequestorID,
	})
	if err != nil {
		return err
	}
	if response == nil {
		logger.Warn("report has no recipients", "instance_id", instance.ID)
		return nil
	}

	now := s.clock.Now().UTC()
	instance.Response = response
	instance.SentOn = &now
	instance.Status = schema.ReportCompleted
	instance.Report = nil
	instance.Content = nil
	if _, err := s.api.UpdateReportInstance(ctx, instance); err != nil {
		return fmt.Errorf("updating report instance %d: %w", instance.ID, err)
	}
	logger.Info("report sent", "instance_id", instance.ID)
	return nil
}

func (s *Strategy) sendOverview(ctx context.Context, logger *slog.Logger, request *schema.ReportRequest, instance *schema.AVOverviewInstance) error {
	overview, err := s.api.GetAVOverviewTemplate(ctx, instance.TemplateType)
	if err != nil {
		return fmt.Errorf("fetching AV overview template %s: %w", instance.TemplateType, err)
	}
	if overview == nil {
		return consumer.Skip("AV overview template %q does not exist", instance.TemplateType)
	}
	recipients := reportRecipients(overview.Subscribers)
	if len(recipients) == 0 && strings.TrimSpace(request.To) == "" {
		logger.Warn("AV overview has no subscribers", "template_type", instance.TemplateType)
		return nil
	}

	template, err := s.definitions.Resolve(overview.Template, avOverviewTemplate)
	if err != nil {
		return consumer.Skip("AV overview %s: %v", instance.TemplateType, err)
	}
	sections := append([]schema.AVOverviewSection(nil), instance.Sections...)
	sort.SliceStable(sections, func(a, b int) bool { return sections[a].SortOrder < sections[b].SortOrder })
	for i := range sections {
		items := append([]schema.AVOverviewSectionItem(nil), sections[i].Items...)
		sort.SliceStable(items, func(a, b int) bool { return items[a].SortOrder < items[b].SortOrder })
		sections[i].Items = items
	}
	subject, body, err := s.engine.Render("av-overview-"+instance.TemplateType, template, OverviewData{
		Instance: instance,
		Sections: sections,
		Now:      s.clock.Now(),
	})
	if err != nil {
		return consumer.Skip("rendering AV overview %s: %v", instance.TemplateType, err)
	}

	response, err := s.sender.Send(ctx, delivery.Email{
		Kind:        store.DeliveryAVOverview,
		RecordID:    instance.ID,
		Subject:     subject,
		Body:        body,
		Recipients:  recipients,
		To:          request.To,
		Tag:         fmt.Sprintf("%s-%d", instance.TemplateType, instance.ID),
		RequestorID: request.RequestorID,
	})
	if err != nil {
		return err
	}
	instance.Response = response
	instance.IsPublished = true
	if _, err := s.api.UpdateAVOverviewInstance(ctx, instance); err != nil {
		return fmt.Errorf("updating AV overview instance %d: %w", instance.ID, err)
	}
	logger.Info("AV overview sent", "instance_id", instance.ID)
	return nil
}

func (s *Strategy) render(report *schema.Report, sections []Section) (string, string, error) {
	template, err := s.definitions.Resolve(report.Template, reportTemplate)
	if err != nil {
		return "", "", consumer.Skip("report %d: %v", report.ID, err)
	}
	subject, body, err := s.engine.Render("report-"+strconv.FormatInt(report.ID, 10), template, ReportData{
		Report:         report,
		Sections:       sections,
		ViewContentURL: strings.TrimRight(s.viewContentURL, "/"),
		Now:            s.clock.Now(),
	})
	if err != nil {
		return "", "", consumer.Skip("rendering report %d: %v", report.ID, err)
	}
	return subject, body, nil
}

// attachImages fetches image data for image content in sections that
// show images.
func (s *Strategy) attachImages(ctx context.Context, sections []Section) error {
	for i := range sections {
		if !sections[i].ShowImages {
			continue
		}
		for j := range sections[i].Content {
			item := &sections[i].Content[j]
			if item.ContentType != schema.ContentImage {
				continue
			}
			data, err := s.api.GetImageFile(ctx, item.ID)
			if err != nil {
				return fmt.Errorf("fetching image for content %d: %w", item.ID, err)
			}
			if len(data) > 0 {
				item.Image = base64.StdEncoding.EncodeToString(data)
			}
		}
	}
	return nil
}

func sortedSections(sections []schema.ReportSection) []schema.ReportSection {
	sorted := append([]schema.ReportSection(nil), sections...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].SortOrder < sorted[b].SortOrder })
	return sorted
}

func reportRecipients(subscribers []schema.ReportSubscriber) []string {
	recipients := make([]string, 0, len(subscribers))
	for _, subscriber := range subscribers {
		if subscriber.IsSubscribed {
			recipients = append(recipients, subscriber.Email)
		}
	}
	return recipients
}
