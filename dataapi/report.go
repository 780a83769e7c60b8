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

// GetReport returns report id with its sections and subscribers, or nil
// when it does not exist.
func (c *Client) GetReport(ctx context.Context, id int64) (*schema.Report, error) {
	return findOne[schema.Report](ctx, c, fmt.Sprintf("/services/reports/%d", id), nil)
}

// FindContentForReport runs the report's section filters and returns
// the matching content keyed by section name.
func (c *Client) FindContentForReport(ctx context.Context, reportID int64) (map[string][]schema.Content, error) {
	sections := make(map[string][]schema.Content)
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/services/reports/%d/content", reportID), nil, &sections, nil); err != nil {
		return nil, err
	}
	return sections, nil
}

// GetReportInstance returns instance id including its report, or nil
// when it does not exist.
func (c *Client) GetReportInstance(ctx context.Context, id int64) (*schema.ReportInstance, error) {
	return findOne[schema.ReportInstance](ctx, c, fmt.Sprintf("/services/reports/instances/%d", id), nil)
}

// GetReportInstanceContent returns the content saved with instance id.
func (c *Client) GetReportInstanceContent(ctx context.Context, id int64) ([]schema.ReportInstanceContent, error) {
	var content []schema.ReportInstanceContent
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/services/reports/instances/%d/contents", id), nil, &content, nil); err != nil {
		return nil, err
	}
	return content, nil
}

// AddReportInstance saves a new report instance.
func (c *Client) AddReportInstance(ctx context.Context, instance *schema.ReportInstance) (*schema.ReportInstance, error) {
	var added schema.ReportInstance
	if err := c.call(ctx, http.MethodPost, "/services/reports/instances", instance, &added, nil); err != nil {
		return nil, err
	}
	return &added, nil
}

// UpdateReportInstance saves instance.
func (c *Client) UpdateReportInstance(ctx context.Context, instance *schema.ReportInstance) (*schema.ReportInstance, error) {
	var updated schema.ReportInstance
	if err := c.call(ctx, http.MethodPut, fmt.Sprintf("/services/reports/instances/%d", instance.ID), instance, &updated, nil); err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetAVOverviewInstance returns overview instance id, or nil when it
// does not exist.
func (c *Client) GetAVOverviewInstance(ctx context.Context, id int64) (*schema.AVOverviewInstance, error) {
	return findOne[schema.AVOverviewInstance](ctx, c, fmt.Sprintf("/services/reports/av/overviews/%d", id), nil)
}

// GetAVOverviewTemplate returns the template and subscribers for an
// overview template type, or nil when none is configured.
func (c *Client) GetAVOverviewTemplate(ctx context.Context, templateType string) (*schema.AVOverviewTemplate, error) {
	return findOne[schema.AVOverviewTemplate](ctx, c, "/services/reports/av/overviews/templates/"+url.PathEscape(templateType), nil)
}

// UpdateAVOverviewInstance saves instance.
func (c *Client) UpdateAVOverviewInstance(ctx context.Context, instance *schema.AVOverviewInstance) (*schema.AVOverviewInstance, error) {
	var updated schema.AVOverviewInstance
	if err := c.call(ctx, http.MethodPut, fmt.Sprintf("/services/reports/av/overviews/%d", instance.ID), instance, &updated, nil); err != nil {
		return nil, err
	}
	return &updated, nil
}
