// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"strconv"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/mmia-foundation/mmia/lib/schema"
)

const workOrderColumns = `id, work_type, status, content_id, requestor_id, description, note, updated_on, version`

func scanWorkOrder(stmt *sqlite.Stmt) *schema.WorkOrder {
	return &schema.WorkOrder{
		ID:          stmt.ColumnInt64(0),
		WorkType:    schema.WorkOrderType(stmt.ColumnText(1)),
		Status:      schema.WorkOrderStatus(stmt.ColumnText(2)),
		ContentID:   columnInt64Ptr(stmt, 3),
		RequestorID: columnInt64Ptr(stmt, 4),
		Description: stmt.ColumnText(5),
		Note:        stmt.ColumnText(6),
		UpdatedOn:   columnTime(stmt, 7),
		Version:     stmt.ColumnInt64(8),
	}
}

// FindWorkOrder returns the work order or nil when none exists.
func (s *Store) FindWorkOrder(ctx context.Context, id int64) (*schema.WorkOrder, error) {
	var found *schema.WorkOrder
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+workOrderColumns+` FROM work_orders WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = scanWorkOrder(stmt)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: finding work order %d: %w", id, err)
	}
	return found, nil
}

// AddWorkOrder inserts order. A zero ID is assigned by the database.
func (s *Store) AddWorkOrder(ctx context.Context, order *schema.WorkOrder) (*schema.WorkOrder, error) {
	added := *order
	added.Version = 0
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		var id any
		if added.ID != 0 {
			id = added.ID
		}
		err := sqlitex.Execute(conn,
			`INSERT INTO work_orders (`+workOrderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			&sqlitex.ExecOptions{Args: []any{
				id, string(added.WorkType), string(added.Status),
				int64Arg(added.ContentID), int64Arg(added.RequestorID),
				added.Description, added.Note, timeArg(added.UpdatedOn),
			}})
		if err != nil {
			return err
		}
		added.ID = conn.LastInsertRowID()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: adding work order: %w", err)
	}
	return &added, nil
}

// UpdateWorkOrder writes order, failing with a *ConflictError when
// order.Version is stale.
func (s *Store) UpdateWorkOrder(ctx context.Context, order *schema.WorkOrder) (*schema.WorkOrder, error) {
	updated := *order
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`UPDATE work_orders
			 SET work_type = ?, status = ?, content_id = ?, requestor_id = ?, description = ?, note = ?,
			     updated_on = ?, version = version + 1
			 WHERE id = ? AND version = ?`,
			&sqlitex.ExecOptions{Args: []any{
				string(updated.WorkType), string(updated.Status),
				int64Arg(updated.ContentID), int64Arg(updated.RequestorID),
				updated.Description, updated.Note, timeArg(updated.UpdatedOn),
				updated.ID, updated.Version,
			}})
		if err != nil {
			return fmt.Errorf("store: updating work order %d: %w", updated.ID, err)
		}
		if conn.Changes() == 0 {
			return &ConflictError{Table: "work_orders", Key: strconv.FormatInt(updated.ID, 10), Version: updated.Version}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	updated.Version++
	return &updated, nil
}
