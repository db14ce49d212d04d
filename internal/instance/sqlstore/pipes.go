// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/meerschaum/mrsm/internal/config"
	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
)

const pipesTable = "mrsm_pipes"

func (s *Store) target(pipe *schema.Pipe) string {
	return pipe.TargetName(config.Keys.MaxIdentifier)
}

func attributesCacheKey(pipe *schema.Pipe) string {
	return "attributes:" + pipe.KeysString()
}

func (s *Store) RegisterPipe(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple {
	if err := pipe.Parameters().ValidateTags(config.Keys.TagNegationPrefix); err != nil {
		return schema.FailErr(err)
	}
	raw, err := json.Marshal(pipe.Parameters())
	if err != nil {
		return schema.FailErr(schema.NewError(schema.KindInternal, "marshal parameters", err))
	}

	res, err := sq.Insert(pipesTable).
		Columns("connector_keys", "metric_key", "location_key", "parameters").
		Values(pipe.Connector, pipe.Metric, pipe.Location, string(raw)).
		RunWith(s.DB.DB).ExecContext(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return schema.Fail("pipe %s is already registered", pipe)
		}
		return schema.FailErr(classify(err, "register pipe"))
	}
	if id, err := res.LastInsertId(); err == nil {
		pipe.ID = id
	}
	return schema.Succeed("registered %s", pipe)
}

func (s *Store) EditPipe(ctx context.Context, pipe *schema.Pipe, patch bool) schema.SuccessTuple {
	current, err := s.GetPipeAttributes(ctx, pipe)
	if err != nil {
		return schema.FailErr(err)
	}

	oldTarget := schema.TruncateTarget(current.Target(), config.Keys.MaxIdentifier)
	params := pipe.Parameters()
	if patch {
		merged := schema.NewPipe(pipe.Connector, pipe.Metric, pipe.Location, pipe.Instance)
		merged.SetParameters(current)
		merged.PatchParameters(params)
		params = merged.Parameters()
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return schema.FailErr(schema.NewError(schema.KindInternal, "marshal parameters", err))
	}
	if _, err := sq.Update(pipesTable).
		Set("parameters", string(raw)).
		Where(s.pipeWhere(pipe)).
		RunWith(s.DB.DB).ExecContext(ctx); err != nil {
		return schema.FailErr(classify(err, "edit pipe"))
	}
	s.cache.Del(attributesCacheKey(pipe))

	// Renaming the target moves the physical table with it.
	newTarget := schema.TruncateTarget(params.Target(), config.Keys.MaxIdentifier)
	if oldTarget != "" && newTarget != "" && oldTarget != newTarget {
		if exists, _ := s.tableExists(ctx, oldTarget); exists {
			rename := fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
				s.quoteIdent(oldTarget), s.quoteIdent(newTarget))
			if _, err := s.DB.ExecContext(ctx, rename); err != nil {
				return schema.FailErr(classify(err, "rename target"))
			}
			log.Infof("Renamed target %s to %s for %s", oldTarget, newTarget, pipe)
		}
	}
	return schema.Succeed("edited %s", pipe)
}

func (s *Store) DeletePipe(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple {
	if drop := s.DropPipe(ctx, pipe); !drop.Ok {
		log.Warnf("Could not drop target while deleting %s: %s", pipe, drop.Msg)
	}
	res, err := sq.Delete(pipesTable).
		Where(s.pipeWhere(pipe)).
		RunWith(s.DB.DB).ExecContext(ctx)
	if err != nil {
		return schema.FailErr(classify(err, "delete pipe"))
	}
	s.cache.Del(attributesCacheKey(pipe))
	if n, _ := res.RowsAffected(); n == 0 {
		return schema.Fail("pipe %s is not registered", pipe)
	}
	pipe.ID = 0
	return schema.Succeed("deleted %s", pipe)
}

func (s *Store) GetPipeID(ctx context.Context, pipe *schema.Pipe) (int64, error) {
	var id int64
	err := sq.Select("pipe_id").From(pipesTable).
		Where(s.pipeWhere(pipe)).
		RunWith(s.stmtCache).QueryRowContext(ctx).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classify(err, "get pipe id")
	}
	return id, nil
}

func (s *Store) GetPipeAttributes(ctx context.Context, pipe *schema.Pipe) (schema.Parameters, error) {
	cacheKey := attributesCacheKey(pipe)
	if cached := s.cache.Get(cacheKey); cached != nil {
		return cached.(schema.Parameters), nil
	}

	var raw sql.NullString
	err := sq.Select("parameters").From(pipesTable).
		Where(s.pipeWhere(pipe)).
		RunWith(s.stmtCache).QueryRowContext(ctx).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, schema.Errorf(schema.KindConfig, "get pipe attributes",
			"pipe %s is not registered", pipe)
	}
	if err != nil {
		return nil, classify(err, "get pipe attributes")
	}

	params := schema.Parameters{}
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &params); err != nil {
			return nil, schema.NewError(schema.KindInternal, "decode parameters", err)
		}
	}
	s.cache.Put(cacheKey, params, len(raw.String), time.Hour)
	return params, nil
}

func (s *Store) pipeWhere(pipe *schema.Pipe) sq.Eq {
	return sq.Eq{
		"connector_keys": pipe.Connector,
		"metric_key":     pipe.Metric,
		"location_key":   pipe.Location,
	}
}
