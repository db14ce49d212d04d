// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sqlstore is the SQL instance connector: pipe metadata in a
// migrated `mrsm_pipes` table and one physical target table per pipe,
// over sqlite3 or mysql.
package sqlstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/lrucache"
	"github.com/meerschaum/mrsm/pkg/schema"
)

var registerHookedDrivers sync.Once

// Store is one SQL instance connection.
type Store struct {
	typ    string
	label  string
	flavor string

	DB        *sqlx.DB
	stmtCache *sq.StmtCache
	cache     *lrucache.Cache

	pool int

	// Serialises add-column migrations per target.
	ddlMu sync.Mutex
}

// Factory builds sql connectors for the registry. Recognised attributes:
// flavor (sqlite|mysql), database (sqlite path), uri (mysql DSN or
// sqlite path), pool_size.
func Factory(typ, label string, attributes map[string]interface{}) (connectors.Connector, error) {
	flavor, _ := attributes["flavor"].(string)
	uri, _ := attributes["uri"].(string)
	database, _ := attributes["database"].(string)
	if flavor == "" {
		if uri != "" && looksLikeMySQL(uri) {
			flavor = "mysql"
		} else {
			flavor = "sqlite"
		}
	}
	dsn := database
	if dsn == "" {
		dsn = uri
	}
	if dsn == "" {
		return nil, fmt.Errorf("connector sql:%s has no database or uri", label)
	}

	pool := 8
	switch n := attributes["pool_size"].(type) {
	case float64:
		pool = int(n)
	case int:
		pool = n
	}

	return Connect(typ, label, flavor, dsn, pool)
}

func looksLikeMySQL(uri string) bool {
	_, err := mysql.ParseDSN(uri)
	return err == nil
}

// Connect opens the database, installs the tracing hooks, and migrates
// the metadata table.
func Connect(typ, label, flavor, dsn string, pool int) (*Store, error) {
	registerHookedDrivers.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
		sql.Register("mysqlWithHooks", sqlhooks.Wrap(&mysql.MySQLDriver{}, &Hooks{}))
	})

	var db *sqlx.DB
	var err error
	switch flavor {
	case "sqlite", "sqlite3":
		flavor = "sqlite"
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, schema.NewError(schema.KindConnector, "create sqlite dir", mkErr)
			}
		}
		db, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", dsn))
		if err == nil {
			// sqlite does not multithread. Having more than one connection
			// open would just mean waiting for locks.
			db.SetMaxOpenConns(1)
			pool = 1
		}
	case "mysql":
		db, err = sqlx.Open("mysqlWithHooks", fmt.Sprintf("%s?multiStatements=true&parseTime=true", dsn))
		if err == nil {
			db.SetConnMaxLifetime(time.Minute * 3)
			db.SetMaxOpenConns(pool)
			db.SetMaxIdleConns(pool)
		}
	default:
		return nil, schema.Errorf(schema.KindConfig, "connect sql",
			"unsupported database flavor %q", flavor)
	}
	if err != nil {
		return nil, schema.NewError(schema.KindConnector, "open database", err)
	}

	s := &Store{
		typ:       typ,
		label:     label,
		flavor:    flavor,
		DB:        db,
		stmtCache: sq.NewStmtCache(db.DB),
		cache:     lrucache.New(1024 * 1024),
		pool:      pool,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	log.Debugf("Connected sql:%s (%s)", label, flavor)
	return s, nil
}

func (s *Store) Type() string  { return s.typ }
func (s *Store) Label() string { return s.label }
func (s *Store) Keys() string  { return s.typ + ":" + s.label }
func (s *Store) PoolSize() int { return s.pool }

func (s *Store) Close() error { return s.DB.Close() }
