// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sqlstore

import (
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/meerschaum/mrsm/pkg/schema"
)

//go:embed migrations/*
var migrationFiles embed.FS

// migrate brings the pipes metadata table to the current version.
func (s *Store) migrate() error {
	var m *migrate.Migrate

	switch s.flavor {
	case "sqlite":
		driver, err := migratesqlite.WithInstance(s.DB.DB, &migratesqlite.Config{})
		if err != nil {
			return schema.NewError(schema.KindConnector, "migrate metadata", err)
		}
		d, err := iofs.New(migrationFiles, "migrations/sqlite3")
		if err != nil {
			return schema.NewError(schema.KindInternal, "migrate metadata", err)
		}
		m, err = migrate.NewWithInstance("iofs", d, "sqlite3", driver)
		if err != nil {
			return schema.NewError(schema.KindConnector, "migrate metadata", err)
		}
	case "mysql":
		driver, err := migratemysql.WithInstance(s.DB.DB, &migratemysql.Config{})
		if err != nil {
			return schema.NewError(schema.KindConnector, "migrate metadata", err)
		}
		d, err := iofs.New(migrationFiles, "migrations/mysql")
		if err != nil {
			return schema.NewError(schema.KindInternal, "migrate metadata", err)
		}
		m, err = migrate.NewWithInstance("iofs", d, "mysql", driver)
		if err != nil {
			return schema.NewError(schema.KindConnector, "migrate metadata", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return schema.NewError(schema.KindConnector, "migrate metadata", err)
	}
	return nil
}
