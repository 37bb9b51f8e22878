// Package sqlite persists the hazard registry in a SQLite database so
// operators can curate cameras without shipping a new JSON file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens the database at path. ":memory:" is limited to one connection
// so every query sees the same database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open hazard db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open hazard db: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations. An up-to-date schema is not an error.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}
	// m is not closed: closing it would close db.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// LoadHazards returns every stored hazard in insertion order. The result is
// not validated; pass it to registry.Load.
func LoadHazards(ctx context.Context, db *sql.DB) ([]domain.HazardPoint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, lat, lng, speed_limit, road_name, country, kind
		FROM hazards
		ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query hazards: %w", err)
	}
	defer rows.Close()

	var points []domain.HazardPoint
	for rows.Next() {
		var (
			p       domain.HazardPoint
			country string
			kind    string
		)
		if err := rows.Scan(&p.ID, &p.Location.Lat, &p.Location.Lng, &p.SpeedLimit, &p.RoadName, &country, &kind); err != nil {
			return nil, fmt.Errorf("scan hazard: %w", err)
		}
		p.Country = domain.Country(country)
		p.Kind = domain.HazardKind(kind)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hazards: %w", err)
	}
	return points, nil
}

// SaveHazards inserts points, replacing any stored hazard with the same id.
// Existing hazards keep their position in the load order. All points are
// written in one transaction.
func SaveHazards(ctx context.Context, db *sql.DB, points []domain.HazardPoint) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin hazard save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hazards (id, lat, lng, speed_limit, road_name, country, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			lat         = excluded.lat,
			lng         = excluded.lng,
			speed_limit = excluded.speed_limit,
			road_name   = excluded.road_name,
			country     = excluded.country,
			kind        = excluded.kind,
			updated_at  = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("prepare hazard upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		kind := p.Kind
		if kind == "" {
			kind = domain.KindFixed
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Location.Lat, p.Location.Lng, p.SpeedLimit, p.RoadName, string(p.Country), string(kind),
		); err != nil {
			return fmt.Errorf("save hazard %q: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit hazard save: %w", err)
	}
	return nil
}
