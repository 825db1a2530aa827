package geofile

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crossborder-kde/internal/model"
)

const geometryColumn = "geom"

const schema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system');
`

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "geofile: open %s", path)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// WriteGeoPackage replaces the file at path with a GeoPackage holding t.
func WriteGeoPackage(ctx context.Context, path string, t Table) error {
	if t.Name == "" {
		return eris.New("geofile: table name is required")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "geofile: remove %s", path)
	}
	db, err := open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, pragma := range []string{
		"PRAGMA application_id=1196444487",
		"PRAGMA user_version=10200",
		"PRAGMA journal_mode=DELETE",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return eris.Wrapf(err, "geofile: exec %s", pragma)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "geofile: begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return eris.Wrap(err, "geofile: create schema")
	}
	if t.EPSG > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition) VALUES (?, ?, 'EPSG', ?, 'undefined')`,
			fmt.Sprintf("EPSG:%d", t.EPSG), t.EPSG, t.EPSG,
		); err != nil {
			return eris.Wrapf(err, "geofile: insert srs %d", t.EPSG)
		}
	}

	cols := []string{`fid INTEGER PRIMARY KEY AUTOINCREMENT`, quote(geometryColumn) + ` MULTIPOLYGON`}
	for _, c := range t.Columns {
		cols = append(cols, quote(c.Name)+" "+c.Type)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quote(t.Name), strings.Join(cols, ", "))); err != nil {
		return eris.Wrapf(err, "geofile: create table %s", t.Name)
	}

	var minX, minY, maxX, maxY any
	if x0, y0, x1, y1, ok := envelopeOf(t.Features); ok {
		minX, minY, maxX, maxY = x0, y0, x1, y1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, last_change, min_x, min_y, max_x, max_y, srs_id) VALUES (?, 'features', ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Name, time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), minX, minY, maxX, maxY, srsID(t.EPSG),
	); err != nil {
		return eris.Wrap(err, "geofile: insert contents")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns VALUES (?, ?, 'MULTIPOLYGON', ?, 0, 0)`,
		t.Name, geometryColumn, srsID(t.EPSG),
	); err != nil {
		return eris.Wrap(err, "geofile: insert geometry column")
	}

	names := []string{quote(geometryColumn)}
	marks := []string{"?"}
	for _, c := range t.Columns {
		names = append(names, quote(c.Name))
		marks = append(marks, "?")
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(t.Name), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return eris.Wrap(err, "geofile: prepare insert")
	}
	defer stmt.Close()

	for i, f := range t.Features {
		blob, err := encodeBlob(f.Geometry, srsID(t.EPSG))
		if err != nil {
			return eris.Wrapf(err, "geofile: encode feature %d", i)
		}
		args := []any{blob}
		for _, c := range t.Columns {
			args = append(args, f.Attrs[c.Name])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "geofile: insert feature %d", i)
		}
	}
	return eris.Wrap(tx.Commit(), "geofile: commit")
}

// GeoPackageTables lists the feature tables of the GeoPackage at path in
// name order.
func GeoPackageTables(ctx context.Context, path string) ([]string, error) {
	if err := exists(path); err != nil {
		return nil, err
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return tables(ctx, db)
}

func tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY table_name`)
	if err != nil {
		return nil, eris.Wrap(err, "geofile: list tables")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "geofile: scan table name")
		}
		out = append(out, name)
	}
	return out, eris.Wrap(rows.Err(), "geofile: iterate tables")
}

// ReadGeoPackage loads a feature table. An empty name selects the first
// feature table. A missing file wraps model.ErrDataAbsent.
func ReadGeoPackage(ctx context.Context, path, name string) (*Table, error) {
	if err := exists(path); err != nil {
		return nil, err
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if name == "" {
		names, err := tables(ctx, db)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, eris.Wrapf(model.ErrDataAbsent, "geofile: no feature table in %s", path)
		}
		name = names[0]
	}

	var geomCol string
	var srs int
	err = db.QueryRowContext(ctx,
		`SELECT column_name, srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, name,
	).Scan(&geomCol, &srs)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrDataAbsent, "geofile: table %s not found in %s", name, path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "geofile: geometry column of %s", name)
	}

	t := &Table{Name: name, EPSG: srs}
	var org string
	var orgID int
	if err := db.QueryRowContext(ctx,
		`SELECT organization, organization_coordsys_id FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, srs,
	).Scan(&org, &orgID); err == nil && strings.EqualFold(org, "EPSG") {
		t.EPSG = orgID
	}

	cols, err := columns(ctx, db, name, geomCol)
	if err != nil {
		return nil, err
	}
	t.Columns = cols

	names := []string{quote(geomCol)}
	for _, c := range cols {
		names = append(names, quote(c.Name))
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(names, ", "), quote(name)))
	if err != nil {
		return nil, eris.Wrapf(err, "geofile: select %s", name)
	}
	defer rows.Close()

	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrapf(err, "geofile: scan %s", name)
		}
		f := Feature{Attrs: make(map[string]any, len(cols))}
		if blob, ok := vals[0].([]byte); ok && len(blob) > 0 {
			p, _, err := decodeBlob(blob)
			if err != nil {
				return nil, eris.Wrapf(err, "geofile: feature %d of %s", len(t.Features), name)
			}
			f.Geometry = p
		}
		for i, c := range cols {
			v := vals[i+1]
			if b, ok := v.([]byte); ok && c.Type == TypeText {
				v = string(b)
			}
			f.Attrs[c.Name] = v
		}
		t.Features = append(t.Features, f)
	}
	return t, eris.Wrapf(rows.Err(), "geofile: iterate %s", name)
}

func columns(ctx context.Context, db *sql.DB, table, geomCol string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quote(table)))
	if err != nil {
		return nil, eris.Wrapf(err, "geofile: table info %s", table)
	}
	defer rows.Close()

	var out []Column
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, eris.Wrap(err, "geofile: scan column")
		}
		if pk > 0 || name == geomCol {
			continue
		}
		out = append(out, Column{Name: name, Type: affinity(typ)})
	}
	return out, eris.Wrap(rows.Err(), "geofile: iterate columns")
}

// affinity folds declared column types onto the three types this package
// writes.
func affinity(declared string) string {
	d := strings.ToUpper(declared)
	switch {
	case strings.Contains(d, "INT"):
		return TypeInteger
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return TypeReal
	default:
		return TypeText
	}
}

func srsID(epsg int) int {
	if epsg > 0 {
		return epsg
	}
	return -1
}

func exists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return eris.Wrapf(model.ErrDataAbsent, "geofile: %s does not exist", path)
		}
		return eris.Wrapf(err, "geofile: stat %s", path)
	}
	return nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
