// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jcodagnone/terroir/spatial"
	"github.com/uber/h3-go/v4"
)

// Producer is one producer row of the catalog.
type Producer struct {
	ID                 int64         `json:"id"`
	Name               string        `json:"name"`
	WineCount          int           `json:"wine_count"`
	PrimarySubRegion   string        `json:"primary_sub_region"`
	Point              spatial.Point `json:"point"`
	LocationSource     string        `json:"location_source"`
	LocationConfidence float64       `json:"location_confidence"`
	PriceMin           *float64      `json:"price_min"`
	PriceAvg           *float64      `json:"price_avg"`
	PriceMax           *float64      `json:"price_max"`
	H3Res1             int64         `json:"-"`
	H3Res2             int64         `json:"-"`
	H3Res3             int64         `json:"-"`
	H3Res4             int64         `json:"-"`
	H3Res5             int64         `json:"-"`
	H3Res6             int64         `json:"-"`
	H3Res7             int64         `json:"-"`
	H3Res8             int64         `json:"-"`
}

func (p *Producer) computeH3() error {
	latLng := h3.NewLatLng(p.Point.Lat, p.Point.Lng)
	for res := 1; res <= 8; res++ {
		cell, err := h3.LatLngToCell(latLng, res)
		if err != nil {
			return fmt.Errorf("converting to h3 cell at res %d: %w", res, err)
		}

		switch res {
		case 1:
			p.H3Res1 = int64(cell)
		case 2:
			p.H3Res2 = int64(cell)
		case 3:
			p.H3Res3 = int64(cell)
		case 4:
			p.H3Res4 = int64(cell)
		case 5:
			p.H3Res5 = int64(cell)
		case 6:
			p.H3Res6 = int64(cell)
		case 7:
			p.H3Res7 = int64(cell)
		case 8:
			p.H3Res8 = int64(cell)
		}
	}

	return nil
}

// SubRegion is one sub-region row of the catalog.
type SubRegion struct {
	ID                 int64         `json:"id"`
	Name               string        `json:"name"`
	WineCount          int           `json:"wine_count"`
	ProducerCount      int           `json:"producer_count"`
	Point              spatial.Point `json:"point"`
	LocationSource     string        `json:"location_source"`
	LocationConfidence float64       `json:"location_confidence"`
	PriceAvg           *float64      `json:"price_avg"`
}

// Grape is one grape variety row of the catalog.
type Grape struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	WineCount      int           `json:"wine_count"`
	ProducerCount  int           `json:"producer_count"`
	Point          spatial.Point `json:"point"`
	DominantStyles []string      `json:"dominant_styles"`
	PriceAvg       *float64      `json:"price_avg"`
}

// Wine is one wine row of the catalog. Producer and SubRegion carry the
// joined names; wines whose scrape left them blank keep "".
type Wine struct {
	ID            int64         `json:"id"`
	Slug          string        `json:"slug"`
	Title         string        `json:"title"`
	Producer      string        `json:"producer"`
	SubRegion     string        `json:"sub_region"`
	Grape         string        `json:"grape"`
	PriceBRL      *float64      `json:"price_brl"`
	PriceBucket   string        `json:"price_bucket"`
	StyleKeywords []string      `json:"style_keywords"`
	BottleML      *int          `json:"bottle_ml"`
	Point         spatial.Point `json:"point"`
	MapSource     string        `json:"map_source"`
	MapConfidence float64       `json:"map_confidence"`
	URL           string        `json:"url"`
}

// WineFilter narrows ListWines. Zero values mean no filter.
type WineFilter struct {
	Producer  string
	SubRegion string
	Grape     string
	Bucket    string
	Limit     int
	Offset    int
}

// Stats counts the rows of every catalog table.
type Stats struct {
	Wines      int `json:"wines"`
	Producers  int `json:"producers"`
	SubRegions int `json:"sub_regions"`
	Grapes     int `json:"grapes"`
}

const (
	defaultWineLimit = 100
	maxWineLimit     = 1000
)

// Repository handles persistence of the wine catalog.
type Repository interface {
	// CreateSchema loads the spatial extension and creates the catalog tables
	CreateSchema() error

	// ReplaceSnapshot swaps the full catalog contents in one transaction
	ReplaceSnapshot(snapshot *Snapshot) error

	// UpsertProducer saves or updates a producer row keyed by name
	UpsertProducer(p *Producer) error

	// GetProducer returns a producer by name, or sql.ErrNoRows
	GetProducer(name string) (*Producer, error)

	// ListProducers returns all producers, most wines first
	ListProducers() ([]*Producer, error)

	// ListSubRegions returns all sub-regions, most wines first
	ListSubRegions() ([]*SubRegion, error)

	// ListGrapes returns all grapes, most wines first
	ListGrapes() ([]*Grape, error)

	// ListWines returns wines matching the filter, ordered by id
	ListWines(filter WineFilter) ([]*Wine, error)

	// Stats returns the row counts of every table
	Stats() (*Stats, error)

	// DB returns the underlying database connection
	DB() *sql.DB
}

type sqlCatalogRepository struct {
	db *sql.DB
}

// NewRepository creates a catalog repository over an open DuckDB handle.
func NewRepository(db *sql.DB) Repository {
	return &sqlCatalogRepository{db: db}
}

// DB returns the underlying database connection for advanced queries.
func (r *sqlCatalogRepository) DB() *sql.DB {
	return r.db
}

func (r *sqlCatalogRepository) CreateSchema() error {
	// DuckDB needs to load the spatial extension
	_, err := r.db.Exec(`INSTALL spatial; LOAD spatial;`)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		CREATE SEQUENCE IF NOT EXISTS producers_seq START 1;
		CREATE SEQUENCE IF NOT EXISTS sub_regions_seq START 1;
		CREATE SEQUENCE IF NOT EXISTS grapes_seq START 1;

		CREATE TABLE IF NOT EXISTS producers (
			id INTEGER PRIMARY KEY DEFAULT nextval('producers_seq'),
			name VARCHAR NOT NULL UNIQUE,
			wine_count INTEGER NOT NULL,
			primary_sub_region VARCHAR NOT NULL,
			point POINT_2D NOT NULL,
			location_source VARCHAR NOT NULL,
			location_confidence DOUBLE NOT NULL,
			price_min DOUBLE,
			price_avg DOUBLE,
			price_max DOUBLE,
			h3_res1 UBIGINT,
			h3_res2 UBIGINT,
			h3_res3 UBIGINT,
			h3_res4 UBIGINT,
			h3_res5 UBIGINT,
			h3_res6 UBIGINT,
			h3_res7 UBIGINT,
			h3_res8 UBIGINT
		);

		CREATE TABLE IF NOT EXISTS sub_regions (
			id INTEGER PRIMARY KEY DEFAULT nextval('sub_regions_seq'),
			name VARCHAR NOT NULL UNIQUE,
			wine_count INTEGER NOT NULL,
			producer_count INTEGER NOT NULL,
			point POINT_2D NOT NULL,
			location_source VARCHAR NOT NULL,
			location_confidence DOUBLE NOT NULL,
			price_avg DOUBLE
		);

		CREATE TABLE IF NOT EXISTS grapes (
			id INTEGER PRIMARY KEY DEFAULT nextval('grapes_seq'),
			name VARCHAR NOT NULL UNIQUE,
			wine_count INTEGER NOT NULL,
			producer_count INTEGER NOT NULL,
			point POINT_2D NOT NULL,
			dominant_styles VARCHAR NOT NULL,
			price_avg DOUBLE
		);

		CREATE TABLE IF NOT EXISTS wines (
			id BIGINT PRIMARY KEY,
			slug VARCHAR NOT NULL,
			title VARCHAR NOT NULL,
			producer_id INTEGER REFERENCES producers(id),
			sub_region_id INTEGER REFERENCES sub_regions(id),
			grape VARCHAR NOT NULL,
			price_brl DOUBLE,
			price_bucket VARCHAR NOT NULL,
			style_keywords VARCHAR NOT NULL,
			bottle_ml INTEGER,
			point POINT_2D NOT NULL,
			map_source VARCHAR NOT NULL,
			map_confidence DOUBLE NOT NULL,
			url VARCHAR NOT NULL
		);
	`)

	return err
}

// Style keyword tags are single words, so a comma-joined VARCHAR
// round-trips them.
func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(joined string) []string {
	if joined == "" {
		return []string{}
	}

	return strings.Split(joined, ",")
}

const insertProducerSQL = `
	INSERT INTO producers(
		name,
		wine_count,
		primary_sub_region,
		point,
		location_source,
		location_confidence,
		price_min,
		price_avg,
		price_max,
		h3_res1,
		h3_res2,
		h3_res3,
		h3_res4,
		h3_res5,
		h3_res6,
		h3_res7,
		h3_res8
	)
	VALUES (?, ?, ?, ST_Point(?, ?), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id
`

func producerInsertArgs(p *Producer) []any {
	return []any{
		p.Name,
		p.WineCount,
		p.PrimarySubRegion,
		p.Point.Lng,
		p.Point.Lat,
		p.LocationSource,
		p.LocationConfidence,
		p.PriceMin,
		p.PriceAvg,
		p.PriceMax,
		p.H3Res1,
		p.H3Res2,
		p.H3Res3,
		p.H3Res4,
		p.H3Res5,
		p.H3Res6,
		p.H3Res7,
		p.H3Res8,
	}
}

func (r *sqlCatalogRepository) UpsertProducer(p *Producer) error {
	if err := validateProducer(p); err != nil {
		return err
	}

	if err := p.computeH3(); err != nil {
		return err
	}

	existing, err := r.GetProducer(p.Name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if existing != nil {
		_, err = r.db.Exec(`
			UPDATE producers
			SET wine_count = ?, primary_sub_region = ?, point = ST_Point(?, ?),
			    location_source = ?, location_confidence = ?,
			    price_min = ?, price_avg = ?, price_max = ?,
			    h3_res1 = ?, h3_res2 = ?, h3_res3 = ?, h3_res4 = ?, h3_res5 = ?, h3_res6 = ?, h3_res7 = ?, h3_res8 = ?
			WHERE name = ?
		`,
			p.WineCount,
			p.PrimarySubRegion,
			p.Point.Lng,
			p.Point.Lat,
			p.LocationSource,
			p.LocationConfidence,
			p.PriceMin,
			p.PriceAvg,
			p.PriceMax,
			p.H3Res1,
			p.H3Res2,
			p.H3Res3,
			p.H3Res4,
			p.H3Res5,
			p.H3Res6,
			p.H3Res7,
			p.H3Res8,
			p.Name,
		)
		if err != nil {
			return err
		}

		p.ID = existing.ID

		return nil
	}

	return r.db.QueryRow(insertProducerSQL, producerInsertArgs(p)...).Scan(&p.ID)
}

func (r *sqlCatalogRepository) ReplaceSnapshot(snapshot *Snapshot) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	// A rollback after commit is a no-op.
	defer func() { _ = tx.Rollback() }()

	// Wines reference producers and sub-regions, so they go first.
	for _, table := range []string{"wines", "producers", "sub_regions", "grapes"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	producerIDs, err := insertProducers(tx, snapshot.Producers)
	if err != nil {
		return err
	}

	subRegionIDs, err := insertSubRegions(tx, snapshot.SubRegions)
	if err != nil {
		return err
	}

	if err := insertGrapes(tx, snapshot.Grapes); err != nil {
		return err
	}

	if err := insertWines(tx, snapshot.Wines, producerIDs, subRegionIDs); err != nil {
		return err
	}

	return tx.Commit()
}

func insertProducers(tx *sql.Tx, producers []*Producer) (map[string]int64, error) {
	stmt, err := tx.Prepare(insertProducerSQL)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make(map[string]int64, len(producers))

	for _, p := range producers {
		if err := p.computeH3(); err != nil {
			return nil, err
		}

		if err := stmt.QueryRow(producerInsertArgs(p)...).Scan(&p.ID); err != nil {
			return nil, fmt.Errorf("inserting producer %q: %w", p.Name, err)
		}

		ids[p.Name] = p.ID
	}

	return ids, nil
}

func insertSubRegions(tx *sql.Tx, subRegions []*SubRegion) (map[string]int64, error) {
	stmt, err := tx.Prepare(`
		INSERT INTO sub_regions(
			name,
			wine_count,
			producer_count,
			point,
			location_source,
			location_confidence,
			price_avg
		)
		VALUES (?, ?, ?, ST_Point(?, ?), ?, ?, ?)
		RETURNING id
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make(map[string]int64, len(subRegions))

	for _, s := range subRegions {
		err := stmt.QueryRow(
			s.Name,
			s.WineCount,
			s.ProducerCount,
			s.Point.Lng,
			s.Point.Lat,
			s.LocationSource,
			s.LocationConfidence,
			s.PriceAvg,
		).Scan(&s.ID)
		if err != nil {
			return nil, fmt.Errorf("inserting sub-region %q: %w", s.Name, err)
		}

		ids[s.Name] = s.ID
	}

	return ids, nil
}

func insertGrapes(tx *sql.Tx, grapes []*Grape) error {
	stmt, err := tx.Prepare(`
		INSERT INTO grapes(
			name,
			wine_count,
			producer_count,
			point,
			dominant_styles,
			price_avg
		)
		VALUES (?, ?, ?, ST_Point(?, ?), ?, ?)
		RETURNING id
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, g := range grapes {
		err := stmt.QueryRow(
			g.Name,
			g.WineCount,
			g.ProducerCount,
			g.Point.Lng,
			g.Point.Lat,
			joinTags(g.DominantStyles),
			g.PriceAvg,
		).Scan(&g.ID)
		if err != nil {
			return fmt.Errorf("inserting grape %q: %w", g.Name, err)
		}
	}

	return nil
}

func insertWines(tx *sql.Tx, wines []*Wine, producerIDs, subRegionIDs map[string]int64) error {
	stmt, err := tx.Prepare(`
		INSERT INTO wines(
			id,
			slug,
			title,
			producer_id,
			sub_region_id,
			grape,
			price_brl,
			price_bucket,
			style_keywords,
			bottle_ml,
			point,
			map_source,
			map_confidence,
			url
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ST_Point(?, ?), ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, w := range wines {
		var producerID *int64
		if id, ok := producerIDs[w.Producer]; ok {
			producerID = &id
		}

		var subRegionID *int64
		if id, ok := subRegionIDs[w.SubRegion]; ok {
			subRegionID = &id
		}

		_, err := stmt.Exec(
			w.ID,
			w.Slug,
			w.Title,
			producerID,
			subRegionID,
			w.Grape,
			w.PriceBRL,
			w.PriceBucket,
			joinTags(w.StyleKeywords),
			w.BottleML,
			w.Point.Lng,
			w.Point.Lat,
			w.MapSource,
			w.MapConfidence,
			w.URL,
		)
		if err != nil {
			return fmt.Errorf("inserting wine %d: %w", w.ID, err)
		}
	}

	return nil
}

var baseProducerSelect = `
	SELECT name, wine_count, primary_sub_region, point,
	       location_source, location_confidence,
	       price_min, price_avg, price_max, id
	FROM producers`

func scanProducer(row interface{ Scan(dest ...any) error }) (*Producer, error) {
	p := &Producer{}

	var priceMin, priceAvg, priceMax sql.NullFloat64

	err := row.Scan(
		&p.Name,
		&p.WineCount,
		&p.PrimarySubRegion,
		&p.Point,
		&p.LocationSource,
		&p.LocationConfidence,
		&priceMin,
		&priceAvg,
		&priceMax,
		&p.ID,
	)
	if err != nil {
		return nil, err
	}

	if priceMin.Valid {
		p.PriceMin = &priceMin.Float64
	}

	if priceAvg.Valid {
		p.PriceAvg = &priceAvg.Float64
	}

	if priceMax.Valid {
		p.PriceMax = &priceMax.Float64
	}

	return p, nil
}

func (r *sqlCatalogRepository) GetProducer(name string) (*Producer, error) {
	return scanProducer(r.db.QueryRow(baseProducerSelect+` WHERE name = ?`, name))
}

func (r *sqlCatalogRepository) ListProducers() ([]*Producer, error) {
	rows, err := r.db.Query(baseProducerSelect + ` ORDER BY wine_count DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var producers []*Producer

	for rows.Next() {
		p, err := scanProducer(rows)
		if err != nil {
			return nil, err
		}

		producers = append(producers, p)
	}

	return producers, rows.Err()
}

func (r *sqlCatalogRepository) ListSubRegions() ([]*SubRegion, error) {
	rows, err := r.db.Query(`
		SELECT id, name, wine_count, producer_count, point,
		       location_source, location_confidence, price_avg
		FROM sub_regions
		ORDER BY wine_count DESC, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subRegions []*SubRegion

	for rows.Next() {
		s := &SubRegion{}

		var priceAvg sql.NullFloat64

		err := rows.Scan(
			&s.ID,
			&s.Name,
			&s.WineCount,
			&s.ProducerCount,
			&s.Point,
			&s.LocationSource,
			&s.LocationConfidence,
			&priceAvg,
		)
		if err != nil {
			return nil, err
		}

		if priceAvg.Valid {
			s.PriceAvg = &priceAvg.Float64
		}

		subRegions = append(subRegions, s)
	}

	return subRegions, rows.Err()
}

func (r *sqlCatalogRepository) ListGrapes() ([]*Grape, error) {
	rows, err := r.db.Query(`
		SELECT id, name, wine_count, producer_count, point,
		       dominant_styles, price_avg
		FROM grapes
		ORDER BY wine_count DESC, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grapes []*Grape

	for rows.Next() {
		g := &Grape{}

		var styles string

		var priceAvg sql.NullFloat64

		err := rows.Scan(
			&g.ID,
			&g.Name,
			&g.WineCount,
			&g.ProducerCount,
			&g.Point,
			&styles,
			&priceAvg,
		)
		if err != nil {
			return nil, err
		}

		g.DominantStyles = splitTags(styles)

		if priceAvg.Valid {
			g.PriceAvg = &priceAvg.Float64
		}

		grapes = append(grapes, g)
	}

	return grapes, rows.Err()
}

func (r *sqlCatalogRepository) ListWines(filter WineFilter) ([]*Wine, error) {
	query := `
		SELECT w.id, w.slug, w.title,
		       COALESCE(p.name, ''), COALESCE(s.name, ''), w.grape,
		       w.price_brl, w.price_bucket, w.style_keywords, w.bottle_ml,
		       w.point, w.map_source, w.map_confidence, w.url
		FROM wines w
		LEFT JOIN producers p ON p.id = w.producer_id
		LEFT JOIN sub_regions s ON s.id = w.sub_region_id`

	var conds []string

	var args []any

	if filter.Producer != "" {
		conds = append(conds, "p.name = ?")
		args = append(args, filter.Producer)
	}

	if filter.SubRegion != "" {
		conds = append(conds, "s.name = ?")
		args = append(args, filter.SubRegion)
	}

	if filter.Grape != "" {
		conds = append(conds, "w.grape = ?")
		args = append(args, filter.Grape)
	}

	if filter.Bucket != "" {
		conds = append(conds, "w.price_bucket = ?")
		args = append(args, filter.Bucket)
	}

	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultWineLimit
	}

	if limit > maxWineLimit {
		limit = maxWineLimit
	}

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query += "\n\t\tORDER BY w.id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wines []*Wine

	for rows.Next() {
		w := &Wine{}

		var price sql.NullFloat64

		var bottleML sql.NullInt64

		var styles string

		err := rows.Scan(
			&w.ID,
			&w.Slug,
			&w.Title,
			&w.Producer,
			&w.SubRegion,
			&w.Grape,
			&price,
			&w.PriceBucket,
			&styles,
			&bottleML,
			&w.Point,
			&w.MapSource,
			&w.MapConfidence,
			&w.URL,
		)
		if err != nil {
			return nil, err
		}

		if price.Valid {
			w.PriceBRL = &price.Float64
		}

		if bottleML.Valid {
			ml := int(bottleML.Int64)
			w.BottleML = &ml
		}

		w.StyleKeywords = splitTags(styles)

		wines = append(wines, w)
	}

	return wines, rows.Err()
}

func (r *sqlCatalogRepository) Stats() (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		table string
		dst   *int
	}{
		{"wines", &stats.Wines},
		{"producers", &stats.Producers},
		{"sub_regions", &stats.SubRegions},
		{"grapes", &stats.Grapes},
	}

	for _, c := range counts {
		if err := r.db.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}

	return stats, nil
}
