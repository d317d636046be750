package results

import (
	"database/sql"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"serialed/internal/models"
	"serialed/pkg/config"
	"serialed/pkg/indexing"
)

// Store keeps per-image results in a SQLite database. Every image gets
// exactly one row, indexed or not, which is what makes interrupted runs
// resumable: an image already present is never processed again.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS images (
	image       TEXT PRIMARY KEY,
	indexed     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	score       REAL,
	orientation INTEGER,
	alpha       REAL,
	beta        REAL,
	gamma       REAL,
	center_x    REAL,
	center_y    REAL,
	scale       REAL,
	phase       TEXT,
	varied      TEXT,
	improved    INTEGER
);
CREATE TABLE IF NOT EXISTS observations (
	image     TEXT NOT NULL,
	h         INTEGER NOT NULL,
	k         INTEGER NOT NULL,
	l         INTEGER NOT NULL,
	intensity REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS observations_image ON observations(image);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Open opens or creates the database at path. Access is serialized over
// a single connection; SQLite does not like concurrent writers.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("results: opening database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&mode); err != nil {
		db.Close()
		return nil, fmt.Errorf("results: tuning database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("results: tuning database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("results: creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveConfig records the run configuration so later merges can rebuild
// the cell and resolution shell from the database alone.
func (s *Store) SaveConfig(cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("results: marshaling config: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO meta (key, value) VALUES ('config', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, string(data))
	if err != nil {
		return fmt.Errorf("results: saving config: %w", err)
	}
	return nil
}

// LoadConfig restores the configuration stored by SaveConfig. A database
// without one yields the defaults.
func (s *Store) LoadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	var data string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'config'`).Scan(&data)
	if err == sql.ErrNoRows {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("results: loading config: %w", err)
	}
	if err := yaml.Unmarshal([]byte(data), cfg); err != nil {
		return nil, fmt.Errorf("results: parsing stored config: %w", err)
	}
	return cfg, nil
}

// SaveImage stores the best solution for one image together with its
// extracted observations, replacing any earlier attempt.
func (s *Store) SaveImage(res indexing.Result, obs []models.Observation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("results: starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO images
		 (image, indexed, error, score, orientation, alpha, beta, gamma,
		  center_x, center_y, scale, phase, varied, improved)
		 VALUES (?, 1, '', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.Image, res.Score, res.Orientation, res.Alpha, res.Beta, res.Gamma,
		res.CenterX, res.CenterY, res.Scale, res.Phase, res.Varied, res.Improved)
	if err != nil {
		return fmt.Errorf("results: saving %s: %w", res.Image, err)
	}

	if _, err := tx.Exec(`DELETE FROM observations WHERE image = ?`, res.Image); err != nil {
		return fmt.Errorf("results: clearing observations for %s: %w", res.Image, err)
	}
	for _, ob := range obs {
		_, err := tx.Exec(
			`INSERT INTO observations (image, h, k, l, intensity) VALUES (?, ?, ?, ?, ?)`,
			res.Image, ob.H, ob.K, ob.L, ob.Intensity)
		if err != nil {
			return fmt.Errorf("results: saving observations for %s: %w", res.Image, err)
		}
	}
	return tx.Commit()
}

// SaveFailure records an image that could not be indexed, so a resumed
// run does not retry it.
func (s *Store) SaveFailure(image, reason string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO images (image, indexed, error) VALUES (?, 0, ?)`,
		image, reason)
	if err != nil {
		return fmt.Errorf("results: saving failure for %s: %w", image, err)
	}
	return nil
}

// Has reports whether the image was already processed, successfully or
// not.
func (s *Store) Has(image string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM images WHERE image = ?`, image).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("results: checking %s: %w", image, err)
	}
	return true, nil
}

// Results returns the stored solutions sorted by image name.
func (s *Store) Results() ([]indexing.Result, error) {
	rows, err := s.db.Query(
		`SELECT image, score, orientation, alpha, beta, gamma,
		        center_x, center_y, scale, phase, varied, improved
		 FROM images WHERE indexed = 1 ORDER BY image`)
	if err != nil {
		return nil, fmt.Errorf("results: querying solutions: %w", err)
	}
	defer rows.Close()

	var rs []indexing.Result
	for rows.Next() {
		var r indexing.Result
		err := rows.Scan(&r.Image, &r.Score, &r.Orientation, &r.Alpha, &r.Beta, &r.Gamma,
			&r.CenterX, &r.CenterY, &r.Scale, &r.Phase, &r.Varied, &r.Improved)
		if err != nil {
			return nil, fmt.Errorf("results: scanning solution: %w", err)
		}
		rs = append(rs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("results: reading solutions: %w", err)
	}
	return rs, nil
}

// Failures returns the names of images recorded as unindexable, sorted.
func (s *Store) Failures() ([]string, error) {
	rows, err := s.db.Query(`SELECT image FROM images WHERE indexed = 0 ORDER BY image`)
	if err != nil {
		return nil, fmt.Errorf("results: querying failures: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("results: scanning failure: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("results: reading failures: %w", err)
	}
	return names, nil
}

// Observations returns the stored reflection lists grouped per image and
// sorted by image name, ready for merging.
func (s *Store) Observations() ([]models.ImageSet, error) {
	rows, err := s.db.Query(
		`SELECT o.image, i.phase, i.score, o.h, o.k, o.l, o.intensity
		 FROM observations o JOIN images i ON i.image = o.image
		 ORDER BY o.image, o.rowid`)
	if err != nil {
		return nil, fmt.Errorf("results: querying observations: %w", err)
	}
	defer rows.Close()

	var sets []models.ImageSet
	pos := make(map[string]int)
	for rows.Next() {
		var (
			image string
			phase string
			score float64
			ob    models.Observation
		)
		if err := rows.Scan(&image, &phase, &score, &ob.H, &ob.K, &ob.L, &ob.Intensity); err != nil {
			return nil, fmt.Errorf("results: scanning observation: %w", err)
		}
		i, ok := pos[image]
		if !ok {
			i = len(sets)
			pos[image] = i
			sets = append(sets, models.ImageSet{Image: image, Phase: phase, Score: score})
		}
		sets[i].Observations = append(sets[i].Observations, ob)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("results: reading observations: %w", err)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Image < sets[j].Image })
	return sets, nil
}
