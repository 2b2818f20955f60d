package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore exports frames into a SQLite database.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// Export writes one frame in a single transaction. Re-exporting a tick
// replaces its rows.
func (s *SQLiteStore) Export(ctx context.Context, frame Frame) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := writeFrame(ctx, tx, frame); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sqlite export tick %d: %w", frame.Tick, err)
	}
	return tx.Commit()
}

// treeColumns lists the trees table columns in the order treeRow and
// scanTree use. The first two form the primary key.
var treeColumns = []string{
	"tick", "id", "species", "x", "y", "z", "age",
	"stem_radius", "stem_height", "crown_radius", "crown_height", "root_radius", "root_depth",
	"leaf_volume", "branch_volume", "stem_volume", "cable_root_volume", "fine_root_volume", "total_volume",
	"r1", "r2",
	"above_resources", "below_resources", "available_resources",
	"w_stem_height", "w_crown_radius", "w_root_radius", "w_stem_radius",
	"growth", "inc_stem_height", "inc_crown_radius", "inc_root_radius", "inc_stem_radius",
	"above_c", "below_c", "substeps", "seeds", "dead", "nearest_node",
}

func treeRow(t *TreeRecord) []any {
	return []any{
		t.Tick, int64(t.ID), t.Species, t.X, t.Y, t.Z, t.Age,
		t.StemRadius, t.StemHeight, t.CrownRadius, t.CrownHeight, t.RootRadius, t.RootDepth,
		t.LeafVolume, t.BranchVolume, t.StemVolume, t.CableRootVolume, t.FineRootVolume, t.TotalVolume,
		t.RadialResistance, t.LateralResistance,
		t.AboveResources, t.BelowResources, t.AvailableResources,
		t.WeightStemHeight, t.WeightCrownRadius, t.WeightRootRadius, t.WeightStemRadius,
		t.Growth, t.IncStemHeight, t.IncCrownRadius, t.IncRootRadius, t.IncStemRadius,
		t.AboveCoefficient, t.BelowCoefficient, t.Substeps, t.Seeds, t.Dead, t.NearestNode,
	}
}

func scanTree(row *sql.Row, t *TreeRecord) error {
	var id int64
	err := row.Scan(
		&t.Tick, &id, &t.Species, &t.X, &t.Y, &t.Z, &t.Age,
		&t.StemRadius, &t.StemHeight, &t.CrownRadius, &t.CrownHeight, &t.RootRadius, &t.RootDepth,
		&t.LeafVolume, &t.BranchVolume, &t.StemVolume, &t.CableRootVolume, &t.FineRootVolume, &t.TotalVolume,
		&t.RadialResistance, &t.LateralResistance,
		&t.AboveResources, &t.BelowResources, &t.AvailableResources,
		&t.WeightStemHeight, &t.WeightCrownRadius, &t.WeightRootRadius, &t.WeightStemRadius,
		&t.Growth, &t.IncStemHeight, &t.IncCrownRadius, &t.IncRootRadius, &t.IncStemRadius,
		&t.AboveCoefficient, &t.BelowCoefficient, &t.Substeps, &t.Seeds, &t.Dead, &t.NearestNode,
	)
	t.ID = uint64(id)
	return err
}

func treeUpsertSQL() string {
	updates := make([]string, 0, len(treeColumns)-2)
	for _, c := range treeColumns[2:] {
		updates = append(updates, c+" = excluded."+c)
	}
	return "INSERT INTO trees (" + strings.Join(treeColumns, ", ") + ")\n" +
		"VALUES (" + strings.TrimSuffix(strings.Repeat("?, ", len(treeColumns)), ", ") + ")\n" +
		"ON CONFLICT(tick, id) DO UPDATE SET " + strings.Join(updates, ", ")
}

func writeFrame(ctx context.Context, tx *sql.Tx, frame Frame) error {
	treeStmt, err := tx.PrepareContext(ctx, treeUpsertSQL())
	if err != nil {
		return err
	}
	defer treeStmt.Close()

	for i := range frame.Trees {
		t := &frame.Trees[i]
		if _, err := treeStmt.ExecContext(ctx, treeRow(t)...); err != nil {
			return fmt.Errorf("tree %d: %w", t.ID, err)
		}
	}

	landStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO land (tick, node_id, x, y, z, salinity, above_ground_owner, below_ground_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tick, node_id) DO UPDATE SET
			salinity = excluded.salinity,
			above_ground_owner = excluded.above_ground_owner,
			below_ground_count = excluded.below_ground_count
	`)
	if err != nil {
		return err
	}
	defer landStmt.Close()

	for _, n := range frame.Land {
		if _, err := landStmt.ExecContext(ctx,
			n.Tick, n.NodeID, n.X, n.Y, n.Z, n.Salinity, n.Owner, n.BelowCount,
		); err != nil {
			return fmt.Errorf("location %d: %w", n.NodeID, err)
		}
	}

	st := frame.Stats
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stats (
			tick, sim_time, trees, avicennia, rhizophora, recruited, dropped, died, dead_total,
			stem_height_mean, crown_radius_mean, total_volume, above_c_mean, below_c_mean, clark_evans
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tick) DO UPDATE SET
			sim_time = excluded.sim_time,
			trees = excluded.trees,
			avicennia = excluded.avicennia,
			rhizophora = excluded.rhizophora,
			recruited = excluded.recruited,
			dropped = excluded.dropped,
			died = excluded.died,
			dead_total = excluded.dead_total,
			stem_height_mean = excluded.stem_height_mean,
			crown_radius_mean = excluded.crown_radius_mean,
			total_volume = excluded.total_volume,
			above_c_mean = excluded.above_c_mean,
			below_c_mean = excluded.below_c_mean,
			clark_evans = excluded.clark_evans
	`, frame.Tick, st.SimTime, st.Trees, st.Avicennia, st.Rhizophora, st.Recruited, st.Dropped, st.Died,
		st.DeadTotal, st.StemHeightMean, st.CrownRadiusMean, st.TotalVolume, st.AboveCMean, st.BelowCMean,
		st.ClarkEvans)
	return err
}

// TreeCount returns the number of tree rows stored for a tick.
func (s *SQLiteStore) TreeCount(ctx context.Context, tick int) (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}

	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trees WHERE tick = ?`, tick).Scan(&n)
	return n, err
}

// GetTree returns the stored row of one tree at a tick.
func (s *SQLiteStore) GetTree(ctx context.Context, tick int, id uint64) (TreeRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return TreeRecord{}, false, err
	}

	var t TreeRecord
	row := db.QueryRowContext(ctx,
		"SELECT "+strings.Join(treeColumns, ", ")+" FROM trees WHERE tick = ? AND id = ?", tick, int64(id))
	err = scanTree(row, &t)
	if errors.Is(err, sql.ErrNoRows) {
		return TreeRecord{}, false, nil
	}
	if err != nil {
		return TreeRecord{}, false, err
	}
	return t, true, nil
}

// GetStats returns the population stats stored for a tick.
func (s *SQLiteStore) GetStats(ctx context.Context, tick int) (PopulationStats, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return PopulationStats{}, false, err
	}

	st := PopulationStats{Tick: tick}
	err = db.QueryRowContext(ctx, `
		SELECT sim_time, trees, avicennia, rhizophora, recruited, dropped, died, dead_total,
			stem_height_mean, crown_radius_mean, total_volume, above_c_mean, below_c_mean, clark_evans
		FROM stats WHERE tick = ?
	`, tick).Scan(&st.SimTime, &st.Trees, &st.Avicennia, &st.Rhizophora, &st.Recruited, &st.Dropped,
		&st.Died, &st.DeadTotal, &st.StemHeightMean, &st.CrownRadiusMean, &st.TotalVolume,
		&st.AboveCMean, &st.BelowCMean, &st.ClarkEvans)
	if errors.Is(err, sql.ErrNoRows) {
		return PopulationStats{}, false, nil
	}
	if err != nil {
		return PopulationStats{}, false, err
	}
	return st, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trees (
			tick INTEGER NOT NULL,
			id INTEGER NOT NULL,
			species TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			age REAL NOT NULL,
			stem_radius REAL NOT NULL,
			stem_height REAL NOT NULL,
			crown_radius REAL NOT NULL,
			crown_height REAL NOT NULL,
			root_radius REAL NOT NULL,
			root_depth REAL NOT NULL,
			leaf_volume REAL NOT NULL,
			branch_volume REAL NOT NULL,
			stem_volume REAL NOT NULL,
			cable_root_volume REAL NOT NULL,
			fine_root_volume REAL NOT NULL,
			total_volume REAL NOT NULL,
			r1 REAL NOT NULL,
			r2 REAL NOT NULL,
			above_resources REAL NOT NULL,
			below_resources REAL NOT NULL,
			available_resources REAL NOT NULL,
			w_stem_height REAL NOT NULL,
			w_crown_radius REAL NOT NULL,
			w_root_radius REAL NOT NULL,
			w_stem_radius REAL NOT NULL,
			growth REAL NOT NULL,
			inc_stem_height REAL NOT NULL,
			inc_crown_radius REAL NOT NULL,
			inc_root_radius REAL NOT NULL,
			inc_stem_radius REAL NOT NULL,
			above_c REAL NOT NULL,
			below_c REAL NOT NULL,
			substeps INTEGER NOT NULL,
			seeds INTEGER NOT NULL,
			dead INTEGER NOT NULL,
			nearest_node INTEGER NOT NULL,
			PRIMARY KEY (tick, id)
		);
		CREATE TABLE IF NOT EXISTS land (
			tick INTEGER NOT NULL,
			node_id INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			salinity REAL NOT NULL,
			above_ground_owner REAL NOT NULL,
			below_ground_count REAL NOT NULL,
			PRIMARY KEY (tick, node_id)
		);
		CREATE TABLE IF NOT EXISTS stats (
			tick INTEGER PRIMARY KEY,
			sim_time REAL NOT NULL,
			trees INTEGER NOT NULL,
			avicennia INTEGER NOT NULL,
			rhizophora INTEGER NOT NULL,
			recruited INTEGER NOT NULL,
			dropped INTEGER NOT NULL,
			died INTEGER NOT NULL,
			dead_total INTEGER NOT NULL,
			stem_height_mean REAL NOT NULL,
			crown_radius_mean REAL NOT NULL,
			total_volume REAL NOT NULL,
			above_c_mean REAL NOT NULL,
			below_c_mean REAL NOT NULL,
			clark_evans REAL NOT NULL
		);
	`)
	return err
}
