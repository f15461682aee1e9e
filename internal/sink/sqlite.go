package sink

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/onewhl/kute/internal/model"
)

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

// BatchSize is the number of test methods written per transaction.
const BatchSize = 100

// SQLiteWriter stores records in a normalized SQLite database. Shared
// entities are inserted once; consecutive records usually repeat the same
// project, module and class, so the last inserted ID of each kind is
// remembered and skipped without a round trip.
type SQLiteWriter struct {
	conn    *sql.DB
	pending []*model.TestMethodInfo

	lastProject     int64
	lastModule      int64
	lastSourceClass int64
	lastTestClass   int64
}

// NewSQLiteWriter creates a fresh database at path, replacing any previous
// file so IDs from an earlier run cannot collide.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing previous database: %w", err)
		}
	}
	conn, err := openDB(path)
	if err != nil {
		return nil, err
	}
	w := &SQLiteWriter{conn: conn}
	w.resetCache()
	return w, nil
}

func openDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// one writer; also keeps PRAGMAs bound to the connection in use
	conn.SetMaxOpenConns(1)

	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return conn, nil
}

// WriteTestMethods queues methods and commits every full batch. A batch that
// fails is dropped from the queue after its records are retried one by one,
// so a bad record only loses itself.
func (s *SQLiteWriter) WriteTestMethods(methods []*model.TestMethodInfo) error {
	s.pending = append(s.pending, methods...)
	var errs []error
	for len(s.pending) >= BatchSize {
		batch := s.pending[:BatchSize]
		s.pending = s.pending[BatchSize:]
		if err := s.flush(batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close writes the final partial batch and closes the database.
func (s *SQLiteWriter) Close() error {
	var err error
	if len(s.pending) > 0 {
		batch := s.pending
		s.pending = nil
		err = s.flush(batch)
	}
	return errors.Join(err, s.conn.Close())
}

func (s *SQLiteWriter) flush(batch []*model.TestMethodInfo) error {
	if err := s.commit(batch); err == nil || len(batch) == 1 {
		return err
	}
	var errs []error
	for _, m := range batch {
		if err := s.commit([]*model.TestMethodInfo{m}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// commit writes batch in one transaction.
func (s *SQLiteWriter) commit(batch []*model.TestMethodInfo) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	for _, m := range batch {
		if err := s.insert(tx, m); err != nil {
			tx.Rollback()
			s.resetCache()
			return fmt.Errorf("inserting test method %s: %w", m.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.resetCache()
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// resetCache forgets the last inserted IDs, which may name rolled-back rows.
func (s *SQLiteWriter) resetCache() {
	s.lastProject, s.lastModule, s.lastSourceClass, s.lastTestClass = -1, -1, -1, -1
}

func (s *SQLiteWriter) insert(tx *sql.Tx, m *model.TestMethodInfo) error {
	c := m.Class
	if err := s.insertProject(tx, c.Project); err != nil {
		return err
	}
	if err := s.insertModule(tx, c.Module); err != nil {
		return err
	}

	var sourceClassID, sourceMethodID sql.NullInt64
	if sc := c.SourceClass; sc != nil {
		if err := s.insertModule(tx, sc.Module); err != nil {
			return err
		}
		if sc.ID != s.lastSourceClass {
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO source_classes (id, name, package, module_id, language, file) VALUES (?, ?, ?, ?, ?, ?)`,
				sc.ID, sc.Name, sc.Package, sc.Module.ID, sc.Language.String(), sc.File,
			); err != nil {
				return fmt.Errorf("inserting source class: %w", err)
			}
			s.lastSourceClass = sc.ID
		}
		sourceClassID = sql.NullInt64{Int64: sc.ID, Valid: true}
	}
	if sm := m.SourceMethod; sm != nil {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO source_methods (id, name, body, source_class_id) VALUES (?, ?, ?, ?)`,
			sm.ID, sm.Name, sm.Body, sm.SourceClass.ID,
		); err != nil {
			return fmt.Errorf("inserting source method: %w", err)
		}
		sourceMethodID = sql.NullInt64{Int64: sm.ID, Valid: true}
	}

	if c.ID != s.lastTestClass {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO test_classes (id, name, package, project_id, module_id, language, test_framework, source_class_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Package, c.Project.ID, c.Module.ID, c.Language.String(), c.Framework.String(), sourceClassID,
		); err != nil {
			return fmt.Errorf("inserting test class: %w", err)
		}
		s.lastTestClass = c.ID
	}

	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO test_methods (id, name, body, comment, display_name, is_parametrised, is_disabled, test_class_id, source_method_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Body, m.Comment, m.DisplayName, m.IsParametrised, m.IsDisabled, c.ID, sourceMethodID,
	); err != nil {
		return fmt.Errorf("inserting test method: %w", err)
	}
	return nil
}

func (s *SQLiteWriter) insertProject(tx *sql.Tx, p *model.ProjectInfo) error {
	if p.ID == s.lastProject {
		return nil
	}
	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO projects (id, name, build_system, path, revision) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.BuildSystem.String(), p.Path, p.Revision,
	); err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	s.lastProject = p.ID
	return nil
}

func (s *SQLiteWriter) insertModule(tx *sql.Tx, m *model.ModuleInfo) error {
	if m.ID == s.lastModule {
		return nil
	}
	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO modules (id, name, project_id) VALUES (?, ?, ?)`,
		m.ID, m.Name, m.Project.ID,
	); err != nil {
		return fmt.Errorf("inserting module: %w", err)
	}
	s.lastModule = m.ID
	return nil
}

const selectTestMethods = `
SELECT tm.id, tm.name, tm.body, tm.comment, tm.display_name, tm.is_parametrised, tm.is_disabled,
       tc.id, tc.name, tc.package, tc.language, tc.test_framework,
       p.id, p.name, p.build_system, p.path, p.revision,
       m.id, m.name,
       sc.id, sc.name, sc.package, sc.language, sc.file, scm.id, scm.name,
       sm.id, sm.name, sm.body
FROM test_methods tm
JOIN test_classes tc ON tc.id = tm.test_class_id
JOIN projects p ON p.id = tc.project_id
JOIN modules m ON m.id = tc.module_id
LEFT JOIN source_classes sc ON sc.id = tc.source_class_id
LEFT JOIN modules scm ON scm.id = sc.module_id
LEFT JOIN source_methods sm ON sm.id = tm.source_method_id
ORDER BY tm.id`

// ReadSQLite loads every test method from a database written by
// SQLiteWriter, ordered by ID.
func ReadSQLite(path string) ([]*model.TestMethodInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(selectTestMethods)
	if err != nil {
		return nil, fmt.Errorf("querying test methods: %w", err)
	}
	defer rows.Close()

	ec := newEntityCache()
	var out []*model.TestMethodInfo
	for rows.Next() {
		var (
			rec                           testMethodRecord
			scID, scmID, smID             sql.NullInt64
			scName, scPkg, scLang, scFile sql.NullString
			scmName, smName, smBody       sql.NullString
		)
		cr := &rec.ClassInfo
		if err := rows.Scan(
			&rec.ID, &rec.Name, &rec.Body, &rec.Comment, &rec.DisplayName, &rec.IsParametrised, &rec.IsDisabled,
			&cr.ID, &cr.Name, &cr.Package, &cr.Language, &cr.TestFramework,
			&cr.ProjectInfo.ID, &cr.ProjectInfo.Name, &cr.ProjectInfo.BuildSystem, &cr.ProjectInfo.Path, &cr.ProjectInfo.Revision,
			&cr.ModuleInfo.ID, &cr.ModuleInfo.Name,
			&scID, &scName, &scPkg, &scLang, &scFile, &scmID, &scmName,
			&smID, &smName, &smBody,
		); err != nil {
			return nil, fmt.Errorf("scanning test method: %w", err)
		}
		if scID.Valid {
			cr.SourceClass = &sourceClassRecord{
				ID:         scID.Int64,
				Name:       scName.String,
				Package:    scPkg.String,
				ModuleInfo: moduleRecord{ID: scmID.Int64, Name: scmName.String},
				Language:   scLang.String,
				File:       scFile.String,
			}
		}
		if smID.Valid {
			rec.SourceMethod = &sourceMethodRecord{ID: smID.Int64, Name: smName.String, Body: smBody.String}
		}
		m, err := ec.fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
