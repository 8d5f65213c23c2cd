package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// relation is a child table holding one list-valued field of an entity.
// Every column besides owner_id and position is text.
type relation[T domain.Entity] struct {
	table   string
	columns []string
	rows    func(T) [][]string
	attach  func(*T, []string)
}

// codec maps one domain to its tables.
type codec[T domain.Entity] struct {
	domain     domain.Domain
	table      string
	keysTable  string
	columns    []string // entity columns, id first, page excluded
	values     func(T) []any
	scan       func(rowScanner) (T, error) // columns then page
	nameColumn string
	fields     map[string]string // filter field -> column
	relations  []relation[T]
}

// EntityStore implements driven.CacheStore for one domain.
type EntityStore[T domain.Entity] struct {
	db    *DB
	codec codec[T]
}

func newEntityStore[T domain.Entity](db *DB, c codec[T]) *EntityStore[T] {
	return &EntityStore[T]{db: db, codec: c}
}

// Ping checks if the database is reachable
func (s *EntityStore[T]) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// LastCreatedAt returns the newest remote key timestamp, or nil when the
// domain has no keys.
func (s *EntityStore[T]) LastCreatedAt(ctx context.Context) (*time.Time, error) {
	var n sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(created_at) FROM "+s.codec.keysTable).Scan(&n)
	if err != nil {
		return nil, err
	}
	if !n.Valid {
		return nil, nil
	}
	t := FromUnixNano(n.Int64)
	return &t, nil
}

// RemoteKey returns the key of an entity.
func (s *EntityStore[T]) RemoteKey(ctx context.Context, entityID int) (*domain.RemoteKey, error) {
	query := s.db.Rebind(`
		SELECT entity_id, prev_page, current_page, next_page, created_at
		FROM ` + s.codec.keysTable + `
		WHERE entity_id = ?
	`)

	var key domain.RemoteKey
	var prev, next sql.NullInt64
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, entityID).Scan(&key.EntityID, &prev, &key.CurrentPage, &next, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	key.PrevPage = IntPtr(prev)
	key.NextPage = IntPtr(next)
	key.CreatedAt = FromUnixNano(createdAt)
	return &key, nil
}

// ApplyPage writes a fetched page in one transaction.
func (s *EntityStore[T]) ApplyPage(ctx context.Context, batch *domain.PageBatch[T]) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if batch.Clear {
			if err := s.clear(ctx, tx); err != nil {
				return err
			}
		}
		if err := s.upsertKeys(ctx, tx, batch.Keys); err != nil {
			return err
		}
		if err := s.upsertEntities(ctx, tx, batch.Page, batch.Entities); err != nil {
			return err
		}
		return s.replaceRelations(ctx, tx, batch.Entities)
	})
}

func (s *EntityStore[T]) clear(ctx context.Context, tx *sql.Tx) error {
	tables := make([]string, 0, len(s.codec.relations)+2)
	for _, r := range s.codec.relations {
		tables = append(tables, r.table)
	}
	tables = append(tables, s.codec.keysTable, s.codec.table)
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func (s *EntityStore[T]) upsertKeys(ctx context.Context, tx *sql.Tx, keys []domain.RemoteKey) error {
	if len(keys) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, s.db.Rebind(`
		INSERT INTO `+s.codec.keysTable+` (entity_id, prev_page, current_page, next_page, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (entity_id) DO UPDATE SET
			prev_page = EXCLUDED.prev_page,
			current_page = EXCLUDED.current_page,
			next_page = EXCLUDED.next_page,
			created_at = EXCLUDED.created_at
	`))
	if err != nil {
		return fmt.Errorf("prepare key upsert: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k.EntityID, NullInt(k.PrevPage), k.CurrentPage, NullInt(k.NextPage), UnixNano(k.CreatedAt)); err != nil {
			return fmt.Errorf("upsert key %d: %w", k.EntityID, err)
		}
	}
	return nil
}

func (s *EntityStore[T]) upsertEntities(ctx context.Context, tx *sql.Tx, page int, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	cols := append(append([]string{}, s.codec.columns...), "page")
	updates := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		updates = append(updates, c+" = EXCLUDED."+c)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		s.codec.table, strings.Join(cols, ", "), placeholders(len(cols)), strings.Join(updates, ", "),
	)

	stmt, err := tx.PrepareContext(ctx, s.db.Rebind(query))
	if err != nil {
		return fmt.Errorf("prepare %s upsert: %w", s.codec.table, err)
	}
	defer stmt.Close()

	for _, e := range entities {
		args := append(s.codec.values(e), page)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert %s %d: %w", s.codec.domain, e.EntityID(), err)
		}
	}
	return nil
}

// replaceRelations deletes an owner's rows and inserts the fresh ones, so a
// relation always reflects the most recent fetch.
func (s *EntityStore[T]) replaceRelations(ctx context.Context, tx *sql.Tx, entities []T) error {
	for _, r := range s.codec.relations {
		del, err := tx.PrepareContext(ctx, s.db.Rebind("DELETE FROM "+r.table+" WHERE owner_id = ?"))
		if err != nil {
			return fmt.Errorf("prepare %s delete: %w", r.table, err)
		}
		cols := append([]string{"owner_id", "position"}, r.columns...)
		ins, err := tx.PrepareContext(ctx, s.db.Rebind(fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)", r.table, strings.Join(cols, ", "), placeholders(len(cols)),
		)))
		if err != nil {
			del.Close()
			return fmt.Errorf("prepare %s insert: %w", r.table, err)
		}

		err = func() error {
			defer del.Close()
			defer ins.Close()
			for _, e := range entities {
				if _, err := del.ExecContext(ctx, e.EntityID()); err != nil {
					return fmt.Errorf("delete %s of %d: %w", r.table, e.EntityID(), err)
				}
				for pos, row := range r.rows(e) {
					args := make([]any, 0, len(row)+2)
					args = append(args, e.EntityID(), pos)
					for _, v := range row {
						args = append(args, v)
					}
					if _, err := ins.ExecContext(ctx, args...); err != nil {
						return fmt.Errorf("insert %s of %d: %w", r.table, e.EntityID(), err)
					}
				}
			}
			return nil
		}()
		if err != nil {
			return err
		}
	}
	return nil
}

// Query returns filtered entities ordered by page then id.
func (s *EntityStore[T]) Query(ctx context.Context, filter domain.Filter, offset, limit int) ([]T, error) {
	where, args, err := s.where(filter)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s, page FROM %s%s ORDER BY page ASC, id ASC",
		strings.Join(s.codec.columns, ", "), s.codec.table, where)
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	} else if offset > 0 {
		// SQLite only accepts OFFSET after a LIMIT
		if s.db.Driver() == DriverPostgres {
			query += " OFFSET ?"
		} else {
			query += " LIMIT -1 OFFSET ?"
		}
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, err := s.codec.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadRelations(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Count returns how many cached entities match the filter.
func (s *EntityStore[T]) Count(ctx context.Context, filter domain.Filter) (int, error) {
	where, args, err := s.where(filter)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, s.db.Rebind("SELECT COUNT(*) FROM "+s.codec.table+where), args...).Scan(&n)
	return n, err
}

// Boundary returns the first and last cached ids in fetch order.
func (s *EntityStore[T]) Boundary(ctx context.Context) (first, last *int, err error) {
	var f, l sql.NullInt64
	err = s.db.QueryRowContext(ctx, "SELECT id FROM "+s.codec.table+" ORDER BY page ASC, id ASC LIMIT 1").Scan(&f)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	err = s.db.QueryRowContext(ctx, "SELECT id FROM "+s.codec.table+" ORDER BY page DESC, id DESC LIMIT 1").Scan(&l)
	if err != nil {
		return nil, nil, err
	}
	return IntPtr(f), IntPtr(l), nil
}

// where builds the filter clause: a case-insensitive substring match on the
// name and case-insensitive equality on each categorical field, AND-combined.
func (s *EntityStore[T]) where(filter domain.Filter) (string, []any, error) {
	f := filter.Normalize()
	if err := f.Validate(s.codec.domain); err != nil {
		return "", nil, err
	}

	var conds []string
	var args []any
	if f.Query != "" {
		conds = append(conds, "LOWER("+s.codec.nameColumn+") LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(strings.ToLower(f.Query))+"%")
	}
	for _, field := range slices.Sorted(maps.Keys(f.Fields)) {
		col, ok := s.codec.fields[field]
		if !ok {
			return "", nil, fmt.Errorf("%w: %s cannot be filtered by %q", domain.ErrInvalidInput, s.codec.domain, field)
		}
		conds = append(conds, "LOWER("+col+") = ?")
		args = append(args, strings.ToLower(f.Fields[field]))
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// loadRelations attaches relation rows to items in one query per relation.
func (s *EntityStore[T]) loadRelations(ctx context.Context, items []T) error {
	if len(items) == 0 || len(s.codec.relations) == 0 {
		return nil
	}
	index := make(map[int]int, len(items))
	ids := make([]any, len(items))
	for i, it := range items {
		index[it.EntityID()] = i
		ids[i] = it.EntityID()
	}

	for _, r := range s.codec.relations {
		query := fmt.Sprintf("SELECT owner_id, %s FROM %s WHERE owner_id IN (%s) ORDER BY owner_id, position",
			strings.Join(r.columns, ", "), r.table, placeholders(len(ids)))
		rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), ids...)
		if err != nil {
			return fmt.Errorf("load %s: %w", r.table, err)
		}
		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var owner int
				vals := make([]string, len(r.columns))
				dest := make([]any, 0, len(vals)+1)
				dest = append(dest, &owner)
				for i := range vals {
					dest = append(dest, &vals[i])
				}
				if err := rows.Scan(dest...); err != nil {
					return err
				}
				if i, ok := index[owner]; ok {
					r.attach(&items[i], vals)
				}
			}
			return rows.Err()
		}()
		if err != nil {
			return fmt.Errorf("load %s: %w", r.table, err)
		}
	}
	return nil
}

// Verify the generic store satisfies the port for each domain.
var (
	_ driven.CacheStore[domain.Character] = (*EntityStore[domain.Character])(nil)
	_ driven.CacheStore[domain.Episode]   = (*EntityStore[domain.Episode])(nil)
	_ driven.CacheStore[domain.Location]  = (*EntityStore[domain.Location])(nil)
	_ driven.Pinger                       = (*EntityStore[domain.Location])(nil)
)

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
