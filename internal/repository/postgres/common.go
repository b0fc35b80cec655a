package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lootbox-hub/internal/repository"
)

var ErrNotFound = repository.ErrNotFound

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

type scanTarget interface {
	Scan(dest ...any) error
}

func normalizePagination(page repository.Pagination) (int32, int32) {
	limit := page.Limit
	offset := page.Offset

	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// filterClause accumulates AND-ed conditions with positional arguments.
type filterClause struct {
	conditions []string
	args       []any
}

// add appends a condition whose %d verbs all refer to value's position.
func (f *filterClause) add(condition string, value any) {
	f.args = append(f.args, value)
	pos := len(f.args)
	verbs := strings.Count(condition, "%d")
	positions := make([]any, verbs)
	for i := range positions {
		positions[i] = pos
	}
	f.conditions = append(f.conditions, fmt.Sprintf(condition, positions...))
}

func (f *filterClause) eq(column string, value any) {
	f.add(column+" = $%d", value)
}

func (f *filterClause) where() string {
	if len(f.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conditions, " AND ")
}

// page binds limit and offset and returns the trailing clause. Call it after
// where so the count query can reuse the filter arguments.
func (f *filterClause) page(p repository.Pagination) (string, []any) {
	limit, offset := normalizePagination(p)
	args := append(append([]any(nil), f.args...), limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

// oneRow maps pgx.ErrNoRows onto repository.ErrNotFound.
func oneRow[T any](value T, err error) (T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		var zero T
		return zero, ErrNotFound
	}
	return value, err
}

func decodeJSONMap(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeJSONMap(value map[string]any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

func ensureAffected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
