// Package jirasql builds the SQL statements shared by the SQLite and PostgreSQL adapters.
package jirasql

import (
	"strconv"
	"strings"
	"time"
)

// SQLiteTimeLayout is the fixed-width UTC text layout timestamps are stored with in SQLite.
// Lexical order of encoded values matches time order.
const SQLiteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Dialect describes how one driver spells placeholders and binds timestamps.
type Dialect struct {
	Name        string
	placeholder func(n int) string
	bindTime    func(time.Time) any
}

// SQLite uses ? placeholders and text timestamps.
var SQLite = Dialect{
	Name:        "sqlite",
	placeholder: func(int) string { return "?" },
	bindTime:    func(t time.Time) any { return EncodeSQLiteTime(t) },
}

// Postgres uses $n placeholders and native timestamps.
var Postgres = Dialect{
	Name:        "postgres",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	bindTime:    func(t time.Time) any { return t },
}

// EncodeSQLiteTime renders t in SQLiteTimeLayout.
func EncodeSQLiteTime(t time.Time) string {
	return t.UTC().Format(SQLiteTimeLayout)
}

// DecodeSQLiteTime parses a stored SQLite timestamp; zero on failure.
func DecodeSQLiteTime(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(SQLiteTimeLayout, v)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}

// Statement is one SQL text with its bind arguments.
type Statement struct {
	SQL  string
	Args []any
}

// builder accumulates SQL text and numbered arguments.
type builder struct {
	dialect Dialect
	sb      strings.Builder
	args    []any
}

func newBuilder(d Dialect) *builder {
	return &builder{dialect: d}
}

func (b *builder) write(parts ...string) *builder {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
	return b
}

// bind appends one argument and returns its placeholder.
func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.placeholder(len(b.args))
}

func (b *builder) bindTime(t time.Time) string {
	return b.bind(b.dialect.bindTime(t))
}

// list binds each value and returns a parenthesized placeholder list.
func list[T any](b *builder, values []T) string {
	marks := make([]string, 0, len(values))
	for _, v := range values {
		marks = append(marks, b.bind(v))
	}
	return "(" + strings.Join(marks, ", ") + ")"
}

func (b *builder) statement() Statement {
	return Statement{SQL: b.sb.String(), Args: b.args}
}
