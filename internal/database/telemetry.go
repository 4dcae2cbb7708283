package database

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DBQuerier is the subset of pgx the repositories need. *pgxpool.Pool and
// pgxmock pools both satisfy it.
type DBQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// TracedDB wraps a DBQuerier and records a span per statement.
type TracedDB struct {
	inner  DBQuerier
	tracer trace.Tracer
}

// NewTracedDB creates a new traced querier
func NewTracedDB(inner DBQuerier) *TracedDB {
	return &TracedDB{
		inner:  inner,
		tracer: otel.Tracer("stocksage-go/database"),
	}
}

// Query executes a query
func (db *TracedDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := db.start(ctx, "Query", sql)
	defer span.End()

	rows, err := db.inner.Query(ctx, sql, args...)
	recordError(span, err)
	return rows, err
}

// QueryRow executes a query that returns a single row. Scan errors surface
// on the row, so the span only covers dispatch.
func (db *TracedDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := db.start(ctx, "QueryRow", sql)
	defer span.End()

	return db.inner.QueryRow(ctx, sql, args...)
}

// Exec executes a statement without returning rows
func (db *TracedDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := db.start(ctx, "Exec", sql)
	defer span.End()

	tag, err := db.inner.Exec(ctx, sql, args...)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	}
	return tag, err
}

func (db *TracedDB) start(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return db.tracer.Start(ctx, "db."+op, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operationName(sql)),
		attribute.String("db.statement", strings.TrimSpace(sql)),
	))
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// operationName returns the leading SQL keyword, upper-cased.
func operationName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
