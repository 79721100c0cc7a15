package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

func TestListQuery(t *testing.T) {
	since := time.Unix(100, 0)
	q := newListQuery("SELECT id FROM audit_log", "created_at").
		since(&since).
		until(nil).
		page(domain.ListOpts{Limit: 10, Offset: 20})

	assert.Equal(t,
		"SELECT id FROM audit_log WHERE 1=1 AND created_at >= $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		q.String())
	assert.Equal(t, []any{since, 10, 20}, q.args)
}

func TestListQuery_Before(t *testing.T) {
	cut := time.Unix(5, 0)
	q := newListQuery("SELECT id FROM bundles", "created_at").before(cut).ascending()
	assert.Equal(t, "SELECT id FROM bundles WHERE 1=1 AND created_at < $1 ORDER BY created_at ASC", q.String())
	assert.Len(t, q.args, 1)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/arb?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "arb"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: " postgres://x "}))
}
