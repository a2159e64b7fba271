package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightwave/campaign-engine/internal/segment"
)

func setupTestDB(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestWhereClause(t *testing.T) {
	where, args := whereClause([]segment.Predicate{
		{Column: "age", Op: segment.OpGt, Value: 30.0},
		{Column: "city", Op: segment.OpIn, Value: []string{"Oslo", "Bergen"}},
		{Column: "tier", Op: segment.OpEq, Value: "gold"},
	})
	assert.Equal(t, " WHERE age > $1 AND city = ANY($2) AND tier = $3", where)
	assert.Len(t, args, 3)
}

func TestWhereClauseEmpty(t *testing.T) {
	where, args := whereClause(nil)
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestCountMembers(t *testing.T) {
	p, mock := setupTestDB(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM customers WHERE age > \$1 AND tier = \$2`).
		WithArgs(30.0, "gold").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := p.CountMembers(context.Background(), []segment.Predicate{
		{Column: "age", Op: segment.OpGt, Value: 30.0},
		{Column: "tier", Op: segment.OpEq, Value: "gold"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountMembersWholePopulation(t *testing.T) {
	p, mock := setupTestDB(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM customers$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1200))

	count, err := p.CountMembers(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1200, count)
}

func TestMemberIDs(t *testing.T) {
	p, mock := setupTestDB(t)

	mock.ExpectQuery(`SELECT id FROM customers WHERE city = \$1`).
		WithArgs("Oslo").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1").AddRow("u2"))

	ids, err := p.MemberIDs(context.Background(), []segment.Predicate{
		{Column: "city", Op: segment.OpEq, Value: "Oslo"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids)
}

func TestResolveTagMembers(t *testing.T) {
	p, mock := setupTestDB(t)

	mock.ExpectQuery(`SELECT id FROM tags WHERE name = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)).AddRow(int64(9)))
	mock.ExpectQuery(`SELECT DISTINCT customer_id FROM customer_tags WHERE tag_id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"customer_id"}).AddRow("u1").AddRow("u5"))

	members, err := p.ResolveTagMembers(context.Background(), []string{"vip", "beta"})
	require.NoError(t, err)
	assert.Equal(t, segment.MemberSet{"u1": {}, "u5": {}}, members)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An unknown tag name must resolve to the empty set without touching the
// membership table at all.
func TestResolveTagMembersUnknownName(t *testing.T) {
	p, mock := setupTestDB(t)

	mock.ExpectQuery(`SELECT id FROM tags WHERE name = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	members, err := p.ResolveTagMembers(context.Background(), []string{"no-such-tag"})
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The classification runs as one query over all customers, never one
// query per customer.
func TestMembersByActivityClassification(t *testing.T) {
	cases := []struct {
		name   string
		status segment.ActivityStatus
		want   segment.MemberSet
	}{
		{"active", segment.ActivityActive, segment.MemberSet{"paid": {}, "used": {}}},
		{"inactive", segment.ActivityInactive, segment.MemberSet{"stale": {}}},
		{"dormant", segment.ActivityDormant, segment.MemberSet{"gone": {}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, mock := setupTestDB(t)

			rows := sqlmock.NewRows([]string{"id", "recent_paid", "recent_usage", "usage_30d"}).
				AddRow("paid", true, false, false).  // paid recently -> active
				AddRow("used", false, true, true).   // used this week -> active
				AddRow("stale", false, false, true). // usage within 30d only -> inactive
				AddRow("gone", false, false, false)  // nothing -> dormant

			mock.ExpectQuery(`SELECT c\.id`).
				WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
				WillReturnRows(rows)

			members, err := p.MembersByActivity(context.Background(), tc.status)
			require.NoError(t, err)
			assert.Equal(t, tc.want, members)
		})
	}
}

func TestSampleMembers(t *testing.T) {
	p, mock := setupTestDB(t)

	mock.ExpectQuery(`SELECT id, email, COALESCE\(city,''\), COALESCE\(tier,''\) FROM customers WHERE tier = \$1 ORDER BY registration_date DESC LIMIT 2`).
		WithArgs("gold").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "city", "tier"}).
			AddRow("u1", "u1@example.com", "Oslo", "gold").
			AddRow("u3", "u3@example.com", "Bergen", "gold"))

	out, err := p.SampleMembers(context.Background(), []segment.Predicate{
		{Column: "tier", Op: segment.OpEq, Value: "gold"},
	}, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "u1@example.com", out[0].Email)
}

func TestPreviewByIDsEmptySet(t *testing.T) {
	p, _ := setupTestDB(t)

	out, err := p.PreviewByIDs(context.Background(), segment.MemberSet{}, 10)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRecipientAddress(t *testing.T) {
	p, mock := setupTestDB(t)

	mock.ExpectQuery(`SELECT email FROM customers WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("u1@example.com"))

	addr, err := p.RecipientAddress(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", addr)
}

func TestRecipientAddressMissing(t *testing.T) {
	p, mock := setupTestDB(t)

	mock.ExpectQuery(`SELECT email FROM customers WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"email"}))

	_, err := p.RecipientAddress(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestRecipientAddressNullEmail(t *testing.T) {
	p, mock := setupTestDB(t)

	mock.ExpectQuery(`SELECT email FROM customers WHERE id = \$1`).
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow(nil))

	_, err := p.RecipientAddress(context.Background(), "u2")
	assert.ErrorIs(t, err, ErrNoRecipient)
}

// Guard against the window constants drifting apart from the documented
// classification.
func TestActivityWindows(t *testing.T) {
	assert.Equal(t, 30*24*time.Hour, paidActivityWindow)
	assert.Equal(t, 7*24*time.Hour, usageActivityWindow)
}
