package campaign

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestStoreGet(t *testing.T) {
	store, mock := setupStore(t)
	id := uuid.New()

	nodes, _ := json.Marshal([]Node{{ID: "t1", Type: NodeTrigger}})
	edges, _ := json.Marshal([]Edge{{Source: "t1", Target: "w1"}})
	rows := sqlmock.NewRows([]string{"id", "name", "status", "nodes", "edges", "created_at", "updated_at"}).
		AddRow(id, "Upsell", "active", nodes, edges, time.Now(), time.Now())

	mock.ExpectQuery("SELECT id, name, status, nodes, edges").
		WithArgs(id).
		WillReturnRows(rows)

	c, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Upsell", c.Name)
	require.Len(t, c.Nodes, 1)
	assert.Equal(t, NodeTrigger, c.Nodes[0].Type)
	require.Len(t, c.Edges, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetNotFound(t *testing.T) {
	store, mock := setupStore(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, name, status, nodes, edges").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "nodes", "edges", "created_at", "updated_at"}))

	_, err := store.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreList(t *testing.T) {
	store, mock := setupStore(t)
	id := uuid.New()

	nodes, _ := json.Marshal([]Node{{ID: "t1", Type: NodeTrigger}})
	rows := sqlmock.NewRows([]string{"id", "name", "status", "nodes", "edges", "created_at", "updated_at"}).
		AddRow(id, "Upsell", "active", nodes, []byte("[]"), time.Now(), time.Now())

	mock.ExpectQuery("SELECT id, name, status, nodes, edges").
		WillReturnRows(rows)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Nodes, 1)
	assert.Equal(t, NodeTrigger, list[0].Nodes[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListCorruptGraphErrors(t *testing.T) {
	store, mock := setupStore(t)
	id := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "name", "status", "nodes", "edges", "created_at", "updated_at"}).
		AddRow(id, "Upsell", "active", []byte("{not json"), []byte("[]"), time.Now(), time.Now())

	mock.ExpectQuery("SELECT id, name, status, nodes, edges").
		WillReturnRows(rows)

	_, err := store.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode nodes")
}

func TestStoreCreateFillsDefaults(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectExec("INSERT INTO campaigns").
		WithArgs(sqlmock.AnyArg(), "Winback", "draft", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := &Campaign{Name: "Winback"}
	require.NoError(t, store.Create(context.Background(), c))
	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, "draft", c.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateNotFound(t *testing.T) {
	store, mock := setupStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE campaigns SET name").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), &Campaign{ID: id, Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreSetStatus(t *testing.T) {
	store, mock := setupStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE campaigns SET status").
		WithArgs(id, "active").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetStatus(context.Background(), id, "active"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLogDispatch(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectExec("INSERT INTO campaign_dispatch_log").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.LogDispatch(context.Background(), DispatchRecord{
		CampaignID: "camp-1",
		CustomerID: "u1",
		ProductID:  "p1",
		Channel:    "email",
		Recipient:  "u1@example.com",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
