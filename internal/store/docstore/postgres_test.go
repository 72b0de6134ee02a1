package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresStore(sqlx.NewDb(db, "sqlmock")), mock, func() { db.Close() }
}

func TestPostgresStoreGet(t *testing.T) {
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"data"}).
		AddRow([]byte(`{"id":"s-1","name":"Arif"}`))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM documents WHERE collection = $1 AND id = $2")).
		WithArgs(CollectionStudents, "s-1").
		WillReturnRows(rows)

	doc, err := store.Get(context.Background(), CollectionStudents, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", doc.ID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(doc.Data, &payload))
	assert.Equal(t, "Arif", payload["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM documents WHERE collection = $1 AND id = $2")).
		WithArgs(CollectionStudents, "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), CollectionStudents, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreQueryAppendsEqualityFilters(t *testing.T) {
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "data"}).
		AddRow("a-1", []byte(`{"id":"a-1","status":"active"}`)).
		AddRow("a-2", []byte(`{"id":"a-2","status":"active"}`))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, data FROM documents WHERE collection = $1 AND data->>'studentId' = $2 AND data->>'status' = $3 ORDER BY created_at ASC")).
		WithArgs(CollectionAssignments, "s-1", "active").
		WillReturnRows(rows)

	docs, err := store.Query(context.Background(), CollectionAssignments,
		Eq("studentId", "s-1"), Eq("status", "active"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a-1", docs[0].ID)
	assert.Equal(t, "a-2", docs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCount(t *testing.T) {
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM documents WHERE collection = $1 AND data->>'role' = $2")).
		WithArgs(CollectionUsers, "coach").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := store.Count(context.Background(), CollectionUsers, Eq("role", "coach"))
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSetUpserts(t *testing.T) {
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(CollectionStudents, "s-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Set(context.Background(), CollectionStudents, "s-1",
		map[string]interface{}{"name": "Arif"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreAddGeneratesID(t *testing.T) {
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(CollectionStudents, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.Add(context.Background(), CollectionStudents,
		map[string]interface{}{"name": "Bima"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateSplitsPatchAndRemovals(t *testing.T) {
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	merged, err := json.Marshal(map[string]interface{}{"name": "Citra"})
	require.NoError(t, err)

	mock.ExpectExec("UPDATE documents").
		WithArgs(CollectionStudents, "s-1", merged, pq.Array([]string{"assignedCoachId"}), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Update(context.Background(), CollectionStudents, "s-1", map[string]interface{}{
		"name":            "Citra",
		"assignedCoachId": nil,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateNotFound(t *testing.T) {
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	mock.ExpectExec("UPDATE documents").
		WithArgs(CollectionStudents, "missing", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), CollectionStudents, "missing",
		map[string]interface{}{"name": "Dewi"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDelete(t *testing.T) {
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE collection = $1 AND id = $2")).
		WithArgs(CollectionStudents, "s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Delete(context.Background(), CollectionStudents, "s-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE collection = $1 AND id = $2")).
		WithArgs(CollectionStudents, "s-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.Delete(context.Background(), CollectionStudents, "s-1"), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
