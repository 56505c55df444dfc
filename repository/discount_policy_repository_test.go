package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"discount-service/models"
	"discount-service/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestFindByStoreID_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormDiscountPolicyRepository(gormDB)

	id := uuid.New()
	now := time.Now()
	root := `{"id":"root-1","type":"and","discounts":[{"id":"s1","percentage":10,"context":{"obj":"store"}}]}`
	rows := sqlmock.NewRows([]string{"id", "store_id", "root", "version", "created_at", "updated_at"}).
		AddRow(id, "store-1", root, 3, now, now)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "discount_policies"`)).
		WillReturnRows(rows)

	p, err := repo.FindByStoreID(context.Background(), "store-1")
	require.NoError(t, err)
	assert.Equal(t, "store-1", p.StoreID)
	assert.Equal(t, 3, p.Version)
	require.NotNil(t, p.Root.Root)
	assert.Equal(t, "root-1", p.Root.Root.ID)
	assert.Len(t, p.Root.Root.Discounts, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByStoreID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormDiscountPolicyRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "discount_policies"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))

	p, err := repo.FindByStoreID(context.Background(), "missing")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	assert.Nil(t, p)
}

func TestCreate_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormDiscountPolicyRepository(gormDB)

	policy := models.NewDiscountPolicy("store-1")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "discount_policies"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(policy.ID))
	mock.ExpectCommit()

	assert.NoError(t, repo.Create(context.Background(), policy))
}

func TestSave_BumpsVersion(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormDiscountPolicyRepository(gormDB)

	policy := models.NewDiscountPolicy("store-1")
	policy.Version = 4

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "discount_policies" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Save(context.Background(), policy, 4))
	assert.Equal(t, 5, policy.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_VersionConflict(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormDiscountPolicyRepository(gormDB)

	policy := models.NewDiscountPolicy("store-1")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "discount_policies" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Save(context.Background(), policy, 1)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
	assert.Equal(t, 1, policy.Version)
}
