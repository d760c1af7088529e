package database

import (
	"context"
	"database/sql"
	"log"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newMockDB creates a new GORM DB instance with a sqlmock.
func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockSqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	silentLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: mockSqlDB,
	}), &gorm.Config{
		Logger: silentLogger,
	})
	require.NoError(t, err)

	db := &DB{
		handler: gormDB,
		log:     logger.Mock().With().Logger(),
	}
	return db, mock
}

func TestNewConnectionRepo(t *testing.T) {
	log := logger.Mock()
	db, _ := newMockDB(t)

	repo := NewConnectionRepo(log, db)
	assert.NotNil(t, repo)

	connRepo, ok := repo.(*ConnectionRepo)
	assert.True(t, ok, "NewConnectionRepo should return a *ConnectionRepo type")
	assert.NotNil(t, connRepo.db)
}

func TestConnectionRepo_FindByID(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()

	t.Run("Connection found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		rows := sqlmock.NewRows([]string{"id", "user_id", "provider", "sync_enabled"}).
			AddRow("conn-1", "user-1", "google", true)
		mock.ExpectQuery(`SELECT \* FROM "calendar_connections" WHERE id = \$1`).
			WithArgs("conn-1", 1).
			WillReturnRows(rows)

		conn, err := repo.FindByID(ctx, "conn-1")
		require.NoError(t, err)
		require.NotNil(t, conn)
		assert.Equal(t, "conn-1", conn.ID)
		assert.Equal(t, domain.CalendarProviderGoogle, conn.Provider)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Record not found returns nil, nil", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		mock.ExpectQuery(`SELECT \* FROM "calendar_connections" WHERE id = \$1`).
			WithArgs("missing", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		conn, err := repo.FindByID(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, conn)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		mock.ExpectQuery(`SELECT \* FROM "calendar_connections" WHERE id = \$1`).
			WithArgs("conn-1", 1).
			WillReturnError(sql.ErrConnDone)

		conn, err := repo.FindByID(ctx, "conn-1")
		require.Error(t, err)
		assert.Nil(t, conn)
		assert.Contains(t, err.Error(), "failed to find connection by id")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConnectionRepo_FindByWebhookID(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()

	t.Run("Channel resolves to connection", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		rows := sqlmock.NewRows([]string{"id", "user_id", "provider", "webhook_id"}).
			AddRow("conn-1", "user-1", "google", "chan-abc")
		mock.ExpectQuery(`SELECT \* FROM "calendar_connections" WHERE webhook_id = \$1`).
			WithArgs("chan-abc", 1).
			WillReturnRows(rows)

		conn, err := repo.FindByWebhookID(ctx, "chan-abc")
		require.NoError(t, err)
		require.NotNil(t, conn)
		assert.Equal(t, "conn-1", conn.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown channel returns nil, nil", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		mock.ExpectQuery(`SELECT \* FROM "calendar_connections" WHERE webhook_id = \$1`).
			WithArgs("chan-unknown", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		conn, err := repo.FindByWebhookID(ctx, "chan-unknown")
		require.NoError(t, err)
		assert.Nil(t, conn)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConnectionRepo_UpdateWebhook(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()
	expiration := time.Now().Add(7 * 24 * time.Hour)

	t.Run("Stores a subscription", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "calendar_connections" SET "updated_at"=$1,"webhook_expiration"=$2,"webhook_id"=$3,"webhook_resource_id"=$4 WHERE id = $5`)).
			WithArgs(sqlmock.AnyArg(), expiration, "chan-abc", "res-1", "conn-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.UpdateWebhook(ctx, "conn-1", &domain.WebhookSubscription{
			ID:         "chan-abc",
			ResourceID: "res-1",
			Expiration: expiration,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Nil subscription clears all webhook columns", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "calendar_connections" SET "updated_at"=$1,"webhook_expiration"=$2,"webhook_id"=$3,"webhook_resource_id"=$4 WHERE id = $5`)).
			WithArgs(sqlmock.AnyArg(), nil, nil, nil, "conn-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.UpdateWebhook(ctx, "conn-1", nil)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing connection", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "calendar_connections" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.UpdateWebhook(ctx, "missing", nil)
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConnectionRepo_UpdateTokens(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()
	expiresAt := time.Now().Add(time.Hour)

	t.Run("Replaces credentials", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "calendar_connections" SET "access_token"=$1,"expires_at"=$2,"refresh_token"=$3,"updated_at"=$4 WHERE id = $5`)).
			WithArgs("new-access", expiresAt, "new-refresh", sqlmock.AnyArg(), "conn-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.UpdateTokens(ctx, "conn-1", "new-access", "new-refresh", expiresAt)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing connection", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "calendar_connections" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.UpdateTokens(ctx, "missing", "a", "r", expiresAt)
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConnectionRepo_UpdateCursor(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()
	syncedAt := time.Now()

	t.Run("Google cursor lands in last_sync_token", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		rows := sqlmock.NewRows([]string{"id", "user_id", "provider"}).
			AddRow("conn-1", "user-1", "google")
		mock.ExpectQuery(`SELECT \* FROM "calendar_connections" WHERE id = \$1`).
			WithArgs("conn-1", 1).
			WillReturnRows(rows)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "calendar_connections" SET "last_sync_at"=$1,"last_sync_token"=$2,"updated_at"=$3 WHERE id = $4`)).
			WithArgs(syncedAt, "token-next", sqlmock.AnyArg(), "conn-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.UpdateCursor(ctx, "conn-1", "token-next", syncedAt)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Microsoft cursor lands in last_delta_link", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		rows := sqlmock.NewRows([]string{"id", "user_id", "provider"}).
			AddRow("conn-2", "user-1", "microsoft")
		mock.ExpectQuery(`SELECT \* FROM "calendar_connections" WHERE id = \$1`).
			WithArgs("conn-2", 1).
			WillReturnRows(rows)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "calendar_connections" SET "last_delta_link"=$1,"last_sync_at"=$2,"updated_at"=$3 WHERE id = $4`)).
			WithArgs("https://graph.microsoft.com/delta?token=next", syncedAt, sqlmock.AnyArg(), "conn-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.UpdateCursor(ctx, "conn-2", "https://graph.microsoft.com/delta?token=next", syncedAt)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing connection", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		mock.ExpectQuery(`SELECT \* FROM "calendar_connections" WHERE id = \$1`).
			WithArgs("missing", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		err := repo.UpdateCursor(ctx, "missing", "token", syncedAt)
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConnectionRepo_FindWebhooksExpiringBefore(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()
	cutoff := time.Now().Add(24 * time.Hour)

	t.Run("Only expiring sync-enabled connections", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		rows := sqlmock.NewRows([]string{"id", "user_id", "provider", "sync_enabled"}).
			AddRow("conn-1", "user-1", "google", true).
			AddRow("conn-2", "user-2", "microsoft", true)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "calendar_connections" WHERE webhook_expiration IS NOT NULL AND webhook_expiration < $1 AND sync_enabled = $2`)).
			WithArgs(cutoff, true).
			WillReturnRows(rows)

		conns, err := repo.FindWebhooksExpiringBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Len(t, conns, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "calendar_connections" WHERE webhook_expiration IS NOT NULL`)).
			WillReturnError(sql.ErrConnDone)

		conns, err := repo.FindWebhooksExpiringBefore(ctx, cutoff)
		require.Error(t, err)
		assert.Nil(t, conns)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConnectionRepo_SetSyncEnabled(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()

	t.Run("Toggles the flag", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "calendar_connections" SET "sync_enabled"=$1,"updated_at"=$2 WHERE id = $3`)).
			WithArgs(false, sqlmock.AnyArg(), "conn-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.SetSyncEnabled(ctx, "conn-1", false)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing connection", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "calendar_connections" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.SetSyncEnabled(ctx, "missing", true)
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConnectionRepo_Delete(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()
	db, mock := newMockDB(t)
	repo := NewConnectionRepo(log, db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "calendar_connections" WHERE id = $1`)).
		WithArgs("conn-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(ctx, "conn-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
