package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"signalengine/src/database"
	"signalengine/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

var sqliteSeq int

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	sqliteSeq++
	dsn := fmt.Sprintf("file:repository_test_%d?mode=memory&cache=shared", sqliteSeq)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestSignalRepositoryFindByIdempotencyKey(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&SignalRepository{}).WithDB(mockDB)

	receivedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns the matching row", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "idempotency_key", "symbol", "action", "leverage", "received_at"}).
			AddRow(uint(7), "abc123", "BTCUSDT", model.SignalActionOpenLong, 5, receivedAt)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trading_signals" WHERE idempotency_key = $1 ORDER BY "trading_signals"."id" LIMIT $2`)).
			WithArgs("abc123", 1).
			WillReturnRows(rows)

		signal, err := repo.FindByIdempotencyKey(context.Background(), "abc123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if signal == nil || signal.ID != 7 || signal.Symbol != "BTCUSDT" {
			t.Fatalf("unexpected signal: %+v", signal)
		}
	})

	t.Run("returns nil when no row matches", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trading_signals" WHERE idempotency_key = $1 ORDER BY "trading_signals"."id" LIMIT $2`)).
			WithArgs("missing", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		signal, err := repo.FindByIdempotencyKey(context.Background(), "missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if signal != nil {
			t.Fatalf("expected nil for a missing key, got %+v", signal)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestSignalRepositoryFindLatestBySymbol(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&SignalRepository{}).WithDB(mockDB)

	rows := sqlmock.NewRows([]string{"id", "idempotency_key", "symbol", "action"}).
		AddRow(uint(3), "k3", "BTCUSDT", model.SignalActionClose).
		AddRow(uint(2), "k2", "BTCUSDT", model.SignalActionOpenLong)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trading_signals" WHERE symbol = $1 ORDER BY id DESC LIMIT $2`)).
		WithArgs("BTCUSDT", 2).
		WillReturnRows(rows)

	signals, err := repo.FindLatestBySymbol(context.Background(), "BTCUSDT", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	if signals[0].ID != 3 || signals[1].ID != 2 {
		t.Fatalf("signals not newest-first: %+v", signals)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

// Duplicate delivery goes through the real unique index: the second insert
// must be a no-op that hands back the original row.
func TestSignalRepositoryCreateIdempotent(t *testing.T) {
	db := newSQLiteDB(t)
	repo := (&SignalRepository{}).WithDB(db)
	ctx := context.Background()

	first := &model.TradingSignal{
		IdempotencyKey: "dup-key",
		Symbol:         "BTCUSDT",
		Action:         model.SignalActionOpenLong,
		Price:          decimal.NewFromInt(50000),
		Leverage:       5,
		ReceivedAt:     time.Now(),
	}

	created, err := repo.CreateIdempotent(ctx, first)
	if err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}
	if !created {
		t.Fatal("first insert must report created=true")
	}
	if first.ID == 0 {
		t.Fatal("first insert must assign an id")
	}

	duplicate := &model.TradingSignal{
		IdempotencyKey: "dup-key",
		Symbol:         "BTCUSDT",
		Action:         model.SignalActionOpenShort, // redelivery with drifted content
		Price:          decimal.NewFromInt(51000),
		ReceivedAt:     time.Now(),
	}

	created, err = repo.CreateIdempotent(ctx, duplicate)
	if err != nil {
		t.Fatalf("unexpected error on duplicate insert: %v", err)
	}
	if created {
		t.Fatal("duplicate insert must report created=false")
	}
	if duplicate.ID != first.ID {
		t.Fatalf("duplicate must be reloaded with the original row: got id %d, want %d", duplicate.ID, first.ID)
	}
	if duplicate.Action != model.SignalActionOpenLong {
		t.Fatalf("duplicate must carry the original action, got %q", duplicate.Action)
	}

	var count int64
	if err := db.Model(&model.TradingSignal{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single persisted row, got %d", count)
	}
}

func TestSentimentRepositoryLatest(t *testing.T) {
	db := newSQLiteDB(t)
	repo := (&SentimentRepository{}).WithDB(db)
	ctx := context.Background()

	latest, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("unexpected error on empty table: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected nil before the collector has run, got %+v", latest)
	}

	older := &model.MarketSentiment{Value: 20, Classification: "Extreme Fear", Source: "fear_greed_index", CollectedAt: time.Now().Add(-2 * time.Hour)}
	newer := &model.MarketSentiment{Value: 55, Classification: "Neutral", Source: "fear_greed_index", CollectedAt: time.Now().Add(-time.Hour)}
	if err := repo.Create(ctx, older); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, newer); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	latest, err = repo.Latest(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest == nil || latest.Value != 55 {
		t.Fatalf("expected the newest snapshot, got %+v", latest)
	}
}
