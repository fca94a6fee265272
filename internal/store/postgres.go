package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/engine"
	"github.com/DoyleJ11/dungeon-realtime-backend/pkg/types"
)

type sessionRow struct {
	Code        string `gorm:"primaryKey;size:6"`
	Config      []byte `gorm:"type:jsonb;not null"`
	Players     []byte `gorm:"type:jsonb;not null"`
	PlayerCount int    `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (sessionRow) TableName() string { return "game_sessions" }

// PostgresStore keeps session records in Postgres through gorm on top of the
// pgx database/sql driver.
type PostgresStore struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// OpenPostgres connects to dsn, verifies the connection and migrates the
// game_sessions table. Caller must call Close when done.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := db.WithContext(ctx).AutoMigrate(&sessionRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &PostgresStore{db: db, sqlDB: sqlDB}, nil
}

// Save upserts the record by code.
func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	row, err := recordToRow(rec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *PostgresStore) Find(ctx context.Context, code string) (Record, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).First(&row, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rowToRecord(row)
}

func (s *PostgresStore) Delete(ctx context.Context, code string) error {
	return s.db.WithContext(ctx).Delete(&sessionRow{}, "code = ?", code).Error
}

func (s *PostgresStore) Close() error {
	return s.sqlDB.Close()
}

func recordToRow(rec Record) (sessionRow, error) {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return sessionRow{}, err
	}
	players := rec.Players
	if players == nil {
		players = []engine.Player{}
	}
	ps, err := json.Marshal(players)
	if err != nil {
		return sessionRow{}, err
	}
	return sessionRow{
		Code:        rec.Code,
		Config:      cfg,
		Players:     ps,
		PlayerCount: len(players),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

func rowToRecord(row sessionRow) (Record, error) {
	rec := Record{Code: row.Code, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}
	var cfg types.SessionConfig
	if err := json.Unmarshal(row.Config, &cfg); err != nil {
		return Record{}, fmt.Errorf("store: decode config for %s: %w", row.Code, err)
	}
	rec.Config = cfg
	if err := json.Unmarshal(row.Players, &rec.Players); err != nil {
		return Record{}, fmt.Errorf("store: decode players for %s: %w", row.Code, err)
	}
	return rec, nil
}
