package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"studycompanion/pkg/domain"
)

const migrateLockID int64 = 51727001

// GormStore implements Store on any gorm dialect; production uses Postgres.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore connects to Postgres and migrates the schema under an advisory
// lock so that api and ingest processes can start together.
func NewGormStore(dsn string) (*GormStore, error) {
	return OpenGormStore(postgres.Open(dsn))
}

// OpenGormStore opens the store on an arbitrary dialector (tests use sqlite).
func OpenGormStore(dialector gorm.Dialector) (*GormStore, error) {
	gormLog := gormlogger.New(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	migrate := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(allModels()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if db.Dialector.Name() == "postgres" {
		err = withMigrationLock(db, migrate)
	} else {
		err = migrate(db)
	}
	if err != nil {
		return nil, err
	}
	return &GormStore{db: db, now: time.Now}, nil
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SetPool tunes the connection pool. Non-positive values keep the driver default.
func (s *GormStore) SetPool(maxOpen, maxIdle int, maxLifetime time.Duration) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(maxLifetime)
	}
	return nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := advisory(ctx, conn, "SELECT pg_advisory_lock($1)"); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() { _ = advisory(ctx, conn, "SELECT pg_advisory_unlock($1)") }()
	return fn(db)
}

func advisory(ctx context.Context, conn *sql.Conn, query string) error {
	_, err := conn.ExecContext(ctx, query, migrateLockID)
	return err
}

// first loads one row into dst, mapping gorm.ErrRecordNotFound to ok=false.
func first(tx *gorm.DB, dst any, query string, args ...any) (bool, error) {
	err := tx.Where(query, args...).First(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// deleteOwned removes the row of model with id owned by userID.
func deleteOwned(tx *gorm.DB, model any, userID, id string) error {
	res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func decodeJSON[T any](raw datatypes.JSON) T {
	var out T
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

// Users.

func (s *GormStore) CreateUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	err := s.db.WithContext(ctx).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailTaken
	}
	return err
}

func (s *GormStore) UpdateUsername(ctx context.Context, id, username string, at time.Time) error {
	return s.updateUser(ctx, id, map[string]any{"username": username, "updated_at": at.UTC()})
}

func (s *GormStore) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	return s.updateUser(ctx, id, map[string]any{"password_hash": hash, "updated_at": at.UTC()})
}

func (s *GormStore) updateUser(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) HasUserEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	ok, err := first(s.db.WithContext(ctx), &model, "email = ?", email)
	if !ok || err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	ok, err := first(s.db.WithContext(ctx), &model, "id = ?", id)
	if !ok || err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Status:       domain.UserStatus(m.Status),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// Documents.

func (s *GormStore) SaveDocument(ctx context.Context, d domain.Document) error {
	model := documentToModel(d)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "original_filename", "storage_key", "content_type", "size_bytes", "status", "error_message", "text", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) ListDocuments(ctx context.Context, userID string) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.WithContext(ctx).Omit("text").Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Document, 0, len(models))
	for _, m := range models {
		out = append(out, documentFromModel(m))
	}
	return out, nil
}

func (s *GormStore) GetDocument(ctx context.Context, userID, id string) (domain.Document, bool, error) {
	var model DocumentModel
	ok, err := first(s.db.WithContext(ctx), &model, "id = ? AND user_id = ?", id, userID)
	if !ok || err != nil {
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

func (s *GormStore) GetDocumentByID(ctx context.Context, id string) (domain.Document, bool, error) {
	var model DocumentModel
	ok, err := first(s.db.WithContext(ctx), &model, "id = ?", id)
	if !ok || err != nil {
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

func (s *GormStore) SetDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error {
	return s.updateDocument(ctx, id, map[string]any{
		"status":        string(status),
		"error_message": errMsg,
	})
}

func (s *GormStore) CompleteDocument(ctx context.Context, id, text string) error {
	return s.updateDocument(ctx, id, map[string]any{
		"status":        string(domain.DocumentReady),
		"error_message": "",
		"text":          text,
	})
}

func (s *GormStore) updateDocument(ctx context.Context, id string, fields map[string]any) error {
	fields["updated_at"] = s.now().UTC()
	res := s.db.WithContext(ctx).Model(&DocumentModel{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteDocument(ctx context.Context, userID, id string) error {
	return deleteOwned(s.db.WithContext(ctx), &DocumentModel{}, userID, id)
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:               d.ID,
		UserID:           d.UserID,
		Title:            d.Title,
		OriginalFilename: d.OriginalFilename,
		StorageKey:       d.StorageKey,
		ContentType:      d.ContentType,
		SizeBytes:        d.SizeBytes,
		Status:           string(d.Status),
		ErrorMessage:     d.ErrorMessage,
		Text:             d.Text,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:               m.ID,
		UserID:           m.UserID,
		Title:            m.Title,
		OriginalFilename: m.OriginalFilename,
		StorageKey:       m.StorageKey,
		ContentType:      m.ContentType,
		SizeBytes:        m.SizeBytes,
		Status:           domain.DocumentStatus(m.Status),
		ErrorMessage:     m.ErrorMessage,
		Text:             m.Text,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
