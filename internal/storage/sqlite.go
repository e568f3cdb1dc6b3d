package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/wahlandcase/appgit/internal/models"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// SQLiteStorage implements Store using SQLite
type SQLiteStorage struct {
	db     *sqlx.DB
	logger *zap.Logger
}

type applicationRow struct {
	ID                   string         `db:"id"`
	Name                 string         `db:"name"`
	WorkspaceID          string         `db:"workspace_id"`
	DefaultApplicationID sql.NullString `db:"default_application_id"`
	BranchName           sql.NullString `db:"branch_name"`
	GitMetadata          sql.NullString `db:"git_metadata"`
	Content              string         `db:"content"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

type profileRow struct {
	UserID           string `db:"user_id"`
	ProfileKey       string `db:"profile_key"`
	AuthorName       string `db:"author_name"`
	AuthorEmail      string `db:"author_email"`
	UseGlobalProfile bool   `db:"use_global_profile"`
}

// NewSQLiteStorage opens (creating if needed) the database at dbPath
func NewSQLiteStorage(dbPath string, logger *zap.Logger) (*SQLiteStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=ON", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection avoids "database is locked" under concurrent writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStorage{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite storage initialized",
		zap.String("database_path", dbPath),
		zap.String("journal_mode", "WAL"))
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	var version int
	if err := s.db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("failed to query schema version: %w", err)
	}

	if version == 0 {
		s.logger.Info("Initializing database schema", zap.Int("version", schemaVersion))
		if _, err := s.db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
		return nil
	}

	s.logger.Debug("Database schema already exists", zap.Int("version", version))
	return nil
}

func toRow(app *models.Application) (applicationRow, error) {
	content, err := json.Marshal(app.Content)
	if err != nil {
		return applicationRow{}, fmt.Errorf("failed to marshal content: %w", err)
	}
	row := applicationRow{
		ID:          app.ID,
		Name:        app.Name,
		WorkspaceID: app.WorkspaceID,
		Content:     string(content),
		CreatedAt:   app.CreatedAt.UTC(),
		UpdatedAt:   app.UpdatedAt.UTC(),
	}
	if app.GitMetadata != nil {
		meta, err := json.Marshal(app.GitMetadata)
		if err != nil {
			return applicationRow{}, fmt.Errorf("failed to marshal git metadata: %w", err)
		}
		row.GitMetadata = sql.NullString{String: string(meta), Valid: true}
		if app.IsGitEnabled() {
			row.DefaultApplicationID = sql.NullString{String: app.GitMetadata.DefaultApplicationID, Valid: true}
			row.BranchName = sql.NullString{String: app.GitMetadata.BranchName, Valid: true}
		}
	}
	return row, nil
}

func (r applicationRow) toApplication() (*models.Application, error) {
	app := &models.Application{
		ID:          r.ID,
		Name:        r.Name,
		WorkspaceID: r.WorkspaceID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.Content), &app.Content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content of %s: %w", r.ID, err)
	}
	if r.GitMetadata.Valid {
		app.GitMetadata = &models.GitApplicationMetadata{}
		if err := json.Unmarshal([]byte(r.GitMetadata.String), app.GitMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal git metadata of %s: %w", r.ID, err)
		}
	}
	return app, nil
}

func (s *SQLiteStorage) CreateApplication(ctx context.Context, app *models.Application) error {
	row, err := toRow(app)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO applications (
			id, name, workspace_id, default_application_id, branch_name,
			git_metadata, content, created_at, updated_at
		) VALUES (
			:id, :name, :workspace_id, :default_application_id, :branch_name,
			:git_metadata, :content, :created_at, :updated_at
		)
	`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: application %s or its branch", ErrConflict, app.ID)
		}
		return fmt.Errorf("failed to insert application: %w", err)
	}

	s.logger.Debug("Application saved",
		zap.String("application_id", app.ID),
		zap.String("branch", app.BranchName()))
	return nil
}

func (s *SQLiteStorage) UpdateApplication(ctx context.Context, app *models.Application) error {
	row, err := toRow(app)
	if err != nil {
		return err
	}

	query := `
		UPDATE applications SET
			name = :name,
			workspace_id = :workspace_id,
			default_application_id = :default_application_id,
			branch_name = :branch_name,
			git_metadata = :git_metadata,
			content = :content,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: branch %s of %s", ErrConflict, app.BranchName(), app.DefaultApplicationID())
		}
		return fmt.Errorf("failed to update application: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: application %s", ErrNotFound, app.ID)
	}
	return nil
}

func (s *SQLiteStorage) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	var row applicationRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM applications WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: application %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query application: %w", err)
	}
	return row.toApplication()
}

func (s *SQLiteStorage) FindBranchApplication(ctx context.Context, defaultAppID, branch string) (*models.Application, error) {
	var row applicationRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM applications WHERE default_application_id = ? AND branch_name = ?`,
		defaultAppID, branch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: branch %s of %s", ErrNotFound, branch, defaultAppID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query branch application: %w", err)
	}
	return row.toApplication()
}

func (s *SQLiteStorage) ListBranchApplications(ctx context.Context, defaultAppID string) ([]*models.Application, error) {
	var rows []applicationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM applications WHERE default_application_id = ? ORDER BY branch_name`,
		defaultAppID)
	if err != nil {
		return nil, fmt.Errorf("failed to query branch applications: %w", err)
	}

	apps := make([]*models.Application, 0, len(rows))
	for _, row := range rows {
		app, err := row.toApplication()
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func (s *SQLiteStorage) DeleteApplication(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: application %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStorage) SaveProfile(ctx context.Context, userID, key string, profile models.GitProfile) error {
	query := `
		INSERT INTO git_profiles (user_id, profile_key, author_name, author_email, use_global_profile)
		VALUES (:user_id, :profile_key, :author_name, :author_email, :use_global_profile)
		ON CONFLICT (user_id, profile_key) DO UPDATE SET
			author_name = excluded.author_name,
			author_email = excluded.author_email,
			use_global_profile = excluded.use_global_profile
	`
	_, err := s.db.NamedExecContext(ctx, query, profileRow{
		UserID:           userID,
		ProfileKey:       key,
		AuthorName:       profile.AuthorName,
		AuthorEmail:      profile.AuthorEmail,
		UseGlobalProfile: profile.UseGlobalProfile,
	})
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetProfiles(ctx context.Context, userID string) (map[string]models.GitProfile, error) {
	var rows []profileRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM git_profiles WHERE user_id = ?`, userID); err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}

	profiles := make(map[string]models.GitProfile, len(rows))
	for _, r := range rows {
		profiles[r.ProfileKey] = models.NewGitProfile(r.AuthorName, r.AuthorEmail, r.UseGlobalProfile)
	}
	return profiles, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// isUniqueConstraintError checks if the error is a UNIQUE or PRIMARY KEY violation
func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
