// Package datastore handles relational storage of document and reviewer
// metadata: which object store key a document lives at, its mime type and
// recorded size, and which reviewer owns a review session.
package datastore

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/inkwell-review/inkwell/internal/conf"
	"github.com/inkwell-review/inkwell/internal/errors"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.NewStd("datastore: record not found")

// Interface abstracts relational storage for handlers and tests.
type Interface interface {
	Open() error
	Close() error

	GetUser(id uint) (*User, error)
	CreateUser(user *User) error

	GetFileAsset(id uint) (*FileAsset, error)
	GetProjectFileAsset(projectID, id uint) (*FileAsset, error)
	ListFileAssets(projectID uint) ([]FileAsset, error)
	CreateFileAsset(asset *FileAsset) error
	UpdateFileAssetSize(id uint, size int64) error
	DeleteFileAsset(id uint) error

	GetOrCreateReviewSession(fileAssetID, reviewerID uint) (*ReviewSession, error)
	UpdateReviewSessionStatus(id uint, status string) error
}

// DataStore implements Interface on top of gorm. The dialector is chosen by
// New from the database settings.
type DataStore struct {
	DB       *gorm.DB
	settings *conf.Settings
}

// New creates a DataStore for the configured database type. Call Open before
// use.
func New(settings *conf.Settings) *DataStore {
	return &DataStore{settings: settings}
}

// Open connects to the configured database and runs migrations.
func (ds *DataStore) Open() error {
	gormLogger := createGormLogger(ds.settings.Debug)

	var (
		db  *gorm.DB
		err error
	)
	switch ds.settings.Database.Type {
	case "mysql":
		db, err = gorm.Open(mysql.Open(ds.settings.Database.MySQLDSN), &gorm.Config{Logger: gormLogger})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(ds.settings.Database.SQLitePath), &gorm.Config{Logger: gormLogger})
	default:
		return errors.Newf("unsupported database type: %s", ds.settings.Database.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return errors.New(fmt.Errorf("failed to open database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("type", ds.settings.Database.Type).
			Build()
	}

	ds.DB = db
	return ds.migrate()
}

// Close releases the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (ds *DataStore) migrate() error {
	if err := ds.DB.AutoMigrate(&User{}, &FileAsset{}, &ReviewSession{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto-migrate").
			Build()
	}
	return nil
}

func createGormLogger(debug bool) logger.Interface {
	level := logger.Silent
	if debug {
		level = logger.Info
	}
	return logger.New(
		log.Default(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)
}

func (ds *DataStore) GetUser(id uint) (*User, error) {
	var user User
	if err := ds.DB.First(&user, id).Error; err != nil {
		return nil, translate(err, "get-user")
	}
	return &user, nil
}

func (ds *DataStore) CreateUser(user *User) error {
	if err := ds.DB.Create(user).Error; err != nil {
		return translate(err, "create-user")
	}
	return nil
}

func (ds *DataStore) GetFileAsset(id uint) (*FileAsset, error) {
	var asset FileAsset
	if err := ds.DB.First(&asset, id).Error; err != nil {
		return nil, translate(err, "get-file-asset")
	}
	return &asset, nil
}

func (ds *DataStore) GetProjectFileAsset(projectID, id uint) (*FileAsset, error) {
	var asset FileAsset
	err := ds.DB.Where("project_id = ? AND id = ?", projectID, id).First(&asset).Error
	if err != nil {
		return nil, translate(err, "get-project-file-asset")
	}
	return &asset, nil
}

func (ds *DataStore) ListFileAssets(projectID uint) ([]FileAsset, error) {
	var assets []FileAsset
	err := ds.DB.Where("project_id = ?", projectID).Order("id desc").Find(&assets).Error
	if err != nil {
		return nil, translate(err, "list-file-assets")
	}
	return assets, nil
}

func (ds *DataStore) CreateFileAsset(asset *FileAsset) error {
	if err := ds.DB.Create(asset).Error; err != nil {
		return translate(err, "create-file-asset")
	}
	return nil
}

func (ds *DataStore) UpdateFileAssetSize(id uint, size int64) error {
	err := ds.DB.Model(&FileAsset{}).Where("id = ?", id).Update("size", size).Error
	if err != nil {
		return translate(err, "update-file-asset-size")
	}
	return nil
}

func (ds *DataStore) DeleteFileAsset(id uint) error {
	if err := ds.DB.Delete(&FileAsset{}, id).Error; err != nil {
		return translate(err, "delete-file-asset")
	}
	return nil
}

// GetOrCreateReviewSession returns the session binding this reviewer to this
// document, creating a pending one at first touch.
func (ds *DataStore) GetOrCreateReviewSession(fileAssetID, reviewerID uint) (*ReviewSession, error) {
	var session ReviewSession
	err := ds.DB.Where("file_asset_id = ? AND reviewer_id = ?", fileAssetID, reviewerID).
		First(&session).Error
	if err == nil {
		return &session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, translate(err, "get-review-session")
	}

	session = ReviewSession{
		FileAssetID: fileAssetID,
		ReviewerID:  reviewerID,
		Status:      ReviewPending,
	}
	if err := ds.DB.Create(&session).Error; err != nil {
		return nil, translate(err, "create-review-session")
	}
	return &session, nil
}

func (ds *DataStore) UpdateReviewSessionStatus(id uint, status string) error {
	updates := map[string]any{"status": status}
	now := time.Now()
	switch status {
	case ReviewInProgress:
		updates["started_at"] = &now
	case ReviewApproved:
		updates["completed_at"] = &now
	case ReviewRevision:
		updates["completed_at"] = nil
	}
	err := ds.DB.Model(&ReviewSession{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return translate(err, "update-review-session-status")
	}
	return nil
}

func translate(err error, operation string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}
