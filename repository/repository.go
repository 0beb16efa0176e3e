package repository

import (
	"log"
	"time"

	"fruitchain/repository/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgreSQL error codes as constants
const (
	// Class 23 — Integrity Constraint Violation
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrCheckViolation      = "23514" // check_violation
	PgErrNotNullViolation    = "23502" // not_null_violation

	// Class 08 — Connection Exception
	PgErrConnectionException = "08000" // connection_exception
	PgErrConnectionFailure   = "08006" // connection_failure

	// Class 40 — Transaction Rollback
	PgErrTransactionRollback = "40000" // transaction_rollback
)

// Repository error codes used alongside raw Postgres codes
const (
	ErrCodeEntityNotFound = "ENTITY_NOT_FOUND"
	ErrCodeInvalidState   = "INVALID_STATE"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeDatabase       = "DATABASE_ERROR"
)

// RepositoryError represents an error in the mirror store layer
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
}

func (e *RepositoryError) Error() string {
	return e.Code + ": " + e.Message
}

// wrapDBError maps a gorm/pgx error to a RepositoryError
func wrapDBError(err error) *RepositoryError {
	if pgErr, ok := err.(*pgconn.PgError); ok {
		return &RepositoryError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
		}
	}
	return &RepositoryError{
		Code:    ErrCodeDatabase,
		Message: "a database error occurred",
		Detail:  err.Error(),
	}
}

func notFound(message, detail string) *RepositoryError {
	return &RepositoryError{Code: ErrCodeEntityNotFound, Message: message, Detail: detail}
}

// Repository is the off-chain mirror store. It owns the denormalized,
// queryable copies of ledger-derived facts plus the data the ledger
// does not model. Mirrored fields are written only through the
// synchronizer paths.
type Repository struct {
	db *gorm.DB
}

func NewRepository() *Repository {
	return &Repository{}
}

// ConnectDB connects to Postgres, retrying while the database comes up
func (r *Repository) ConnectDB(dsn string) error {
	var lastErr error
	for i := range 10 {
		log.Printf("Connection attempt %d...\n", i+1)
		db, err := gorm.Open(postgres.Open(dsn))
		if err == nil {
			r.db = db
			log.Println("Connected to Postgres")
			return nil
		}
		lastErr = err
		log.Printf("Connection attempt %d failed: %v\n", i+1, err)
		time.Sleep(2 * time.Second)
	}
	return lastErr
}

// UseDB injects an already opened gorm handle (used by tests)
func (r *Repository) UseDB(db *gorm.DB) {
	r.db = db
}

// Migrate creates or updates the mirror schema
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Farm{},
		&models.Product{},
		&models.InventoryItem{},
		&models.Listing{},
		&models.PurchaseOrder{},
		&models.Shipment{},
		&models.SyncTask{},
	)
}

// Seed loads initial catalog and farm rows for local development
func (r *Repository) Seed() {
	var productCount int64
	r.db.Model(&models.Product{}).Count(&productCount)
	if productCount > 0 {
		log.Println("Seed data already exists, skipping...")
		return
	}

	log.Println("Seeding database with initial data...")

	products := []models.Product{
		{ID: "PRD-001", FruitType: "mango", Name: "Harum Manis Mango", Description: "Aromatic sweet mango", Season: "dry", Nutrition: "vitamin A, vitamin C", Storage: "cool and dry, 10-13C", Varieties: "harum manis,gedong gincu"},
		{ID: "PRD-002", FruitType: "banana", Name: "Cavendish Banana", Description: "Table banana", Season: "year-round", Nutrition: "potassium, vitamin B6", Storage: "room temperature", Varieties: "cavendish,raja"},
		{ID: "PRD-003", FruitType: "salak", Name: "Snake Fruit", Description: "Pondoh snake fruit", Season: "wet", Nutrition: "fiber, tannin", Storage: "ventilated crates", Varieties: "pondoh,bali"},
		{ID: "PRD-004", FruitType: "durian", Name: "Monthong Durian", Description: "Thick flesh durian", Season: "wet", Nutrition: "carbohydrate, vitamin C", Storage: "ambient, short shelf life", Varieties: "monthong,musang king"},
	}
	for _, product := range products {
		if err := r.db.Create(&product).Error; err != nil {
			log.Printf("Error creating product %s: %v", product.ID, err)
		}
	}

	farms := []models.Farm{
		{ID: "FARM-001", Name: "Sleman Highland Orchard", Location: "Sleman, Yogyakarta", Climate: "tropical highland", Soil: "volcanic loam", Conditions: "sunny, 24C", OwnerAddress: "0x0000000000000000000000000000000000000001"},
		{ID: "FARM-002", Name: "Bantul River Grove", Location: "Bantul, Yogyakarta", Climate: "tropical lowland", Soil: "alluvial", Conditions: "humid, 29C", OwnerAddress: "0x0000000000000000000000000000000000000002"},
	}
	for _, farm := range farms {
		if err := r.db.Create(&farm).Error; err != nil {
			log.Printf("Error creating farm %s: %v", farm.ID, err)
		}
	}

	log.Println("Database seeding completed successfully")
}
