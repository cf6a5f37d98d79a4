package repository

import (
	"gorm.io/gorm"
)

// Repository bundles all durable-store operations. Mutations that back
// concurrency-sensitive paths (claims, counters, quota) are expressed as
// single conditional or arithmetic UPDATEs so they stay atomic across
// concurrent workers.
type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn against a Repository bound to a database transaction.
func (r *Repository) Transaction(fn func(*Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// Ping verifies database connectivity for health checks.
func (r *Repository) Ping() error {
	return r.db.Raw("SELECT 1").Error
}
