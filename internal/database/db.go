package database

import (
	"log/slog"

	"storefront/internal/logging"
	"storefront/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Models lists every persisted model in migration order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.RefreshToken{},
		&model.VerificationCode{},
		&model.Order{},
		&model.OrderItem{},
		&model.PaymentMethod{},
		&model.AuditLog{},
	}
}

// Config returns the gorm configuration shared by the server and the tests.
// TranslateError lets repositories see gorm.ErrDuplicatedKey for unique violations.
func Config(logger *slog.Logger, level string) *gorm.Config {
	return &gorm.Config{
		Logger:         logging.NewGormLogger(logger, level),
		TranslateError: true,
	}
}

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string, logger *slog.Logger, level string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config(logger, level))
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
