// Package repo implements the data persistence layer for the payment ledger,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) on the listing endpoint.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/domain"
)

// PaymentsStats returns aggregate metadata for a phone's payments: the total
// number of rows and the maximum UpdatedAt timestamp among them. An empty
// phone scopes the aggregate to the whole table.
//
// When there are no matching rows, count is 0 and maxUpdatedAt is nil.
func PaymentsStats(ctx context.Context, db *gorm.DB, phone string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Payment{})
	if phone != "" {
		q = q.Where("phone = ?", phone)
	}

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
