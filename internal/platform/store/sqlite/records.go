package sqlite

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/records"
)

type recordStore struct {
	db *gorm.DB
}

func (s *recordStore) Create(ctx context.Context, rec *records.Record) error {
	err := s.db.WithContext(ctx).Create(recordToRow(rec)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: id %s exists", records.ErrInvalidRecord, rec.ID)
	}
	return err
}

func (s *recordStore) Get(ctx context.Context, id string) (*records.Record, error) {
	var row recordRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, records.ErrRecordNotFound
		}
		return nil, err
	}
	return row.model(), nil
}

func (s *recordStore) ListByOwner(ctx context.Context, ownerID string) ([]*records.Record, error) {
	var rows []recordRow
	if err := s.db.WithContext(ctx).Where("owner_user_id = ?", ownerID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*records.Record, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (s *recordStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&recordRow{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return records.ErrRecordNotFound
	}
	return nil
}

var _ records.Store = (*recordStore)(nil)
