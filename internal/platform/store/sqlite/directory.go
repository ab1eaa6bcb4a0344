package sqlite

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/directory"
)

type directoryStore struct {
	db *gorm.DB
}

func (s *directoryStore) Resolve(ctx context.Context, userID string) (*directory.Identity, error) {
	var row identityRow
	if err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, directory.ErrUserNotFound
		}
		return nil, err
	}
	return row.model(), nil
}

func (s *directoryStore) Upsert(ctx context.Context, ident *directory.Identity) error {
	if strings.TrimSpace(ident.UserID) == "" {
		return errors.New("directory: user id is required")
	}
	row := identityRow{UserID: ident.UserID, DisplayName: ident.DisplayName, Email: ident.Email}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "email"}),
	}).Create(&row).Error
}

func (s *directoryStore) List(ctx context.Context) ([]*directory.Identity, error) {
	var rows []identityRow
	if err := s.db.WithContext(ctx).Order("user_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*directory.Identity, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

var _ directory.Store = (*directoryStore)(nil)
