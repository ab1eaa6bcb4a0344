package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
)

// ledger implements familyaccess.Ledger. Inside InTx, db is the transaction.
type ledger struct {
	db *gorm.DB
}

func (l *ledger) CreateRequest(ctx context.Context, req *familyaccess.AccessRequest) error {
	err := l.db.WithContext(ctx).Create(requestToRow(req)).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	// Either the primary key or the pending-pair index fired.
	var n int64
	if cerr := l.db.WithContext(ctx).Model(&requestRow{}).Where("id = ?", req.ID).Count(&n).Error; cerr != nil {
		return cerr
	}
	if n > 0 {
		return fmt.Errorf("%w: request id %s exists", familyaccess.ErrInvalidArgument, req.ID)
	}
	return familyaccess.ErrDuplicatePending
}

func (l *ledger) GetRequest(ctx context.Context, id string) (*familyaccess.AccessRequest, error) {
	var row requestRow
	if err := l.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

func (l *ledger) TransitionRequest(ctx context.Context, id string, status familyaccess.RequestStatus, at time.Time) error {
	result := l.db.WithContext(ctx).Model(&requestRow{}).
		Where("id = ? AND status = ?", id, string(familyaccess.StatusPending)).
		Updates(map[string]any{"status": string(status), "responded_at": toNanos(at)})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if _, err := l.GetRequest(ctx, id); err != nil {
		return err
	}
	return familyaccess.ErrAlreadyResponded
}

func (l *ledger) ListRequestsByOwner(ctx context.Context, ownerID string, status familyaccess.RequestStatus) ([]*familyaccess.AccessRequest, error) {
	query := l.db.WithContext(ctx).Where("owner_user_id = ?", ownerID)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	var rows []requestRow
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*familyaccess.AccessRequest, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (l *ledger) UpsertGrant(ctx context.Context, g *familyaccess.Grant) (*familyaccess.Grant, error) {
	db := l.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(grantToRow(g)).Error; err != nil {
		return nil, err
	}
	return l.GetGrant(ctx, g.OwnerID, g.ViewerID)
}

func (l *ledger) GetGrant(ctx context.Context, ownerID, viewerID string) (*familyaccess.Grant, error) {
	var row grantRow
	err := l.db.WithContext(ctx).First(&row, "owner_user_id = ? AND viewer_user_id = ?", ownerID, viewerID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

func (l *ledger) DeleteGrant(ctx context.Context, ownerID, viewerID string) error {
	result := l.db.WithContext(ctx).Delete(&grantRow{}, "owner_user_id = ? AND viewer_user_id = ?", ownerID, viewerID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return familyaccess.ErrNotFound
	}
	return nil
}

func (l *ledger) ListGrantsByOwner(ctx context.Context, ownerID string) ([]*familyaccess.Grant, error) {
	return l.listGrants(ctx, "owner_user_id = ?", ownerID)
}

func (l *ledger) ListGrantsByViewer(ctx context.Context, viewerID string) ([]*familyaccess.Grant, error) {
	return l.listGrants(ctx, "viewer_user_id = ?", viewerID)
}

func (l *ledger) listGrants(ctx context.Context, where string, arg string) ([]*familyaccess.Grant, error) {
	var rows []grantRow
	if err := l.db.WithContext(ctx).Where(where, arg).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*familyaccess.Grant, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (l *ledger) CreateInvite(ctx context.Context, t *familyaccess.InviteToken) error {
	err := l.db.WithContext(ctx).Create(inviteToRow(t)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: token exists", familyaccess.ErrInvalidArgument)
	}
	return err
}

func (l *ledger) GetInvite(ctx context.Context, token string) (*familyaccess.InviteToken, error) {
	var row inviteRow
	if err := l.db.WithContext(ctx).First(&row, "invite_token = ?", token).Error; err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

func (l *ledger) FindReusableInvite(ctx context.Context, ownerID string, now time.Time) (*familyaccess.InviteToken, error) {
	var row inviteRow
	err := l.db.WithContext(ctx).
		Where("owner_user_id = ? AND is_used = ? AND expires_at >= ?", ownerID, false, toNanos(now)).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

func (l *ledger) MarkInviteUsed(ctx context.Context, token, usedBy string, at time.Time) (bool, error) {
	result := l.db.WithContext(ctx).Model(&inviteRow{}).
		Where("invite_token = ? AND is_used = ?", token, false).
		Updates(map[string]any{"is_used": true, "used_by_user_id": usedBy, "used_at": toNanos(at)})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 1 {
		return true, nil
	}
	if _, err := l.GetInvite(ctx, token); err != nil {
		return false, err
	}
	return false, nil
}

func (l *ledger) InTx(ctx context.Context, fn func(tx familyaccess.Ledger) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ledger{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return familyaccess.ErrNotFound
	}
	return err
}

var _ familyaccess.Ledger = (*ledger)(nil)
