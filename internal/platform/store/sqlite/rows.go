package sqlite

import (
	"time"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/directory"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/records"
)

// Timestamps are stored as Unix nanoseconds so range filters compare
// integers, not formatted strings.

type requestRow struct {
	ID          string `gorm:"primaryKey"`
	RequesterID string `gorm:"column:requester_user_id;not null;index"`
	OwnerID     string `gorm:"column:owner_user_id;not null;index"`
	Status      string `gorm:"not null"`
	Created     int64  `gorm:"column:created_at;not null"`
	Responded   *int64 `gorm:"column:responded_at"`
}

func (requestRow) TableName() string { return "family_access_requests" }

type grantRow struct {
	ID       string `gorm:"primaryKey"`
	OwnerID  string `gorm:"column:owner_user_id;not null;uniqueIndex:idx_family_medical_access_pair"`
	ViewerID string `gorm:"column:viewer_user_id;not null;uniqueIndex:idx_family_medical_access_pair;index"`
	CanView  bool   `gorm:"column:can_view_medical_records;not null"`
	Created  int64  `gorm:"column:created_at;not null"`
}

func (grantRow) TableName() string { return "family_medical_access" }

type inviteRow struct {
	Token    string  `gorm:"column:invite_token;primaryKey"`
	OwnerID  string  `gorm:"column:owner_user_id;not null;index"`
	Created  int64   `gorm:"column:created_at;not null"`
	Expires  int64   `gorm:"column:expires_at;not null"`
	IsUsed   bool    `gorm:"column:is_used;not null"`
	UsedByID *string `gorm:"column:used_by_user_id"`
	Used     *int64  `gorm:"column:used_at"`
}

func (inviteRow) TableName() string { return "family_invite_tokens" }

type identityRow struct {
	UserID      string `gorm:"column:user_id;primaryKey"`
	DisplayName string `gorm:"column:display_name"`
	Email       string `gorm:"column:email"`
}

func (identityRow) TableName() string { return "user_profiles" }

type recordRow struct {
	ID          string `gorm:"primaryKey"`
	OwnerID     string `gorm:"column:owner_user_id;not null;index"`
	Title       string `gorm:"not null"`
	RecordType  string `gorm:"column:record_type;not null"`
	Description string
	Created     int64 `gorm:"column:created_at;not null"`
}

func (recordRow) TableName() string { return "medical_records" }

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func toNanosPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	n := t.UnixNano()
	return &n
}

func fromNanosPtr(n *int64) *time.Time {
	if n == nil {
		return nil
	}
	t := fromNanos(*n)
	return &t
}

func requestToRow(r *familyaccess.AccessRequest) *requestRow {
	return &requestRow{
		ID:          r.ID,
		RequesterID: r.RequesterID,
		OwnerID:     r.OwnerID,
		Status:      string(r.Status),
		Created:     toNanos(r.CreatedAt),
		Responded:   toNanosPtr(r.RespondedAt),
	}
}

func (r *requestRow) model() *familyaccess.AccessRequest {
	return &familyaccess.AccessRequest{
		ID:          r.ID,
		RequesterID: r.RequesterID,
		OwnerID:     r.OwnerID,
		Status:      familyaccess.RequestStatus(r.Status),
		CreatedAt:   fromNanos(r.Created),
		RespondedAt: fromNanosPtr(r.Responded),
	}
}

func grantToRow(g *familyaccess.Grant) *grantRow {
	return &grantRow{ID: g.ID, OwnerID: g.OwnerID, ViewerID: g.ViewerID, CanView: g.CanView, Created: toNanos(g.CreatedAt)}
}

func (r *grantRow) model() *familyaccess.Grant {
	return &familyaccess.Grant{ID: r.ID, OwnerID: r.OwnerID, ViewerID: r.ViewerID, CanView: r.CanView, CreatedAt: fromNanos(r.Created)}
}

func inviteToRow(t *familyaccess.InviteToken) *inviteRow {
	return &inviteRow{
		Token:    t.Token,
		OwnerID:  t.OwnerID,
		Created:  toNanos(t.CreatedAt),
		Expires:  toNanos(t.ExpiresAt),
		IsUsed:   t.IsUsed,
		UsedByID: t.UsedByID,
		Used:     toNanosPtr(t.UsedAt),
	}
}

func (r *inviteRow) model() *familyaccess.InviteToken {
	return &familyaccess.InviteToken{
		Token:     r.Token,
		OwnerID:   r.OwnerID,
		CreatedAt: fromNanos(r.Created),
		ExpiresAt: fromNanos(r.Expires),
		IsUsed:    r.IsUsed,
		UsedByID:  r.UsedByID,
		UsedAt:    fromNanosPtr(r.Used),
	}
}

func (r *identityRow) model() *directory.Identity {
	return &directory.Identity{UserID: r.UserID, DisplayName: r.DisplayName, Email: r.Email}
}

func recordToRow(rec *records.Record) *recordRow {
	return &recordRow{
		ID:          rec.ID,
		OwnerID:     rec.OwnerID,
		Title:       rec.Title,
		RecordType:  string(rec.RecordType),
		Description: rec.Description,
		Created:     toNanos(rec.CreatedAt),
	}
}

func (r *recordRow) model() *records.Record {
	return &records.Record{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		RecordType:  records.RecordType(r.RecordType),
		Description: r.Description,
		CreatedAt:   fromNanos(r.Created),
	}
}
