package models

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shop_backend/utils"
)

// AuditLog is one immutable mutation record. old_values/new_values stay NULL
// when the change set is empty; no update or delete path exists.
type AuditLog struct {
	ID         int          `gorm:"primary_key" json:"id"`
	BusinessId string       `gorm:"size:64;index" json:"business_id"`
	ActorId    *int         `gorm:"index" json:"actor_id"`
	ActorName  string       `gorm:"size:100" json:"actor_name"`
	Event      string       `gorm:"size:100;not null" json:"event"`
	Subject    *DocumentRef `gorm:"embedded" json:"subject"`
	OldValues  []byte       `gorm:"type:blob" json:"old_values"`
	NewValues  []byte       `gorm:"type:blob" json:"new_values"`
	Meta       []byte       `gorm:"type:blob" json:"meta"`
	Ip         string       `gorm:"size:45" json:"ip"`
	UserAgent  string       `gorm:"size:255" json:"user_agent"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// RecordAuditLog appends one audit row inside the caller's transaction.
// The actor resolves from the explicit parameter first, then from the request
// context; ip and user agent come from the context when the HTTP layer set
// them. Storage errors propagate to the caller.
func RecordAuditLog(ctx context.Context, tx *gorm.DB, event string, subject *DocumentRef, oldValues, newValues, meta map[string]any, actor *int) error {
	actorId := actor
	if actorId == nil {
		if uid, ok := utils.GetUserIdFromContext(ctx); ok {
			actorId = &uid
		}
	}
	actorName, _ := utils.GetUserNameFromContext(ctx)
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	ip, _ := utils.GetClientIpFromContext(ctx)
	userAgent, _ := utils.GetUserAgentFromContext(ctx)

	row := AuditLog{
		BusinessId: businessId,
		ActorId:    actorId,
		ActorName:  actorName,
		Event:      event,
		Subject:    subject,
		Ip:         ip,
		UserAgent:  userAgent,
	}

	var err error
	if row.OldValues, err = marshalNonEmpty(oldValues); err != nil {
		return err
	}
	if row.NewValues, err = marshalNonEmpty(newValues); err != nil {
		return err
	}
	if row.Meta, err = marshalNonEmpty(meta); err != nil {
		return err
	}

	return tx.WithContext(ctx).Create(&row).Error
}

func marshalNonEmpty(values map[string]any) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return json.Marshal(values)
}
