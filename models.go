package authflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRecord is the durable profile document keyed by user id. The OTP
// pair is non-nil only while the record is unverified and a challenge is
// outstanding; verify and expiry both clear it as a unit.
type UserRecord struct {
	bun.BaseModel `bun:"table:user_records,alias:rec"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	SecretKey     string     `bun:"secret_key" json:"secret_key,omitempty"`
	Verified      bool       `bun:"is_verified" json:"is_verified,omitempty"`
	VerifiedAt    *time.Time `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
	OTP           *string    `bun:"otp,nullzero" json:"otp,omitempty"`
	OTPCreatedAt  *time.Time `bun:"otp_created_at,nullzero" json:"otp_created_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasChallenge reports whether an OTP challenge is outstanding.
func (r *UserRecord) HasChallenge() bool {
	return r != nil && r.OTP != nil && r.OTPCreatedAt != nil
}

// CachedProfile is the client-local mirror of the record fields the
// dashboard needs between reloads. Present only while a session is
// authenticated; cleared on sign-out.
type CachedProfile struct {
	Username  string `json:"username"`
	SecretKey string `json:"secret_key"`
}

// ProfileFromRecord derives the cacheable subset of a record.
func ProfileFromRecord(record *UserRecord) *CachedProfile {
	if record == nil {
		return nil
	}
	return &CachedProfile{
		Username:  record.Username,
		SecretKey: record.SecretKey,
	}
}

// NoticeCategory classifies a flash notice.
type NoticeCategory string

const (
	NoticeInfo    NoticeCategory = "info"
	NoticeSuccess NoticeCategory = "success"
	NoticeWarning NoticeCategory = "warning"
	NoticeError   NoticeCategory = "error"
)

// Notice is a one-shot message surfaced on the next page load.
type Notice struct {
	Category NoticeCategory `json:"category"`
	Message  string         `json:"message"`
}

func InfoNotice(msg string) Notice    { return Notice{Category: NoticeInfo, Message: msg} }
func SuccessNotice(msg string) Notice { return Notice{Category: NoticeSuccess, Message: msg} }
func WarningNotice(msg string) Notice { return Notice{Category: NoticeWarning, Message: msg} }
func ErrorNotice(msg string) Notice   { return Notice{Category: NoticeError, Message: msg} }
