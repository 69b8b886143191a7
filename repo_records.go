package authflow

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRecords is the persistence surface for verification records. It
// extends the generic repository with the patch-oriented operations the
// verification flow needs.
type UserRecords interface {
	repository.Repository[*UserRecord]

	Read(ctx context.Context, id uuid.UUID) (*UserRecord, error)
	ReadTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*UserRecord, error)
	Write(ctx context.Context, id uuid.UUID, patch RecordPatch) (*UserRecord, error)
	WriteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, patch RecordPatch) (*UserRecord, error)
	ScanByEmail(ctx context.Context, email string) (*UserRecord, error)
	ScanByEmailTx(ctx context.Context, tx bun.IDB, email string) (*UserRecord, error)
	Create(ctx context.Context, record *UserRecord, criteria ...repository.InsertCriteria) (*UserRecord, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *UserRecord, criteria ...repository.InsertCriteria) (*UserRecord, error)
}

type records struct {
	repository.Repository[*UserRecord]
	db *bun.DB
}

var (
	_ UserRecords = (*records)(nil)
	_ RecordStore = (*records)(nil)
)

func NewUserRecordsRepository(db *bun.DB) UserRecords {
	repo := repository.NewRepository[*UserRecord](db, repository.ModelHandlers[*UserRecord]{
		NewRecord: func() *UserRecord { return &UserRecord{} },
		GetID: func(r *UserRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *UserRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &records{
		Repository: repo,
		db:         db,
	}
}

func (a *records) Read(ctx context.Context, id uuid.UUID) (*UserRecord, error) {
	return a.ReadTx(ctx, a.db, id)
}

func (a *records) ReadTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*UserRecord, error) {
	record := &UserRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, mapRecordError(err, map[string]any{"id": id.String()})
	}

	return record, nil
}

func (a *records) ScanByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return a.ScanByEmailTx(ctx, a.db, email)
}

func (a *records) ScanByEmailTx(ctx context.Context, tx bun.IDB, email string) (*UserRecord, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	record := &UserRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = ?", email).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, mapRecordError(err, map[string]any{"email": email})
	}

	return record, nil
}

func (a *records) Create(ctx context.Context, record *UserRecord, criteria ...repository.InsertCriteria) (*UserRecord, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *records) CreateTx(ctx context.Context, tx bun.IDB, record *UserRecord, criteria ...repository.InsertCriteria) (*UserRecord, error) {
	prepareRecordDefaults(record)
	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return nil, mapRecordError(err, map[string]any{"email": record.Email})
	}
	return created, nil
}

// Write applies the patch in a single UPDATE so the caller never
// observes a half-applied verification transition.
func (a *records) Write(ctx context.Context, id uuid.UUID, patch RecordPatch) (*UserRecord, error) {
	return a.WriteTx(ctx, a.db, id, patch)
}

func (a *records) WriteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, patch RecordPatch) (*UserRecord, error) {
	now := time.Now()
	record := &UserRecord{ID: id, UpdatedAt: &now}
	columns := []string{"updated_at"}

	if patch.Username != nil {
		record.Username = *patch.Username
		columns = append(columns, "username")
	}
	if patch.SecretKey != nil {
		record.SecretKey = *patch.SecretKey
		columns = append(columns, "secret_key")
	}
	if patch.Verified != nil {
		record.Verified = *patch.Verified
		columns = append(columns, "is_verified")
	}
	if patch.VerifiedAt != nil {
		record.VerifiedAt = patch.VerifiedAt
		columns = append(columns, "verified_at")
	}
	if patch.OTP != nil {
		record.OTP = patch.OTP
		columns = append(columns, "otp")
	}
	if patch.OTPCreatedAt != nil {
		record.OTPCreatedAt = patch.OTPCreatedAt
		columns = append(columns, "otp_created_at")
	}
	if patch.ClearChallenge {
		record.OTP = nil
		record.OTPCreatedAt = nil
		columns = append(columns, "otp", "otp_created_at")
	}

	res, err := tx.NewUpdate().
		Model(record).
		Column(columns...).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	if err != nil {
		return nil, mapRecordError(err, map[string]any{"id": id.String()})
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, goerrors.New("user record not found", goerrors.CategoryNotFound).
			WithTextCode(textCodeRecordMissing).
			WithMetadata(map[string]any{"id": id.String()})
	}

	return a.ReadTx(ctx, tx, id)
}

func prepareRecordDefaults(record *UserRecord) {
	if record == nil {
		return
	}

	record.Email = strings.ToLower(strings.TrimSpace(record.Email))

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := time.Now()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
}

// mapRecordError normalizes driver and repository errors into the
// categorized errors the rest of the package inspects.
func mapRecordError(err error, meta map[string]any) error {
	if err == nil {
		return nil
	}

	if repository.IsRecordNotFound(err) || strings.Contains(err.Error(), "no rows in result set") {
		return goerrors.Wrap(err, goerrors.CategoryNotFound, "user record not found").
			WithTextCode(textCodeRecordMissing).
			WithMetadata(meta)
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, "user record store failure").
		WithMetadata(meta)
}
