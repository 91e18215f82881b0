package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var ErrPaymentNotFound = errors.New("payment not found")

type PaymentFilter struct {
	OwnerUserID string
	Provider    string
	Type        string
	HasStatus   bool
	Status      int32
	Limit       int32
	Offset      int32
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, external_payment_id, provider, owner_user_id, type, status,
		amount_crypto, amount_fiat_cents, currency, tx_hash, forwarded_tx_hash,
		metadata_json, created_at, updated_at`

func (r *PaymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE payments SET
			status = ?,
			amount_crypto = ?,
			amount_fiat_cents = ?,
			currency = ?,
			tx_hash = ?,
			forwarded_tx_hash = ?,
			metadata_json = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		payment.Status,
		nullableStringValue(payment.AmountCrypto),
		payment.AmountFiatCents,
		payment.Currency,
		nullableStringValue(payment.TxHash),
		nullableStringValue(payment.ForwardedTxHash),
		metadataJSON,
		payment.UpdatedAt,
		payment.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}

	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uint64) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

	payment := &entity.Payment{}
	if err := scanPayment(conn(ctx, r.db).QueryRowContext(ctx, query, id), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) FindByExternalID(ctx context.Context, provider, externalPaymentID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider = ? AND external_payment_id = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(conn(ctx, r.db).QueryRowContext(ctx, query, provider, externalPaymentID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) List(ctx context.Context, filter PaymentFilter) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments`

	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if strings.TrimSpace(filter.OwnerUserID) != "" {
		conditions = append(conditions, "owner_user_id = ?")
		args = append(args, filter.OwnerUserID)
	}
	if strings.TrimSpace(filter.Provider) != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}
	if strings.TrimSpace(filter.Type) != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.HasStatus {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var amountCrypto sql.NullString
	var txHash sql.NullString
	var forwardedTxHash sql.NullString
	var metadataJSON string

	err := scan.Scan(
		&payment.ID,
		&payment.ExternalPaymentID,
		&payment.Provider,
		&payment.OwnerUserID,
		&payment.Type,
		&payment.Status,
		&amountCrypto,
		&payment.AmountFiatCents,
		&payment.Currency,
		&txHash,
		&forwardedTxHash,
		&metadataJSON,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.AmountCrypto = stringPtrFromNull(amountCrypto)
	payment.TxHash = stringPtrFromNull(txHash)
	payment.ForwardedTxHash = stringPtrFromNull(forwardedTxHash)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	payment.Metadata = metadata

	return nil
}
