package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

const transactionColumns = `id, user_id, offer_id, venue_id, redemption_code,
	original_amount, discount_amount, final_amount, category, status, reject_reason, created_at`

// CreateTransaction сохраняет транзакцию. Операция идемпотентна по redemption_code:
// при повторе возвращается ранее сохранённая запись.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx model.Transaction) (*model.Transaction, error) {
	var stored *model.Transaction

	err := r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO transactions (`+transactionColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, NULLIF($11, ''), $12)
			 ON CONFLICT (redemption_code) DO NOTHING`,
			tx.ID, tx.UserID, tx.OfferID, tx.VenueID, tx.RedemptionCode,
			int64(tx.OriginalAmount), int64(tx.DiscountAmount), int64(tx.FinalAmount),
			tx.Category, string(tx.Status), tx.RejectReason, tx.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		row := r.pool.QueryRow(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE redemption_code = $1`,
			tx.RedemptionCode,
		)
		stored, err = scanTransaction(row)
		if err != nil {
			return fmt.Errorf("select transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// CountCompleted возвращает число завершённых транзакций пользователя по предложению
// и общее число завершённых транзакций предложения.
func (r *PostgresRepository) CountCompleted(ctx context.Context, userID, offerID string) (int64, int64, error) {
	var perUser, total int64

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE user_id = $2), COUNT(*)
		 FROM transactions
		 WHERE offer_id = $1 AND status = $3`,
		offerID, userID, string(model.TransactionStatusCompleted),
	).Scan(&perUser, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("count transactions: %w", err)
	}

	return perUser, total, nil
}

// GetTransactionsByUser возвращает историю погашений пользователя, новые первыми.
func (r *PostgresRepository) GetTransactionsByUser(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, *tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		tx                        model.Transaction
		original, discount, final int64
		category, rejectReason    *string
		status                    string
	)

	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.OfferID, &tx.VenueID, &tx.RedemptionCode,
		&original, &discount, &final, &category, &status, &rejectReason, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.OriginalAmount = model.Money(original)
	tx.DiscountAmount = model.Money(discount)
	tx.FinalAmount = model.Money(final)
	tx.Status = model.TransactionStatus(status)
	if category != nil {
		tx.Category = *category
	}
	if rejectReason != nil {
		tx.RejectReason = *rejectReason
	}

	return &tx, nil
}
