package credits

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"atelier/internal/domain"
	"atelier/internal/infra"
	"atelier/internal/sqlinline"
)

// PostgresLedger meters credits against the user_credits table. Every charge
// and refund also appends a credit_ledger row so operators can audit the
// pairing of deductions with outcomes.
type PostgresLedger struct {
	sql    infra.SQLExecutor
	costs  Costs
	logger zerolog.Logger
}

func NewPostgresLedger(sql infra.SQLExecutor, costs Costs, logger zerolog.Logger) *PostgresLedger {
	return &PostgresLedger{sql: sql, costs: costs, logger: logger}
}

func (l *PostgresLedger) CheckAndDeduct(ctx context.Context, userID string, op Operation) (Charge, error) {
	amount := l.costs.For(op)
	row := l.sql.QueryRow(ctx, sqlinline.QChargeCredits, userID, amount)
	var balance int
	if err := row.Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			// Conditional update matched nothing: balance too low.
			return Charge{OK: false, Amount: amount, Message: domain.ErrInsufficientCredits.Error()}, nil
		}
		return Charge{}, fmt.Errorf("charge credits: %w", err)
	}
	if _, err := l.sql.Exec(ctx, sqlinline.QInsertLedgerEntry, userID, string(op), -amount, balance); err != nil {
		l.logger.Error().Err(err).Str("user_id", userID).Msg("credits: ledger entry write failed")
	}
	return Charge{OK: true, Amount: amount, Balance: balance}, nil
}

// Refund adds the amount back. A failed update is retried once; a second
// failure is recorded in ledger_drift so operators can detect balance drift.
// The error is returned for logging only; callers never fail an item over it.
func (l *PostgresLedger) Refund(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return nil
	}
	err := l.refundOnce(ctx, userID, amount)
	if err == nil {
		return nil
	}
	l.logger.Warn().Err(err).Str("user_id", userID).Int("amount", amount).Msg("credits: refund failed, retrying")
	if err = l.refundOnce(ctx, userID, amount); err == nil {
		return nil
	}
	if _, driftErr := l.sql.Exec(ctx, sqlinline.QInsertLedgerDrift, userID, amount, err.Error()); driftErr != nil {
		l.logger.Error().Err(driftErr).Str("user_id", userID).Int("amount", amount).Msg("credits: drift record write failed")
	}
	return fmt.Errorf("refund credits: %w", err)
}

func (l *PostgresLedger) refundOnce(ctx context.Context, userID string, amount int) error {
	row := l.sql.QueryRow(ctx, sqlinline.QRefundCredits, userID, amount)
	var balance int
	if err := row.Scan(&balance); err != nil {
		return err
	}
	if _, err := l.sql.Exec(ctx, sqlinline.QInsertLedgerEntry, userID, "refund", amount, balance); err != nil {
		l.logger.Error().Err(err).Str("user_id", userID).Msg("credits: ledger entry write failed")
	}
	return nil
}

var _ Ledger = (*PostgresLedger)(nil)
