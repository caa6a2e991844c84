package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict: a seleção mudou entre a leitura e a gravação
	ErrConflict = errors.New("concurrent modification")
)

// Postgres implementa a persistência de apostas e seleções usada na liquidação
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const legColumns = `s.id, s.bet_id, s.position, s.event_id, s.league, s.home_team, s.away_team,
	s.market, s.outcome, s.price, s.point, s.bookmaker, s.commence_time, s.status`

// ListPendingLegs retorna as seleções pending de apostas pending, na ordem de colocação
func (p *Postgres) ListPendingLegs(ctx context.Context) ([]domain.Leg, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+legColumns+`
		FROM bet_selections s
		JOIN bets b ON b.id = s.bet_id
		WHERE s.status = 'pending' AND b.status = 'pending'
		ORDER BY b.placed_at, b.id, s.position`)
	if err != nil {
		return nil, fmt.Errorf("query pending legs: %w", err)
	}
	defer rows.Close()
	return scanLegs(rows)
}

// GetWager carrega a aposta com todas as suas seleções
func (p *Postgres) GetWager(ctx context.Context, wagerID string) (*domain.Wager, error) {
	w, err := scanWager(p.db.QueryRowContext(ctx, `
		SELECT id, house_id, ticket_number, bet_type, stake, combined_odds, potential_payout,
		       status, actual_payout, placed_at, settled_at
		FROM bets WHERE id = $1`, wagerID))
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT `+legColumns+`
		FROM bet_selections s
		WHERE s.bet_id = $1
		ORDER BY s.position`, wagerID)
	if err != nil {
		return nil, fmt.Errorf("query legs of %s: %w", wagerID, err)
	}
	defer rows.Close()

	if w.Legs, err = scanLegs(rows); err != nil {
		return nil, err
	}
	return w, nil
}

// ListOverdueWagerIDs retorna os ids das apostas pending colocadas antes de
// placedBefore. Cada aposta é carregada depois com GetWager.
func (p *Postgres) ListOverdueWagerIDs(ctx context.Context, placedBefore time.Time) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id FROM bets
		WHERE status = 'pending' AND placed_at < $1
		ORDER BY placed_at, id`, placedBefore)
	if err != nil {
		return nil, fmt.Errorf("query overdue wagers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan overdue wager: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateLegStatus grava o status final da seleção. Só altera seleções pending,
// então reaplicar é inofensivo; retorna false quando nada mudou.
func (p *Postgres) UpdateLegStatus(ctx context.Context, legID string, status domain.Status) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE bet_selections SET status=$1, updated_at=NOW() WHERE id=$2 AND status='pending'`,
		string(status), legID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateLegStartTime corrige o horário de início com o valor do provedor
func (p *Postgres) UpdateLegStartTime(ctx context.Context, legID string, start time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE bet_selections SET commence_time=$1, updated_at=NOW() WHERE id=$2`, start.UTC(), legID)
	return err
}

// WagerIDForLeg devolve a aposta dona da seleção
func (p *Postgres) WagerIDForLeg(ctx context.Context, legID string) (string, error) {
	var id string
	err := p.db.QueryRowContext(ctx, `SELECT bet_id FROM bet_selections WHERE id=$1`, legID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

// SettleWager grava status, payout (2 casas) e settled_at de uma aposta pending.
// Retorna false se a aposta já estava liquidada: sem pagamento em dobro.
func (p *Postgres) SettleWager(ctx context.Context, wagerID string, status domain.Status, payout decimal.Decimal, settledAt time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bets SET status=$1, actual_payout=$2, settled_at=$3, updated_at=NOW()
		WHERE id=$4 AND status='pending'`,
		string(status), payout.Round(2).StringFixed(2), settledAt.UTC(), wagerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Override é uma alteração manual já decidida pela camada de serviço
type Override struct {
	LegID           string
	WagerID         string
	Actor           string
	Note            string
	LegStatusBefore domain.Status
	LegStatusAfter  domain.Status
	WagerBefore     domain.Status
	WagerAfter      domain.Status
	Payout          decimal.Decimal
}

// ApplyOverride aplica a alteração manual e registra a auditoria numa única transação.
// Usa lock pessimista na seleção e na aposta; se o status lido antes mudou, retorna ErrConflict.
func (p *Postgres) ApplyOverride(ctx context.Context, o Override) (domain.AuditEntry, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	defer tx.Rollback()

	var legStatus, wagerStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT s.status, b.status
		FROM bet_selections s
		JOIN bets b ON b.id = s.bet_id
		WHERE s.id=$1 AND b.id=$2
		FOR UPDATE`, o.LegID, o.WagerID).Scan(&legStatus, &wagerStatus)
	if err == sql.ErrNoRows {
		return domain.AuditEntry{}, ErrNotFound
	} else if err != nil {
		return domain.AuditEntry{}, err
	}
	if domain.Status(legStatus) != o.LegStatusBefore || domain.Status(wagerStatus) != o.WagerBefore {
		return domain.AuditEntry{}, ErrConflict
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE bet_selections SET status=$1, updated_at=NOW() WHERE id=$2`,
		string(o.LegStatusAfter), o.LegID); err != nil {
		return domain.AuditEntry{}, err
	}

	now := time.Now().UTC()
	if o.WagerAfter != o.WagerBefore {
		if _, err = tx.ExecContext(ctx, `
			UPDATE bets SET status=$1, actual_payout=$2, settled_at=$3, updated_at=NOW()
			WHERE id=$4`,
			string(o.WagerAfter), o.Payout.Round(2).StringFixed(2), now, o.WagerID); err != nil {
			return domain.AuditEntry{}, err
		}
	}

	entry := domain.AuditEntry{
		ID:              uuid.NewString(),
		LegID:           o.LegID,
		WagerID:         o.WagerID,
		Actor:           o.Actor,
		Note:            o.Note,
		LegStatusBefore: o.LegStatusBefore,
		LegStatusAfter:  o.LegStatusAfter,
		WagerBefore:     o.WagerBefore,
		WagerAfter:      o.WagerAfter,
		CreatedAt:       now,
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO settlement_audit
		  (id, selection_id, bet_id, actor, note, old_selection_status, new_selection_status,
		   old_bet_status, new_bet_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		entry.ID, entry.LegID, entry.WagerID, entry.Actor, entry.Note,
		string(entry.LegStatusBefore), string(entry.LegStatusAfter),
		string(entry.WagerBefore), string(entry.WagerAfter), entry.CreatedAt); err != nil {
		return domain.AuditEntry{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.AuditEntry{}, err
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWager(row rowScanner) (*domain.Wager, error) {
	var (
		w         domain.Wager
		betType   string
		status    string
		settledAt sql.NullTime
	)
	err := row.Scan(&w.ID, &w.HouseID, &w.TicketNumber, &betType, &w.Stake, &w.CombinedOdds,
		&w.PotentialPayout, &status, &w.ActualPayout, &w.PlacedAt, &settledAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("scan wager: %w", err)
	}

	w.Type = domain.WagerType(betType)
	w.Status = domain.Status(status)
	if settledAt.Valid {
		t := settledAt.Time
		w.SettledAt = &t
	}
	return &w, nil
}

func scanLegs(rows *sql.Rows) ([]domain.Leg, error) {
	var legs []domain.Leg
	for rows.Next() {
		var (
			l         domain.Leg
			status    string
			point     sql.NullFloat64
			bookmaker sql.NullString
			start     sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.WagerID, &l.Position, &l.EventID, &l.League, &l.HomeTeam, &l.AwayTeam,
			&l.MarketKey, &l.Outcome, &l.Price, &point, &bookmaker, &start, &status); err != nil {
			return nil, fmt.Errorf("scan leg: %w", err)
		}
		l.Status = domain.Status(status)
		if point.Valid {
			v := point.Float64
			l.Point = &v
		}
		if bookmaker.Valid {
			v := bookmaker.String
			l.Bookmaker = &v
		}
		if start.Valid {
			v := start.Time
			l.CommenceTime = &v
		}
		legs = append(legs, l)
	}
	return legs, rows.Err()
}
