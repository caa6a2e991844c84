package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/aggregator"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/matcher"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/sportkey"
)

// sportGames são os jogos de uma chave de esporte buscados nesta passada
type sportGames struct {
	completed []domain.GameRecord
	active    []domain.GameRecord
}

// gameBook é o cache local de uma passada. É criado em RunPass e passado
// explicitamente; nada sobrevive entre passadas.
type gameBook struct {
	catalog sportkey.Catalog
	keys    map[string]string // liga → chave
	games   map[string]sportGames
}

func (b *gameBook) keyFor(league string) string {
	return b.keys[domain.Normalize(league)]
}

// RunPass executa uma passada de liquidação:
//
//	seleções sem horário → lost
//	agrupa por aposta, resolve chaves de esporte
//	busca jogos finalizados e ativos por chave (uma vez cada)
//	avalia cada seleção pending e agrega o veredito por aposta
//
// Erro numa aposta não interrompe as demais. Só falha na leitura inicial
// é devolvida a quem chamou.
func (p *Processor) RunPass(ctx context.Context) (Result, error) {
	now := p.now()
	log := p.log()

	legs, err := p.Store.ListPendingLegs(ctx)
	if err != nil {
		p.onError("list_pending")
		return Result{}, fmt.Errorf("list pending legs: %w", err)
	}

	var res Result
	if len(legs) == 0 {
		log.Info("settlement pass: no pending legs")
		return res, nil
	}

	forfeited := p.forfeitUntimed(ctx, legs)

	order := wagerOrder(legs)
	book := p.loadGameBook(ctx, legs, now)

	for _, wagerID := range order {
		res.Processed++
		settled, err := p.settleWager(ctx, wagerID, book, now)
		if err != nil {
			res.Failed++
			p.onError("wager")
			log.Error("settle wager failed", zap.String("wagerId", wagerID), zap.Error(err))
			continue
		}
		if settled {
			res.Settled++
		}
	}

	log.Info("settlement pass complete",
		zap.Int("pendingLegs", len(legs)),
		zap.Int("forfeited", forfeited),
		zap.Int("sportKeys", len(book.games)),
		zap.Int("processed", res.Processed),
		zap.Int("settled", res.Settled),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", time.Since(now)),
	)
	return res, nil
}

// forfeitUntimed marca como lost as seleções sem horário de início registrado
func (p *Processor) forfeitUntimed(ctx context.Context, legs []domain.Leg) int {
	n := 0
	for i := range legs {
		l := &legs[i]
		if l.CommenceTime != nil {
			continue
		}
		changed, err := p.Store.UpdateLegStatus(ctx, l.ID, domain.StatusLost)
		if err != nil {
			// a seleção continua pending e é tratada de novo dentro da aposta
			p.onError("forfeit")
			p.log().Warn("forfeit leg failed", zap.String("legId", l.ID), zap.Error(err))
			continue
		}
		if changed {
			l.Status = domain.StatusLost
			n++
			p.log().Info("leg forfeited: no start time", zap.String("legId", l.ID), zap.String("wagerId", l.WagerID))
			if p.OnLegSettled != nil {
				p.OnLegSettled(domain.StatusLost)
			}
		}
	}
	return n
}

// wagerOrder devolve os ids de aposta sem repetição, na ordem das seleções
func wagerOrder(legs []domain.Leg) []string {
	seen := make(map[string]struct{}, len(legs))
	order := make([]string, 0, len(legs))
	for _, l := range legs {
		if _, ok := seen[l.WagerID]; ok {
			continue
		}
		seen[l.WagerID] = struct{}{}
		order = append(order, l.WagerID)
	}
	return order
}

// loadGameBook resolve as chaves das seleções já iniciadas e busca os jogos de
// cada chave distinta. Falha numa chave resulta em lista vazia só para ela.
func (p *Processor) loadGameBook(ctx context.Context, legs []domain.Leg, now time.Time) *gameBook {
	book := &gameBook{
		keys:  make(map[string]string),
		games: make(map[string]sportGames),
	}

	var due []domain.Leg
	for _, l := range legs {
		if l.Status == domain.StatusPending && l.CommenceTime != nil && !l.CommenceTime.After(now) {
			due = append(due, l)
		}
	}
	if len(due) == 0 {
		return book
	}

	book.catalog = p.Resolver.BuildCatalog(ctx, p.Provider)

	var sportKeys []string
	for _, l := range due {
		league := domain.Normalize(l.League)
		key, ok := book.keys[league]
		if !ok {
			key = p.Resolver.Resolve(l.League, book.catalog)
			book.keys[league] = key
		}
		if key == sportkey.Unknown {
			continue
		}
		if _, ok := book.games[key]; ok {
			continue
		}
		book.games[key] = sportGames{}
		sportKeys = append(sportKeys, key)
	}

	for _, key := range sportKeys {
		book.games[key] = p.fetchGames(ctx, key)
	}
	return book
}

func (p *Processor) fetchGames(ctx context.Context, key string) sportGames {
	var g sportGames
	completed, err := p.Provider.FetchCompletedGames(ctx, key, p.daysBack())
	if err != nil {
		p.onError("fetch_completed")
		p.log().Warn("fetch completed games failed, skipping sport this pass", zap.String("sportKey", key), zap.Error(err))
		return sportGames{}
	}
	g.completed = completed

	active, err := p.Provider.FetchActiveGames(ctx, key)
	if err != nil {
		// sem a lista de ativos o jogo não encontrado só fica aguardando resultado
		p.onError("fetch_active")
		p.log().Warn("fetch active games failed", zap.String("sportKey", key), zap.Error(err))
	}
	g.active = active
	return g
}

// settleWager avalia as seleções pending de uma aposta e grava o veredito
// quando ele for final. Panics ficam restritos à aposta.
func (p *Processor) settleWager(ctx context.Context, wagerID string, book *gameBook, now time.Time) (settled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic settling wager: %v", r)
		}
	}()

	w, err := p.Store.GetWager(ctx, wagerID)
	if err != nil {
		return false, fmt.Errorf("load wager: %w", err)
	}
	if w.Status.Terminal() {
		return false, nil
	}

	stale := false
	for i := range w.Legs {
		leg := &w.Legs[i]
		if leg.Status.Terminal() {
			continue
		}

		status, ok, err := p.resolveLeg(ctx, *leg, book, now)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}

		changed, err := p.Store.UpdateLegStatus(ctx, leg.ID, status)
		if err != nil {
			return false, fmt.Errorf("update leg %s: %w", leg.ID, err)
		}
		if !changed {
			stale = true
			continue
		}
		leg.Status = status
		if p.OnLegSettled != nil {
			p.OnLegSettled(status)
		}
	}

	// outra escrita chegou antes: agrega sobre o que está gravado
	if stale {
		if w, err = p.Store.GetWager(ctx, wagerID); err != nil {
			return false, fmt.Errorf("reload wager: %w", err)
		}
	}

	out := aggregator.Aggregate(*w, aggregator.LegStatuses(w.Legs))
	if !out.Final() {
		return false, nil
	}
	return p.finalize(ctx, w, out.Status, out.Payout, SourceAuto, now)
}

// resolveLeg devolve o status final da seleção, ou ok=false para adiar
func (p *Processor) resolveLeg(ctx context.Context, leg domain.Leg, book *gameBook, now time.Time) (domain.Status, bool, error) {
	log := p.log().With(zap.String("legId", leg.ID), zap.String("wagerId", leg.WagerID))

	key := book.keyFor(leg.League)
	games := book.games[key]

	m := matcher.Match(leg, games.completed, games.active, now)
	switch m.Outcome {
	case matcher.Forfeit:
		return domain.StatusLost, true, nil
	case matcher.NotStarted:
		return "", false, nil
	}

	if key == sportkey.Unknown {
		log.Warn("league not resolvable to a sport key", zap.String("league", leg.League))
		return "", false, nil
	}

	switch m.Outcome {
	case matcher.StillLive, matcher.AwaitingResult:
		log.Debug("leg deferred", zap.String("reason", m.Outcome.String()), zap.String("sportKey", key))
		return "", false, nil
	}

	if m.StartTimeDrift {
		if err := p.Store.UpdateLegStartTime(ctx, leg.ID, m.Game.CommenceTime); err != nil {
			return "", false, fmt.Errorf("update start time of leg %s: %w", leg.ID, err)
		}
		log.Info("leg start time corrected",
			zap.Timep("stored", leg.CommenceTime), zap.Time("provider", m.Game.CommenceTime))
	}

	status, ok := p.Evaluator.Evaluate(leg, *m.Game)
	return status, ok, nil
}
