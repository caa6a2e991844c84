package sportkey

import (
	"context"

	"go.uber.org/zap"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
)

// Unknown é devolvido quando nenhuma tabela reconhece a liga
const Unknown = ""

// Sport é um item do catálogo do provedor (título → chave)
type Sport struct {
	Key   string
	Title string
}

// CatalogFetcher busca o catálogo de esportes do provedor de resultados
type CatalogFetcher interface {
	FetchSportsCatalog(ctx context.Context) ([]Sport, error)
}

// Catalog é o mapa dinâmico de uma passada: título normalizado → chave,
// mais o conjunto de chaves válidas
type Catalog struct {
	byTitle map[string]string
	keys    map[string]struct{}
}

// NewCatalog indexa a lista de esportes
func NewCatalog(sports []Sport) Catalog {
	c := Catalog{
		byTitle: make(map[string]string, len(sports)),
		keys:    make(map[string]struct{}, len(sports)),
	}
	for _, s := range sports {
		key := domain.Normalize(s.Key)
		if key == "" {
			continue
		}
		c.keys[key] = struct{}{}
		if title := domain.Normalize(s.Title); title != "" {
			c.byTitle[title] = s.Key
		}
	}
	return c
}

func (c Catalog) Len() int { return len(c.keys) }

// staticKeys cobre as ligas mais comuns quando o catálogo dinâmico falha.
// "other" é um balde explícito: nunca é liquidado automaticamente.
var staticKeys = map[string]string{
	"nfl":    "americanfootball_nfl",
	"ncaaf":  "americanfootball_ncaaf",
	"cfb":    "americanfootball_ncaaf",
	"nba":    "basketball_nba",
	"wnba":   "basketball_wnba",
	"ncaab":  "basketball_ncaab",
	"cbb":    "basketball_ncaab",
	"mlb":    "baseball_mlb",
	"nhl":    "icehockey_nhl",
	"atp":    "tennis_atp",
	"tennis": "tennis_atp",
	"wta":    "tennis_wta",
	"epl":    "soccer_epl",
	"mls":    "soccer_usa_mls",
	"ufc":    "mma_mixed_martial_arts",
	"mma":    "mma_mixed_martial_arts",
	"other":  Unknown,
}

// Resolver traduz o rótulo de liga persistido para a chave do provedor
type Resolver struct {
	log    *zap.Logger
	static map[string]string
}

func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log, static: staticKeys}
}

// BuildCatalog busca o catálogo uma vez por passada. Falha não interrompe a
// passada: devolve catálogo vazio e a tabela estática assume.
func (r *Resolver) BuildCatalog(ctx context.Context, f CatalogFetcher) Catalog {
	sports, err := f.FetchSportsCatalog(ctx)
	if err != nil {
		r.log.Warn("sports catalog fetch failed, using static mapping only", zap.Error(err))
		return NewCatalog(nil)
	}
	return NewCatalog(sports)
}

// Resolve aplica catálogo dinâmico, depois tabela estática, depois Unknown
func (r *Resolver) Resolve(label string, catalog Catalog) string {
	n := domain.Normalize(label)
	if n == "" {
		return Unknown
	}
	if key, ok := catalog.byTitle[n]; ok {
		return key
	}
	if _, ok := catalog.keys[n]; ok {
		return n
	}
	if key, ok := r.static[n]; ok {
		return key
	}
	return Unknown
}
