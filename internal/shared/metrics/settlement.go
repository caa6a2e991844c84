package metrics

import "github.com/prometheus/client_golang/prometheus"

// Settlement agrupa os contadores do worker de liquidação. Os componentes
// expõem callbacks e o main liga cada callback ao contador correspondente.
type Settlement struct {
	Passes        *prometheus.CounterVec
	WagersSettled *prometheus.CounterVec
	LegsSettled   *prometheus.CounterVec
	Errors        *prometheus.CounterVec
	Overrides     *prometheus.CounterVec

	reg prometheus.Registerer
}

func NewSettlement(reg prometheus.Registerer) *Settlement {
	m := &Settlement{
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_passes_total", Help: "passadas por tipo e resultado",
		}, []string{"kind", "outcome"}),
		WagersSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_wagers_settled_total", Help: "apostas liquidadas por origem e status",
		}, []string{"source", "status"}),
		LegsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_legs_settled_total", Help: "seleções decididas por status",
		}, []string{"status"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_errors_total", Help: "erros por estágio",
		}, []string{"stage"}),
		Overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_overrides_total", Help: "correções manuais por status aplicado",
		}, []string{"status"}),
		reg: reg,
	}
	reg.MustRegister(m.Passes, m.WagersSettled, m.LegsSettled, m.Errors, m.Overrides)
	return m
}

// TrackProviderQuota expõe a cota restante do provedor de resultados (-1 = desconhecida)
func (m *Settlement) TrackProviderQuota(remaining func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "settlement_provider_requests_remaining", Help: "requisições restantes na chave atual",
	}, remaining))
}
