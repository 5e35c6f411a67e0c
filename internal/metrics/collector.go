package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/battwatch/battwatch/internal/diagnose"
)

// latestCollector reads the latest record on every scrape so the exported
// values always match /api/latest.
type latestCollector struct {
	src LatestReader

	temp        *prometheus.Desc
	voltage     *prometheus.Desc
	current     *prometheus.Desc
	soc         *prometheus.Desc
	soh         *prometheus.Desc
	healthScore *prometheus.Desc
	rul         *prometheus.Desc
	risk        *prometheus.Desc
	charging    *prometheus.Desc
	anomaly     *prometheus.Desc
}

func newLatestCollector(src LatestReader) *latestCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &latestCollector{
		src:         src,
		temp:        desc("temperature_celsius", "Pack temperature of the latest sample."),
		voltage:     desc("voltage_volts", "Pack voltage of the latest sample."),
		current:     desc("current_amperes", "Pack current of the latest sample; positive while charging."),
		soc:         desc("soc_percent", "State of charge of the latest sample."),
		soh:         desc("soh_percent", "State of health of the latest sample."),
		healthScore: desc("health_score", "Composite health score of the latest record (0-100)."),
		rul:         desc("rul_months", "Estimated remaining useful life in months."),
		risk:        desc("risk_level", "Risk classification: 0=LOW 1=MEDIUM 2=HIGH.", "kind"),
		charging:    desc("charging", "1 while the pack is charging."),
		anomaly:     desc("anomaly", "1 when the named anomaly is present in the latest record.", "name"),
	}
}

func (c *latestCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.temp
	ch <- c.voltage
	ch <- c.current
	ch <- c.soc
	ch <- c.soh
	ch <- c.healthScore
	ch <- c.rul
	ch <- c.risk
	ch <- c.charging
	ch <- c.anomaly
}

func (c *latestCollector) Collect(ch chan<- prometheus.Metric) {
	rec := c.src.Latest()
	if rec == nil {
		return
	}
	t, d := rec.Telemetry, rec.Diagnostics

	gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, labels...)
	}
	gauge(c.temp, t.Temp)
	gauge(c.voltage, t.Voltage)
	gauge(c.current, t.Current)
	gauge(c.soc, t.SoC)
	gauge(c.soh, t.SoH)
	gauge(c.healthScore, float64(d.HealthScore))
	gauge(c.rul, float64(d.RULMonths))
	gauge(c.risk, float64(d.Risk.Rank()), "risk")
	gauge(c.risk, float64(d.FireRisk.Rank()), "fire")
	gauge(c.charging, boolFloat(d.Charging))
	for _, name := range diagnose.AnomalyNames {
		gauge(c.anomaly, boolFloat(d.HasAnomaly(name)), name)
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
