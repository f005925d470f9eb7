// Package metrics holds the Prometheus collectors shared by the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "outreach"

var (
	// LLMRequests counts Gemini calls by operation and outcome.
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "Gemini API calls by operation and outcome.",
	}, []string{"op", "outcome"})

	// LLMKeyRotations counts API key switches after rate limiting.
	LLMKeyRotations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_key_rotations_total",
		Help:      "API key rotations triggered by rate limiting.",
	})

	LeadsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leads_processed_total",
		Help:      "Campaign leads processed by outcome (sent, failed).",
	}, []string{"outcome"})

	CampaignRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "campaign_runs_total",
		Help:      "Campaign runs by final outcome.",
	}, []string{"outcome"})

	ScrapePages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_pages_total",
		Help:      "Scraped pages by kind (primary, secondary) and outcome.",
	}, []string{"kind", "outcome"})

	NotifyEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notify_events_total",
		Help:      "Progress events by event name and delivery result.",
	}, []string{"event", "result"})
)
