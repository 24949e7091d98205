package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Значения метки result у story_choices_total
const (
	choiceResultSuccess = "success"
	choiceResultInvalid = "invalid_option"
)

// Metrics - счетчики сервиса сессий.
type Metrics struct {
	SessionsCreated      prometheus.Counter
	Choices              *prometheus.CounterVec
	SessionsExpired      prometheus.Counter
	EventPublishFailures prometheus.Counter
}

// NewMetrics регистрирует счетчики в переданном реестре.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "story_sessions_created_total",
			Help: "Total number of created game sessions.",
		}),
		Choices: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "story_choices_total",
			Help: "Total number of submitted choices by result.",
		}, []string{"result"}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "story_sessions_expired_total",
			Help: "Total number of sessions removed after inactivity.",
		}),
		EventPublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "story_events_publish_failures_total",
			Help: "Total number of session events that could not be published.",
		}),
	}
}
