package answer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAnswered  = "answered"
	outcomeNoContext = "no_context"
	outcomeFallback  = "fallback"
)

// AnswersTotal counts answered questions.
// Labels: outcome (answered, no_context, fallback)
var AnswersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "docrag",
		Subsystem: "answer",
		Name:      "questions_total",
		Help:      "Total number of questions answered",
	},
	[]string{"outcome"},
)
