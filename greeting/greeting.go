// Package greeting answers "who is user N" with the user's own greeting.
package greeting

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sugawani/tellname/models"
	"github.com/sugawani/tellname/query"
)

// Finder loads a user by id. *query.Query satisfies it.
type Finder interface {
	Execute(ctx context.Context, userID models.ID) (*models.User, error)
}

const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultError    = "error"
)

type Greeter struct {
	finder    Finder
	greetings *prometheus.CounterVec
}

// NewGreeter registers its counter on reg. A nil reg keeps the counter unregistered.
func NewGreeter(finder Finder, reg prometheus.Registerer) *Greeter {
	greetings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tellname",
		Name:      "greetings_total",
		Help:      "Greetings requested, by result.",
	}, []string{"result"})

	if reg != nil {
		if err := reg.Register(greetings); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
			existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(err)
			}
			greetings = existing
		}
	}

	return &Greeter{finder: finder, greetings: greetings}
}

func (g *Greeter) Greet(ctx context.Context, userID models.ID) (string, error) {
	u, err := g.finder.Execute(ctx, userID)
	if err != nil {
		if errors.Is(err, query.ErrUserNotFound) {
			g.greetings.WithLabelValues(resultNotFound).Inc()
		} else {
			g.greetings.WithLabelValues(resultError).Inc()
		}
		return "", err
	}

	g.greetings.WithLabelValues(resultOK).Inc()
	return u.TellName(), nil
}
