package analysis

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/event-weather-service/internal/client"
	"github.com/kjstillabower/event-weather-service/internal/models"
	"github.com/kjstillabower/event-weather-service/internal/observability"
	"github.com/kjstillabower/event-weather-service/internal/suitability"
)

// Comparison is one location's outcome. Exactly one of Suitability and Error is set.
type Comparison struct {
	Location    string                    `json:"location"`
	Date        string                    `json:"date"`
	Weather     *models.WeatherSummary    `json:"weather,omitempty"`
	Suitability *models.SuitabilityResult `json:"suitability,omitempty"`
	Error       string                    `json:"error,omitempty"`
	ErrorKind   client.ErrorKind          `json:"errorKind,omitempty"`

	Err error `json:"-"`
}

// rank orders entries; failed entries rank below any real score.
func (c Comparison) rank() int {
	if c.Suitability == nil {
		return -1
	}
	return c.Suitability.Score
}

// Compare fetches and scores every location for date. Failures stay with their own
// entry and never abort the batch. Results are sorted by score descending, failures
// last, ties in input order.
func (a *Analyzer) Compare(ctx context.Context, locations []string, date time.Time, eventType string) []Comparison {
	observability.ComparisonLocations.Observe(float64(len(locations)))
	dateKey := client.Day(date).Format(models.DateLayout)
	results := make([]Comparison, len(locations))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, loc := range locations {
		g.Go(func() error {
			results[i] = a.compareOne(ctx, loc, date, dateKey, eventType)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].rank() > results[j].rank()
	})
	return results
}

func (a *Analyzer) compareOne(ctx context.Context, location string, date time.Time, dateKey, eventType string) Comparison {
	out := Comparison{Location: location, Date: dateKey}

	summary, err := a.source.GetWeather(ctx, location, date)
	if err == nil && summary == nil {
		err = ErrNoData
	}
	if err != nil {
		out.Err = err
		out.Error = err.Error()
		out.ErrorKind = client.KindOf(err)
		if !errors.Is(err, ErrNoData) {
			a.logger.Debug("comparison entry failed", zap.String("location", location), zap.Error(err))
		}
		return out
	}

	result := suitability.Score(eventType, summary)
	observability.SuitabilityScores.WithLabelValues(suitability.MetricLabel(eventType)).Observe(float64(result.Score))
	out.Weather = summary
	out.Suitability = &result
	return out
}
