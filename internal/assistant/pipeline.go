// Package assistant answers natural-language questions about water-quality
// telemetry: it classifies the question, fetches the matching readings,
// aggregates them and phrases the answer.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/aquabot/internal/series"
	"github.com/HerbHall/aquabot/internal/water"
	"github.com/HerbHall/aquabot/pkg/llm"
	"github.com/HerbHall/aquabot/pkg/models"
	"github.com/HerbHall/aquabot/pkg/roles"
	"go.uber.org/zap"
)

// Outcome names the terminal branch a question ended in.
type Outcome string

const (
	OutcomeHelp                Outcome = "help"
	OutcomeAnswered            Outcome = "answered"
	OutcomeNoData              Outcome = "no_data"
	OutcomeNoDataInPeriod      Outcome = "no_data_in_period"
	OutcomeNeedsParameter      Outcome = "needs_parameter"
	OutcomeParameterNotPresent Outcome = "parameter_not_present"
	OutcomeNotEnoughPoints     Outcome = "not_enough_points"
	OutcomeNoIdealRange        Outcome = "no_ideal_range"
	OutcomeUnsupported         Outcome = "unsupported"
)

// Request is one question.
type Request struct {
	Question string
	DeviceID string
	SiteID   string

	// History holds earlier turns of the conversation, oldest first. It
	// only reaches the generator.
	History []llm.Message
}

// Result is the pipeline's answer. Data is set whenever storage was
// consulted, including when it returned nothing.
type Result struct {
	Intent  models.QueryIntent
	Outcome Outcome
	Answer  string
	Data    *DataUsed
}

// DataUsed echoes the data an answer is based on.
type DataUsed struct {
	Type         models.IntentKind                               `json:"type"`
	DeviceID     string                                          `json:"device_id"`
	SiteID       string                                          `json:"site_id"`
	Parameter    *models.WaterParameter                          `json:"parameter,omitempty"`
	Start        *time.Time                                      `json:"start,omitempty"`
	End          *time.Time                                      `json:"end,omitempty"`
	SentAt       *time.Time                                      `json:"sent_at,omitempty"`
	Measurements []models.Measurement                            `json:"measurements,omitempty"`
	Summary      *models.SeriesSummary                           `json:"series_summary,omitempty"`
	Summaries    map[models.WaterParameter]*models.SeriesSummary `json:"summaries,omitempty"`
	Point        *models.MeasurementPoint                        `json:"point,omitempty"`
	Trend        *models.TrendResult                             `json:"trend,omitempty"`
	Ideal        *models.IdealCheck                              `json:"ideal,omitempty"`
	OutOfRange   *int                                            `json:"out_of_range,omitempty"`
}

// query is the state shared by a single handler invocation.
type query struct {
	req    Request
	intent models.QueryIntent
	start  time.Time
	end    time.Time
}

type handler func(ctx context.Context, q *query) (*Result, error)

// Pipeline resolves questions. It holds no per-request state and is safe
// for concurrent use.
type Pipeline struct {
	classifier Classifier
	generator  Generator
	source     roles.TelemetrySource
	periods    series.PeriodResolver
	timeouts   Timeouts
	logger     *zap.Logger
	handlers   map[models.IntentKind]handler
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithGenerator phrases answers through g. Without it the rendered answer
// is returned as is.
func WithGenerator(g Generator) Option {
	return func(p *Pipeline) { p.generator = g }
}

// WithClock sets the clock used to resolve periods.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.periods = series.PeriodResolver{Now: now} }
}

// WithTimeouts bounds the classifier, storage and generator calls.
func WithTimeouts(t Timeouts) Option {
	return func(p *Pipeline) { p.timeouts = t }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline builds a pipeline over a classifier and a telemetry source.
func NewPipeline(classifier Classifier, source roles.TelemetrySource, opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier: classifier,
		source:     source,
		timeouts:   DefaultConfig().Timeouts(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.handlers = map[models.IntentKind]handler{
		models.IntentLatestStatus:   p.latestStatus,
		models.IntentPeriodStatus:   p.periodStatus,
		models.IntentAvgValue:       p.avgValue,
		models.IntentMaxValue:       p.extreme(series.Max),
		models.IntentMinValue:       p.extreme(series.Min),
		models.IntentTrend:          p.trend,
		models.IntentIdealCheck:     p.idealCheck,
		models.IntentComparePeriods: p.comparePeriods,
	}
	return p
}

// Ask runs the full pipeline for one question.
func (p *Pipeline) Ask(ctx context.Context, req Request) (*Result, error) {
	intent, err := p.classify(ctx, req.Question)
	if err != nil {
		return nil, err
	}
	return p.Resolve(ctx, req, intent)
}

// Resolve runs every step after classification for an already classified
// intent.
func (p *Pipeline) Resolve(ctx context.Context, req Request, intent models.QueryIntent) (*Result, error) {
	intent.Normalize()
	if !intent.Kind.NeedsTelemetry() {
		return p.finish(ctx, req, intent, &Result{Outcome: OutcomeHelp, Answer: helpText}), nil
	}
	if intent.Parameter == nil {
		if param, ok := water.InferFromFreeText(req.Question); ok {
			intent.Parameter = &param
		}
	}
	if req.DeviceID == "" || req.SiteID == "" {
		return nil, ErrMissingIdentifiers
	}
	h, ok := p.handlers[intent.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for intent %q", ErrClassifierUnavailable, intent.Kind)
	}
	if intent.Kind.RequiresParameter() && intent.Parameter == nil {
		res := &Result{Outcome: OutcomeNeedsParameter, Answer: renderNeedsParameter(intent.Kind)}
		return p.finish(ctx, req, intent, res), nil
	}
	res, err := h(ctx, &query{req: req, intent: intent})
	if err != nil {
		return nil, err
	}
	return p.finish(ctx, req, intent, res), nil
}

func (p *Pipeline) finish(ctx context.Context, req Request, intent models.QueryIntent, res *Result) *Result {
	res.Intent = intent
	if res.Outcome == OutcomeHelp || res.Outcome == OutcomeAnswered {
		res.Answer = p.generate(ctx, req, res)
	}
	requestsTotal.WithLabelValues(string(intent.Kind), string(res.Outcome)).Inc()
	return res
}

func (p *Pipeline) classify(ctx context.Context, question string) (models.QueryIntent, error) {
	if p.classifier == nil {
		return models.QueryIntent{}, fmt.Errorf("%w: no classifier configured", ErrClassifierUnavailable)
	}
	ctx, cancel := withTimeout(ctx, p.timeouts.Classifier)
	defer cancel()
	defer observe("classify", time.Now())

	intent, err := p.classifier.Classify(ctx, question)
	if err != nil {
		if errors.Is(err, ErrClassifierUnavailable) {
			return models.QueryIntent{}, err
		}
		return models.QueryIntent{}, fmt.Errorf("%w: %w", ErrClassifierUnavailable, err)
	}
	return intent, nil
}

func (p *Pipeline) generate(ctx context.Context, req Request, res *Result) string {
	if p.generator == nil {
		return res.Answer
	}
	ctx, cancel := withTimeout(ctx, p.timeouts.Generator)
	defer cancel()
	defer observe("generate", time.Now())

	text, err := p.generator.Generate(ctx, AnswerContext{
		Question: req.Question,
		Intent:   res.Intent,
		Outcome:  res.Outcome,
		Data:     res.Data,
		Fallback: res.Answer,
		History:  req.History,
	})
	if err != nil || text == "" {
		p.logger.Warn("answer generation failed, using rendered answer",
			zap.String("intent", string(res.Intent.Kind)),
			zap.Error(err),
		)
		return res.Answer
	}
	return text
}

func (p *Pipeline) latestStatus(ctx context.Context, q *query) (*Result, error) {
	doc, err := p.fetchLatest(ctx, q.req.DeviceID, q.req.SiteID)
	if err != nil {
		return nil, err
	}
	data := &DataUsed{Type: q.intent.Kind, DeviceID: q.req.DeviceID, SiteID: q.req.SiteID, Parameter: q.intent.Parameter}
	if doc == nil {
		return &Result{Outcome: OutcomeNoData, Answer: renderNoData(), Data: data}, nil
	}
	sentAt := doc.SentAt
	data.SentAt = &sentAt
	data.Measurements = doc.Measurements

	if q.intent.Parameter == nil {
		return &Result{Outcome: OutcomeAnswered, Answer: renderLatestAll(doc), Data: data}, nil
	}

	param := *q.intent.Parameter
	for _, m := range doc.Measurements {
		if got, ok := water.Normalize(m.Parameter); ok && got == param {
			data.Measurements = []models.Measurement{m}
			if includeIdeal(q.intent) {
				if check, ok := water.CheckIdeal(param, m.Value); ok {
					data.Ideal = &check
				}
			}
			return &Result{Outcome: OutcomeAnswered, Answer: renderLatestOne(param, m, sentAt, data.Ideal), Data: data}, nil
		}
	}
	return &Result{Outcome: OutcomeParameterNotPresent, Answer: renderParameterNotPresent(param, sentAt), Data: data}, nil
}

func (p *Pipeline) periodStatus(ctx context.Context, q *query) (*Result, error) {
	if q.intent.Parameter != nil {
		points, data, res, err := p.fetchRange(ctx, q, *q.intent.Parameter)
		if res != nil || err != nil {
			return res, err
		}
		data.Summary, _ = series.Summarize(points)
		return &Result{Outcome: OutcomeAnswered, Answer: renderPeriod(*q.intent.Parameter, data.Summary), Data: data}, nil
	}

	q.start, q.end = p.periods.Resolve(q.intent)
	data := p.rangeData(q, nil)
	data.Summaries = make(map[models.WaterParameter]*models.SeriesSummary)
	for _, param := range models.Parameters {
		points, err := p.fetchPoints(ctx, q, param)
		if err != nil {
			return nil, err
		}
		if sum, ok := series.Summarize(points); ok {
			data.Summaries[param] = sum
		}
	}
	if len(data.Summaries) == 0 {
		data.Summaries = nil
		return &Result{Outcome: OutcomeNoDataInPeriod, Answer: renderNoDataInPeriod(q.start, q.end), Data: data}, nil
	}
	return &Result{Outcome: OutcomeAnswered, Answer: renderPeriodAll(data.Summaries, q.start, q.end), Data: data}, nil
}

func (p *Pipeline) avgValue(ctx context.Context, q *query) (*Result, error) {
	param := *q.intent.Parameter
	points, data, res, err := p.fetchRange(ctx, q, param)
	if res != nil || err != nil {
		return res, err
	}
	data.Summary, _ = series.Summarize(points)
	if includeIdeal(q.intent) {
		if check, ok := water.CheckIdeal(param, data.Summary.Avg); ok {
			data.Ideal = &check
		}
	}
	return &Result{Outcome: OutcomeAnswered, Answer: renderAverage(param, data.Summary, data.Ideal), Data: data}, nil
}

func (p *Pipeline) extreme(mode series.Mode) handler {
	return func(ctx context.Context, q *query) (*Result, error) {
		param := *q.intent.Parameter
		points, data, res, err := p.fetchRange(ctx, q, param)
		if res != nil || err != nil {
			return res, err
		}
		data.Point, _ = series.Extreme(series.SortChronological(points), mode)
		if includeIdeal(q.intent) {
			if check, ok := water.CheckIdeal(param, data.Point.Value); ok {
				data.Ideal = &check
			}
		}
		return &Result{Outcome: OutcomeAnswered, Answer: renderExtreme(mode, param, data.Point, data.Ideal), Data: data}, nil
	}
}

func (p *Pipeline) trend(ctx context.Context, q *query) (*Result, error) {
	param := *q.intent.Parameter
	points, data, res, err := p.fetchRange(ctx, q, param)
	if res != nil || err != nil {
		return res, err
	}
	tr, ok := series.Trend(series.SortChronological(points))
	if !ok {
		return &Result{Outcome: OutcomeNotEnoughPoints, Answer: renderNotEnoughPoints(param, len(points)), Data: data}, nil
	}
	data.Trend = tr
	return &Result{Outcome: OutcomeAnswered, Answer: renderTrend(param, tr), Data: data}, nil
}

func (p *Pipeline) idealCheck(ctx context.Context, q *query) (*Result, error) {
	param := *q.intent.Parameter
	points, data, res, err := p.fetchRange(ctx, q, param)
	if res != nil || err != nil {
		return res, err
	}
	data.Point, _ = series.Latest(points)
	check, ok := water.CheckIdeal(param, data.Point.Value)
	if !ok {
		return &Result{Outcome: OutcomeNoIdealRange, Answer: renderNoIdealRange(param, data.Point), Data: data}, nil
	}
	data.Ideal = &check

	outside := 0
	for _, pt := range points {
		if pt.Value < check.Min || pt.Value > check.Max {
			outside++
		}
	}
	data.OutOfRange = &outside
	return &Result{Outcome: OutcomeAnswered, Answer: renderIdeal(param, data.Point, check, outside, len(points)), Data: data}, nil
}

func (p *Pipeline) comparePeriods(_ context.Context, _ *query) (*Result, error) {
	return &Result{Outcome: OutcomeUnsupported, Answer: renderUnsupported()}, nil
}

// fetchRange resolves the period and loads the series of param. An empty
// series ends the request with the no-data-in-period answer, returned as a
// non-nil Result.
func (p *Pipeline) fetchRange(ctx context.Context, q *query, param models.WaterParameter) (models.Series, *DataUsed, *Result, error) {
	q.start, q.end = p.periods.Resolve(q.intent)
	points, err := p.fetchPoints(ctx, q, param)
	if err != nil {
		return nil, nil, nil, err
	}
	data := p.rangeData(q, &param)
	if len(points) == 0 {
		return nil, nil, &Result{Outcome: OutcomeNoDataInPeriod, Answer: renderNoDataInPeriod(q.start, q.end), Data: data}, nil
	}
	return points, data, nil, nil
}

func (p *Pipeline) rangeData(q *query, param *models.WaterParameter) *DataUsed {
	start, end := q.start, q.end
	return &DataUsed{
		Type:      q.intent.Kind,
		DeviceID:  q.req.DeviceID,
		SiteID:    q.req.SiteID,
		Parameter: param,
		Start:     &start,
		End:       &end,
	}
}

func (p *Pipeline) fetchPoints(ctx context.Context, q *query, param models.WaterParameter) (models.Series, error) {
	ctx, cancel := withTimeout(ctx, p.timeouts.Storage)
	defer cancel()
	defer observe("storage", time.Now())

	points, err := p.source.FetchRange(ctx, q.req.DeviceID, q.req.SiteID, param, q.start, q.end)
	if err != nil {
		return nil, storageError("fetch range", err)
	}
	return points, nil
}

func (p *Pipeline) fetchLatest(ctx context.Context, deviceID, siteID string) (*models.TelemetryDocument, error) {
	ctx, cancel := withTimeout(ctx, p.timeouts.Storage)
	defer cancel()
	defer observe("storage", time.Now())

	doc, err := p.source.FetchLatest(ctx, deviceID, siteID)
	if err != nil {
		return nil, storageError("fetch latest", err)
	}
	return doc, nil
}

func storageError(op string, err error) error {
	if errors.Is(err, roles.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, roles.ErrStorageUnavailable, err)
}

func includeIdeal(q models.QueryIntent) bool {
	return q.IncludeIdeal != nil && *q.IncludeIdeal
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func observe(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
