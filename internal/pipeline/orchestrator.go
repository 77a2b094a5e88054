// Package pipeline coordinates normalization, classification and the
// user-service calls for uploaded images.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Brownie44l1/deepcatcher-api/internal/imageproc"
	"github.com/Brownie44l1/deepcatcher-api/internal/metrics"
	"github.com/Brownie44l1/deepcatcher-api/internal/userservice"
	"github.com/rs/zerolog"
)

// Orchestrator runs every action synchronously; nothing is queued or done in
// the background.
type Orchestrator struct {
	classifier Classifier
	service    PredictionService
	imageSize  int
	logger     zerolog.Logger
}

func New(c Classifier, service PredictionService, imageSize int, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		classifier: c,
		service:    service,
		imageSize:  imageSize,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
}

// ClassifyBatch processes uploads in order. A failing image only affects its
// own Item.
func (o *Orchestrator) ClassifyBatch(ctx context.Context, uploads []Upload) []Item {
	items := make([]Item, len(uploads))
	for i, u := range uploads {
		items[i] = o.classify(ctx, i, u)
	}
	return items
}

// Classify processes a single upload.
func (o *Orchestrator) Classify(ctx context.Context, upload Upload) Item {
	return o.classify(ctx, 0, upload)
}

func (o *Orchestrator) classify(ctx context.Context, index int, upload Upload) Item {
	item := Item{Index: index, Upload: upload, State: Uploaded}
	log := o.log(ctx).With().Int("index", index).Str("filename", upload.Filename).Logger()

	tensor, err := imageproc.Normalize(upload.Data, o.imageSize, o.imageSize)
	if err != nil {
		metrics.Failure(metrics.StageNormalize)
		log.Warn().Err(err).Msg("image rejected")
		item.Err = err
		return item
	}
	item.State = Normalized

	start := time.Now()
	result, err := o.classifier.Classify(tensor)
	metrics.Inference(time.Since(start))
	if err != nil {
		metrics.Failure(metrics.StageClassify)
		log.Error().Err(err).Msg("classification failed")
		item.Err = err
		return item
	}
	item.State = Classified
	item.Result = &result

	metrics.Prediction(result.Label)
	log.Debug().Str("class", result.Label).Float64("confidence", result.Confidence).Msg("image classified")
	return item
}

// Save persists a classified item for the session's user. Unauthenticated
// sessions are refused without contacting the user-service.
func (o *Orchestrator) Save(ctx context.Context, session Session, item *Item) (SaveOutcome, error) {
	if item == nil {
		return SaveOutcome{}, errors.New("no item to save")
	}
	if !session.Authenticated {
		metrics.Refused("save")
		o.log(ctx).Warn().Int("index", item.Index).Msg("save refused: not logged in")
		return SaveOutcome{Outcome: Outcome{Refused: true, Warning: WarnSaveLogin}}, nil
	}
	if item.State != Classified || item.Result == nil {
		return SaveOutcome{}, fmt.Errorf("item %d is %s, only classified items can be saved", item.Index, item.State)
	}

	user, err := o.service.FetchUserID(ctx, session.Token)
	if err != nil {
		metrics.Failure(metrics.StagePersist)
		o.log(ctx).Error().Err(err).Msg("failed to resolve user id")
		return SaveOutcome{}, err
	}

	ack, err := o.service.SavePrediction(ctx, userservice.SaveRequest{
		User:           user,
		PredictedClass: item.Result.Label,
		Confidence:     item.Result.Confidence,
		Filename:       item.Upload.Filename,
		Image:          item.Upload.Data,
	}, session.Token)
	if err != nil {
		metrics.Failure(metrics.StagePersist)
		o.log(ctx).Error().Err(err).Int64("user", int64(user)).Msg("failed to save prediction")
		return SaveOutcome{}, err
	}

	item.State = Persisted
	o.log(ctx).Info().Int64("user", int64(user)).Str("class", item.Result.Label).Msg("prediction saved")
	return SaveOutcome{Ack: ack}, nil
}

// History returns stored predictions in the order the service sent them.
func (o *Orchestrator) History(ctx context.Context, session Session, user *userservice.UserID) (HistoryOutcome, error) {
	if !session.Authenticated {
		metrics.Refused("history")
		o.log(ctx).Warn().Msg("history refused: not logged in")
		return HistoryOutcome{Outcome: Outcome{Refused: true, Warning: WarnHistoryLogin}}, nil
	}

	records, err := o.service.FetchHistory(ctx, session.Token, user)
	if err != nil {
		o.log(ctx).Error().Err(err).Msg("failed to fetch prediction history")
		return HistoryOutcome{}, err
	}
	return HistoryOutcome{Records: records}, nil
}

// Reports returns the reports filed by the session's user.
func (o *Orchestrator) Reports(ctx context.Context, session Session) (ReportsOutcome, error) {
	if !session.Authenticated {
		metrics.Refused("reports")
		o.log(ctx).Warn().Msg("reports refused: not logged in")
		return ReportsOutcome{Outcome: Outcome{Refused: true, Warning: WarnReportsLogin}}, nil
	}

	user, err := o.service.FetchUserID(ctx, session.Token)
	if err != nil {
		o.log(ctx).Error().Err(err).Msg("failed to resolve user id")
		return ReportsOutcome{}, err
	}

	reports, err := o.service.FetchUserReports(ctx, user, session.Token)
	if err != nil {
		o.log(ctx).Error().Err(err).Int64("user", int64(user)).Msg("failed to fetch reports")
		return ReportsOutcome{}, err
	}
	return ReportsOutcome{User: user, Reports: reports}, nil
}

// log prefers the request-scoped logger carried by ctx.
func (o *Orchestrator) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		scoped := l.With().Str("component", "pipeline").Logger()
		return &scoped
	}
	return &o.logger
}
