package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/reputation/internal/adapters/mq/queue"
	"github.com/okian/reputation/internal/adapters/repository"
	"github.com/okian/reputation/internal/domain/catalog"
	"github.com/okian/reputation/internal/domain/model"
	"github.com/okian/reputation/pkg/logger"
	"github.com/okian/reputation/pkg/metrics"
)

var validate = validator.New()

// Submission is one rating as received from a transport.
type Submission struct {
	RaterID       string   `json:"rater_id" validate:"required,max=128"`
	RatedID       string   `json:"rated_id" validate:"required,max=128"`
	TransactionID string   `json:"transaction_id" validate:"required,max=128"`
	Positive      []string `json:"positive_aspects"`
	Negative      []string `json:"negative_aspects"`
	Comment       string   `json:"comment" validate:"max=500"`
}

// SubmitEvaluation validates sub, rejects repeated transactions and applies
// the evaluation on the shard owning the rated party. It returns once the
// evaluation and the updated record are stored together.
func (s *Service) SubmitEvaluation(ctx context.Context, sub Submission) (ev model.Evaluation, err error) {
	const op = "submit evaluation"

	ctx, span := s.tracer.Start(ctx, "Service.SubmitEvaluation")
	defer func() { finishSpan(span, err) }()

	store, err := s.running()
	if err != nil {
		return model.Evaluation{}, wrap(op, err, nil)
	}
	metrics.RecordEvaluationSubmitted()

	ev, err = s.prepare(sub)
	if err != nil {
		metrics.RecordEvaluationRejected("invalid_input")
		return model.Evaluation{}, wrap(op, ErrInvalidInput, err)
	}
	span.SetAttributes(
		attribute.String("rated_id", ev.RatedID),
		attribute.String("transaction_id", ev.TransactionID),
		attribute.Int("positive_count", len(ev.Positive)),
		attribute.Int("negative_count", len(ev.Negative)),
	)

	if s.claims.Claim(ctx, ev.TransactionID) {
		metrics.RecordEvaluationDuplicate()
		return model.Evaluation{}, wrap(op, ErrDuplicateEvaluation, fmt.Errorf("transaction %s", ev.TransactionID))
	}

	exists, err := store.ExistsEvaluation(ctx, ev.TransactionID)
	if err != nil {
		s.claims.Release(context.WithoutCancel(ctx), ev.TransactionID)
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return model.Evaluation{}, fmt.Errorf("%s: %w", op, err)
		}
		return model.Evaluation{}, wrap(op, ErrStorage, err)
	}
	if exists {
		metrics.RecordEvaluationDuplicate()
		return model.Evaluation{}, wrap(op, ErrDuplicateEvaluation, fmt.Errorf("transaction %s", ev.TransactionID))
	}

	job := queue.NewJob(ctx, ev)
	if err := s.pool.Submit(ctx, job); err != nil {
		s.claims.Release(ctx, ev.TransactionID)
		switch {
		case errors.Is(err, queue.ErrFull):
			metrics.RecordEvaluationRejected("backpressure")
			return model.Evaluation{}, wrap(op, ErrBackpressure, err)
		case errors.Is(err, queue.ErrStopped):
			return model.Evaluation{}, wrap(op, ErrUnavailable, err)
		default:
			return model.Evaluation{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	select {
	case res := <-job.Reply:
		if res.Err != nil {
			return model.Evaluation{}, s.applyFailed(ctx, op, ev.TransactionID, res.Err)
		}
		s.applied(ctx, res.Outcome)
		return res.Outcome.Evaluation, nil
	case <-ctx.Done():
		// The worker always replies; keep the claim only if the apply landed.
		go func() {
			if res := <-job.Reply; res.Err != nil {
				s.claims.Release(context.Background(), ev.TransactionID)
			} else {
				s.applied(context.Background(), res.Outcome)
			}
		}()
		return model.Evaluation{}, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func (s *Service) applyFailed(ctx context.Context, op, transactionID string, err error) error {
	switch {
	case errors.Is(err, ErrDuplicateEvaluation):
		metrics.RecordEvaluationDuplicate()
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, queue.ErrStopped):
		s.claims.Release(ctx, transactionID)
		return wrap(op, ErrUnavailable, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.claims.Release(ctx, transactionID)
		return fmt.Errorf("%s: %w", op, err)
	default:
		s.claims.Release(ctx, transactionID)
		return wrap(op, ErrStorage, err)
	}
}

func (s *Service) applied(ctx context.Context, out queue.Outcome) {
	metrics.RecordEvaluationApplied()
	metrics.RecordScoreDelta(out.Delta)
	if out.Before.Tier != out.After.Tier {
		metrics.RecordTierTransition(out.Before.Tier.String(), out.After.Tier.String())
		s.logger.Info(ctx, "tier changed",
			logger.String("party_id", out.After.PartyID),
			logger.String("from", out.Before.Tier.String()),
			logger.String("to", out.After.Tier.String()),
			logger.Int("score", out.After.Score),
		)
	}
	s.logger.Debug(ctx, "evaluation applied",
		logger.String("evaluation_id", out.Evaluation.ID),
		logger.String("transaction_id", out.Evaluation.TransactionID),
		logger.String("party_id", out.After.PartyID),
		logger.Int("delta", out.Delta),
		logger.Int("score", out.After.Score),
	)
}

// apply runs on the shard worker owning ev.RatedID.
func (s *Service) apply(ctx context.Context, ev model.Evaluation) (queue.Outcome, error) {
	var out queue.Outcome
	err := s.store.Atomically(ctx, func(tx repository.Tx) error {
		now := s.now()
		if _, err := tx.EnsureRecord(ctx, ev.RatedID, now); err != nil {
			return fmt.Errorf("ensure record: %w", err)
		}

		saved, err := tx.InsertEvaluation(ctx, ev)
		if errors.Is(err, repository.ErrDuplicate) {
			return wrap("insert evaluation", ErrDuplicateEvaluation, err)
		}
		if err != nil {
			return fmt.Errorf("insert evaluation: %w", err)
		}

		delta := s.scorer.ComputeDelta(ev.Positive, ev.Negative)
		current, err := tx.FindRecord(ctx, ev.RatedID)
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		score := s.scorer.ApplyDelta(current.Score, delta)

		updated, err := tx.UpsertRecord(ctx, ev.RatedID, repository.RecordUpdate{
			Score:          score,
			Tier:           s.scorer.TierOf(score),
			IncrementCount: true,
		}, now)
		if err != nil {
			return fmt.Errorf("update record: %w", err)
		}

		out = queue.Outcome{Evaluation: saved, Delta: delta, Before: current, After: updated}
		return nil
	})
	if err != nil {
		return queue.Outcome{}, err
	}
	return out, nil
}

// prepare validates sub and turns it into an evaluation ready to apply.
func (s *Service) prepare(sub Submission) (model.Evaluation, error) {
	sub.RaterID = strings.TrimSpace(sub.RaterID)
	sub.RatedID = strings.TrimSpace(sub.RatedID)
	sub.TransactionID = strings.TrimSpace(sub.TransactionID)
	if sub.RaterID == "" {
		sub.RaterID = s.defaultRaterID
	}

	if err := validate.Struct(sub); err != nil {
		return model.Evaluation{}, describeValidation(err)
	}

	positive, err := s.aspects(sub.Positive, catalog.Positive)
	if err != nil {
		return model.Evaluation{}, err
	}
	negative, err := s.aspects(sub.Negative, catalog.Negative)
	if err != nil {
		return model.Evaluation{}, err
	}

	return model.Evaluation{
		ID:            uuid.NewString(),
		RaterID:       sub.RaterID,
		RatedID:       sub.RatedID,
		TransactionID: sub.TransactionID,
		Positive:      positive,
		Negative:      negative,
		Comment:       sub.Comment,
		CreatedAt:     s.now(),
	}, nil
}

// aspects normalizes raw codes and drops repeats, keeping first occurrences.
func (s *Service) aspects(raw []string, want catalog.Polarity) ([]catalog.Code, error) {
	out := make([]catalog.Code, 0, len(raw))
	seen := make(map[catalog.Code]struct{}, len(raw))
	for _, r := range raw {
		code := catalog.Normalize(r)
		if code == "" {
			return nil, fmt.Errorf("empty %s aspect", want)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		if s.strictAspects {
			got, err := s.catalog.PolarityOf(code)
			if err != nil {
				if hint, ok := s.catalog.Suggest(r); ok {
					return nil, fmt.Errorf("%w (did you mean %q?)", err, hint)
				}
				return nil, err
			}
			if got != want {
				return nil, fmt.Errorf("%w: %q is a %s aspect", catalog.ErrUnknownAspect, code, got)
			}
		}
		out = append(out, code)
	}
	return out, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "max":
			msgs = append(msgs, fe.Field()+" exceeds "+fe.Param()+" characters")
		default:
			msgs = append(msgs, fe.Field()+" failed "+fe.Tag())
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
