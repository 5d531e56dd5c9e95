package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/lms-backend/internal/model"
)

// AttemptRepository reads persisted attempts. Writes go through the persistence workers.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// ListByAssessment returns every attempt of an assessment with learner names and
// integrity event counts, best score first.
func (r *AttemptRepository) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]model.AttemptSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT t.id, t.learner_id, u.name, t.score, t.completed, t.auto_submitted,
		        (SELECT COUNT(*) FROM integrity_events e WHERE e.attempt_id = t.id),
		        t.started_at, t.submitted_at
		 FROM attempts t JOIN users u ON u.id = t.learner_id
		 WHERE t.assessment_id = $1
		 ORDER BY t.score DESC, t.submitted_at`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AttemptSummary
	for rows.Next() {
		var s model.AttemptSummary
		if err := rows.Scan(&s.AttemptID, &s.LearnerID, &s.LearnerName, &s.Score, &s.Completed,
			&s.AutoSubmitted, &s.IntegrityCount, &s.StartedAt, &s.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestScores returns the most recent score per assessment for a learner.
func (r *AttemptRepository) LatestScores(ctx context.Context, learnerID int) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (assessment_id) assessment_id, score
		 FROM attempts WHERE learner_id = $1
		 ORDER BY assessment_id, submitted_at DESC`, learnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var score int
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		out[id] = score
	}
	return out, rows.Err()
}

// GetDetail loads one attempt with its answers and integrity log.
func (r *AttemptRepository) GetDetail(ctx context.Context, attemptID uuid.UUID) (*model.AttemptDetail, error) {
	d := &model.AttemptDetail{}
	err := r.pool.QueryRow(ctx,
		`SELECT t.id, t.assessment_id, t.learner_id, u.name, t.score, t.completed, t.auto_submitted,
		        t.feedback, t.started_at, t.submitted_at
		 FROM attempts t JOIN users u ON u.id = t.learner_id
		 WHERE t.id = $1`, attemptID,
	).Scan(&d.AttemptID, &d.AssessmentID, &d.LearnerID, &d.LearnerName, &d.Score, &d.Completed,
		&d.AutoSubmitted, &d.Feedback, &d.StartedAt, &d.SubmittedAt)
	if err != nil {
		return nil, notFound(err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, question_id, answer, is_correct FROM attempt_answers WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	d.Answers = []model.AnswerRecord{}
	for rows.Next() {
		var a model.AnswerRecord
		if err := rows.Scan(&a.AttemptID, &a.QuestionID, &a.Answer, &a.IsCorrect); err != nil {
			rows.Close()
			return nil, err
		}
		d.Answers = append(d.Answers, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT kind, description, occurred_at FROM integrity_events
		 WHERE attempt_id = $1 ORDER BY occurred_at, id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	d.IntegrityEvents = []model.IntegrityEvent{}
	for rows.Next() {
		var e model.IntegrityEvent
		if err := rows.Scan(&e.Kind, &e.Description, &e.OccurredAt); err != nil {
			return nil, err
		}
		d.IntegrityEvents = append(d.IntegrityEvents, e)
	}
	d.IntegrityCount = len(d.IntegrityEvents)
	return d, rows.Err()
}

// IntegrityCounts returns learner_id -> persisted integrity events for an assessment.
func (r *AttemptRepository) IntegrityCounts(ctx context.Context, assessmentID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT learner_id, COUNT(*) FROM integrity_events
		 WHERE assessment_id = $1 GROUP BY learner_id`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]int64)
	for rows.Next() {
		var id int
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}
