package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/lms-backend/internal/model"
)

const aiQuestionColumns = `id, assessment_id, source_content_id, source_content, text, kind, options,
	correct_answer, status, created_at, updated_at`

// AIQuestionRepository handles generated questions awaiting review.
type AIQuestionRepository struct {
	pool *pgxpool.Pool
}

// NewAIQuestionRepository creates a new AIQuestionRepository.
func NewAIQuestionRepository(pool *pgxpool.Pool) *AIQuestionRepository {
	return &AIQuestionRepository{pool: pool}
}

func scanAIQuestion(row pgx.Row, q *model.AIQuestion) error {
	var answer string
	if err := row.Scan(&q.ID, &q.AssessmentID, &q.SourceContentID, &q.SourceContent, &q.Text, &q.Kind,
		&q.Options, &answer, &q.Status, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return err
	}
	v, err := model.ParseAnswerValue(answer)
	if err != nil {
		return fmt.Errorf("ai question %s: %w", q.ID, err)
	}
	q.CorrectAnswer = v
	return nil
}

// List returns proposals, optionally filtered by status, newest first.
func (r *AIQuestionRepository) List(ctx context.Context, status *model.AIQuestionStatus) ([]model.AIQuestion, error) {
	query := `SELECT ` + aiQuestionColumns + ` FROM ai_questions`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AIQuestion
	for rows.Next() {
		var q model.AIQuestion
		if err := scanAIQuestion(rows, &q); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// GetByID returns one proposal.
func (r *AIQuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AIQuestion, error) {
	q := &model.AIQuestion{}
	if err := scanAIQuestion(r.pool.QueryRow(ctx,
		`SELECT `+aiQuestionColumns+` FROM ai_questions WHERE id = $1`, id), q); err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

// Create stores a new pending proposal.
func (r *AIQuestionRepository) Create(ctx context.Context, q *model.AIQuestion) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO ai_questions (assessment_id, source_content_id, source_content, text, kind, options, correct_answer, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		q.AssessmentID, q.SourceContentID, q.SourceContent, q.Text, q.Kind, optionsOrEmpty(q.Options),
		q.CorrectAnswer.String(), q.Status,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
}

// Update saves edited fields and status.
func (r *AIQuestionRepository) Update(ctx context.Context, q *model.AIQuestion) error {
	return notFound(r.pool.QueryRow(ctx,
		`UPDATE ai_questions
		 SET assessment_id = $2, text = $3, kind = $4, options = $5, correct_answer = $6,
		     status = $7, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		q.ID, q.AssessmentID, q.Text, q.Kind, optionsOrEmpty(q.Options), q.CorrectAnswer.String(), q.Status,
	).Scan(&q.UpdatedAt))
}

// Approve marks the proposal approved and appends it to its assessment in one transaction.
func (r *AIQuestionRepository) Approve(ctx context.Context, q *model.AIQuestion, question *model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO questions (assessment_id, text, kind, options, correct_answer, order_num, ai_generated)
		 VALUES ($1, $2, $3, $4, $5,
		         (SELECT COALESCE(MAX(order_num) + 1, 0) FROM questions WHERE assessment_id = $1), TRUE)
		 RETURNING id, order_num`,
		question.AssessmentID, question.Text, question.Kind, optionsOrEmpty(question.Options),
		question.CorrectAnswer.String(),
	).Scan(&question.ID, &question.OrderNum)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}

	err = tx.QueryRow(ctx,
		`UPDATE ai_questions SET status = $2, assessment_id = $3, updated_at = NOW()
		 WHERE id = $1 RETURNING updated_at`,
		q.ID, model.AIQuestionApproved, question.AssessmentID,
	).Scan(&q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update ai question: %w", notFound(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	q.Status = model.AIQuestionApproved
	q.AssessmentID = &question.AssessmentID
	return nil
}
