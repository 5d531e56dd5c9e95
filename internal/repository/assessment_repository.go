package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/lms-backend/internal/model"
)

const assessmentColumns = `a.id, a.module_id, a.title, a.description, a.type, a.time_limit_minutes,
	a.status, a.author_id, a.created_at, a.updated_at,
	(SELECT COUNT(*) FROM questions q WHERE q.assessment_id = a.id)`

// AssessmentRepository handles assessments and their questions.
type AssessmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(pool *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{pool: pool}
}

func scanAssessment(row pgx.Row, a *model.Assessment) error {
	return row.Scan(&a.ID, &a.ModuleID, &a.Title, &a.Description, &a.Type, &a.TimeLimitMinutes,
		&a.Status, &a.AuthorID, &a.CreatedAt, &a.UpdatedAt, &a.QuestionCount)
}

func collectAssessments(rows pgx.Rows) ([]model.Assessment, error) {
	defer rows.Close()
	var out []model.Assessment
	for rows.Next() {
		var a model.Assessment
		if err := scanAssessment(rows, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetByID retrieves an assessment by its UUID.
func (r *AssessmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	a := &model.Assessment{}
	err := scanAssessment(r.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments a WHERE a.id = $1`, id), a)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// ListPaginated lists assessments newest first, optionally filtered by status.
func (r *AssessmentRepository) ListPaginated(ctx context.Context, status *model.AssessmentStatus, limit, offset int) ([]model.Assessment, int, error) {
	where := ""
	var args []interface{}
	if status != nil {
		where = ` WHERE a.status = $1`
		args = append(args, *status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM assessments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + assessmentColumns + ` FROM assessments a` + where +
		` ORDER BY a.created_at DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	list, err := collectAssessments(rows)
	return list, total, err
}

// ListPublished returns all PUBLISHED assessments. Used for the learner catalogue and
// cache prewarming.
func (r *AssessmentRepository) ListPublished(ctx context.Context) ([]model.Assessment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assessmentColumns+` FROM assessments a WHERE a.status = $1
		 ORDER BY a.created_at DESC`, model.AssessmentStatusPublished)
	if err != nil {
		return nil, err
	}
	return collectAssessments(rows)
}

// ListPublishedByModule returns the PUBLISHED assessments attached to a course module.
func (r *AssessmentRepository) ListPublishedByModule(ctx context.Context, moduleID uuid.UUID) ([]model.Assessment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assessmentColumns+` FROM assessments a
		 WHERE a.module_id = $1 AND a.status = $2
		 ORDER BY a.created_at`, moduleID, model.AssessmentStatusPublished)
	if err != nil {
		return nil, err
	}
	return collectAssessments(rows)
}

// CreateWithQuestions inserts the assessment and its questions in one transaction.
// Question IDs are generated here so they can be bulk-copied.
func (r *AssessmentRepository) CreateWithQuestions(ctx context.Context, a *model.Assessment, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO assessments (module_id, title, description, type, time_limit_minutes, status, author_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		a.ModuleID, a.Title, a.Description, a.Type, a.TimeLimitMinutes, a.Status, a.AuthorID,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}

	rows := make([][]interface{}, len(questions))
	for i := range questions {
		q := &questions[i]
		q.ID = uuid.New()
		q.AssessmentID = a.ID
		rows[i] = []interface{}{q.ID, q.AssessmentID, q.Text, q.Kind, optionsOrEmpty(q.Options),
			q.CorrectAnswer.String(), q.OrderNum, q.AIGenerated}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"id", "assessment_id", "text", "kind", "options", "correct_answer", "order_num", "ai_generated"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy questions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	a.QuestionCount = len(questions)
	return nil
}

// UpdateStatus updates an assessment's status.
func (r *AssessmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AssessmentStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assessments SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListQuestions retrieves the questions of an assessment, ordered by order_num.
func (r *AssessmentRepository) ListQuestions(ctx context.Context, assessmentID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, assessment_id, text, kind, options, correct_answer, order_num, ai_generated
		 FROM questions WHERE assessment_id = $1
		 ORDER BY order_num, id`, assessmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var answer string
		if err := rows.Scan(&q.ID, &q.AssessmentID, &q.Text, &q.Kind, &q.Options, &answer, &q.OrderNum, &q.AIGenerated); err != nil {
			return nil, err
		}
		if q.CorrectAnswer, err = model.ParseAnswerValue(answer); err != nil {
			return nil, fmt.Errorf("question %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// AnswerKey returns question_id -> canonical correct answer. Used when the Redis key is cold.
func (r *AssessmentRepository) AnswerKey(ctx context.Context, assessmentID uuid.UUID) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, correct_answer FROM questions WHERE assessment_id = $1`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	key := make(map[string]string)
	for rows.Next() {
		var id uuid.UUID
		var answer string
		if err := rows.Scan(&id, &answer); err != nil {
			return nil, err
		}
		key[id.String()] = answer
	}
	return key, rows.Err()
}

// AppendQuestion adds a question at the end of an assessment and returns its position.
func (r *AssessmentRepository) AppendQuestion(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (assessment_id, text, kind, options, correct_answer, order_num, ai_generated)
		 VALUES ($1, $2, $3, $4, $5,
		         (SELECT COALESCE(MAX(order_num) + 1, 0) FROM questions WHERE assessment_id = $1), $6)
		 RETURNING id, order_num`,
		q.AssessmentID, q.Text, q.Kind, optionsOrEmpty(q.Options), q.CorrectAnswer.String(), q.AIGenerated,
	).Scan(&q.ID, &q.OrderNum)
}

func optionsOrEmpty(opts []string) []string {
	if opts == nil {
		return []string{}
	}
	return opts
}
