package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/lms-backend/internal/model"
)

// CourseRepository handles courses, modules and content items.
type CourseRepository struct {
	pool *pgxpool.Pool
}

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

// List returns all courses without their modules.
func (r *CourseRepository) List(ctx context.Context) ([]model.Course, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, thumbnail, created_at FROM courses ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Thumbnail, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Modules = []model.CourseModule{}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetByID returns a course without its modules.
func (r *CourseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	c := &model.Course{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, thumbnail, created_at FROM courses WHERE id = $1`, id,
	).Scan(&c.ID, &c.Title, &c.Description, &c.Thumbnail, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListModules returns the modules of a course with content items and published assessment IDs.
func (r *CourseRepository) ListModules(ctx context.Context, courseID uuid.UUID) ([]model.CourseModule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, course_id, title, description, order_num FROM course_modules
		 WHERE course_id = $1 ORDER BY order_num, id`, courseID)
	if err != nil {
		return nil, err
	}
	var modules []model.CourseModule
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var m model.CourseModule
		if err := rows.Scan(&m.ID, &m.CourseID, &m.Title, &m.Description, &m.OrderNum); err != nil {
			rows.Close()
			return nil, err
		}
		m.Content = []model.ContentItem{}
		m.AssessmentIDs = []uuid.UUID{}
		index[m.ID] = len(modules)
		modules = append(modules, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		return []model.CourseModule{}, nil
	}

	rows, err = r.pool.Query(ctx,
		`SELECT ci.id, ci.module_id, ci.title, ci.type, ci.content, ci.order_num
		 FROM content_items ci JOIN course_modules m ON m.id = ci.module_id
		 WHERE m.course_id = $1 ORDER BY ci.order_num, ci.id`, courseID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var ci model.ContentItem
		if err := rows.Scan(&ci.ID, &ci.ModuleID, &ci.Title, &ci.Type, &ci.Content, &ci.OrderNum); err != nil {
			rows.Close()
			return nil, err
		}
		if i, ok := index[ci.ModuleID]; ok {
			modules[i].Content = append(modules[i].Content, ci)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT a.id, a.module_id FROM assessments a JOIN course_modules m ON m.id = a.module_id
		 WHERE m.course_id = $1 AND a.status = 'PUBLISHED' ORDER BY a.created_at`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var aid, mid uuid.UUID
		if err := rows.Scan(&aid, &mid); err != nil {
			return nil, err
		}
		if i, ok := index[mid]; ok {
			modules[i].AssessmentIDs = append(modules[i].AssessmentIDs, aid)
		}
	}
	return modules, rows.Err()
}

// GetContent returns one content item of a course module.
func (r *CourseRepository) GetContent(ctx context.Context, courseID, moduleID, contentID uuid.UUID) (*model.ContentItem, error) {
	ci := &model.ContentItem{}
	err := r.pool.QueryRow(ctx,
		`SELECT ci.id, ci.module_id, ci.title, ci.type, ci.content, ci.order_num
		 FROM content_items ci JOIN course_modules m ON m.id = ci.module_id
		 WHERE ci.id = $1 AND ci.module_id = $2 AND m.course_id = $3`, contentID, moduleID, courseID,
	).Scan(&ci.ID, &ci.ModuleID, &ci.Title, &ci.Type, &ci.Content, &ci.OrderNum)
	if err != nil {
		return nil, notFound(err)
	}
	return ci, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, c *model.Course) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO courses (title, description, thumbnail) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		c.Title, c.Description, c.Thumbnail,
	).Scan(&c.ID, &c.CreatedAt)
}

// CreateModule inserts a module into a course.
func (r *CourseRepository) CreateModule(ctx context.Context, m *model.CourseModule) error {
	return notFound(r.pool.QueryRow(ctx,
		`INSERT INTO course_modules (course_id, title, description, order_num)
		 SELECT id, $2, $3, $4 FROM courses WHERE id = $1
		 RETURNING id`,
		m.CourseID, m.Title, m.Description, m.OrderNum,
	).Scan(&m.ID))
}

// CreateContent inserts a content item into a module of the given course.
func (r *CourseRepository) CreateContent(ctx context.Context, courseID uuid.UUID, ci *model.ContentItem) error {
	return notFound(r.pool.QueryRow(ctx,
		`INSERT INTO content_items (module_id, title, type, content, order_num)
		 SELECT id, $3, $4, $5, $6 FROM course_modules WHERE id = $1 AND course_id = $2
		 RETURNING id`,
		ci.ModuleID, courseID, ci.Title, ci.Type, ci.Content, ci.OrderNum,
	).Scan(&ci.ID))
}

// MarkCompleted records that a learner finished a content item.
func (r *CourseRepository) MarkCompleted(ctx context.Context, learnerID int, contentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO content_progress (learner_id, content_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, learnerID, contentID)
	return err
}

// Progress returns completed and total content items of a course for a learner.
func (r *CourseRepository) Progress(ctx context.Context, learnerID int, courseID uuid.UUID) (completed, total int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(p.content_id), COUNT(ci.id)
		 FROM content_items ci
		 JOIN course_modules m ON m.id = ci.module_id
		 LEFT JOIN content_progress p ON p.content_id = ci.id AND p.learner_id = $1
		 WHERE m.course_id = $2`, learnerID, courseID,
	).Scan(&completed, &total)
	return completed, total, err
}
