package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/repository"
)

// CourseStore is the persistence the course service needs.
type CourseStore interface {
	List(ctx context.Context) ([]model.Course, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Course, error)
	ListModules(ctx context.Context, courseID uuid.UUID) ([]model.CourseModule, error)
	GetContent(ctx context.Context, courseID, moduleID, contentID uuid.UUID) (*model.ContentItem, error)
	Create(ctx context.Context, c *model.Course) error
	CreateModule(ctx context.Context, m *model.CourseModule) error
	CreateContent(ctx context.Context, courseID uuid.UUID, ci *model.ContentItem) error
	MarkCompleted(ctx context.Context, learnerID int, contentID uuid.UUID) error
	Progress(ctx context.Context, learnerID int, courseID uuid.UUID) (completed, total int, err error)
}

// CourseProgress is a learner's completion of one course.
type CourseProgress struct {
	CourseID  uuid.UUID `json:"course_id"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Percent   int       `json:"percent"`
}

// CourseService serves course material to learners and authoring to admins.
type CourseService struct {
	store CourseStore
	log   zerolog.Logger
}

// NewCourseService creates a new CourseService.
func NewCourseService(store CourseStore, log zerolog.Logger) *CourseService {
	return &CourseService{
		store: store,
		log:   log.With().Str("component", "course_service").Logger(),
	}
}

// List returns all courses without their modules.
func (s *CourseService) List(ctx context.Context) ([]model.Course, error) {
	courses, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if courses == nil {
		courses = []model.Course{}
	}
	return courses, nil
}

// Get returns a course with its modules and content.
func (s *CourseService) Get(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	course, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	modules, err := s.store.ListModules(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	if modules == nil {
		modules = []model.CourseModule{}
	}
	course.Modules = modules
	return course, nil
}

// GetModule returns one module of a course.
func (s *CourseService) GetModule(ctx context.Context, courseID, moduleID uuid.UUID) (*model.CourseModule, error) {
	modules, err := s.store.ListModules(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	for i := range modules {
		if modules[i].ID == moduleID {
			return &modules[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetContent returns one content item.
func (s *CourseService) GetContent(ctx context.Context, courseID, moduleID, contentID uuid.UUID) (*model.ContentItem, error) {
	return s.store.GetContent(ctx, courseID, moduleID, contentID)
}

// MarkCompleted records a finished content item and returns the updated course progress.
func (s *CourseService) MarkCompleted(ctx context.Context, learnerID int, courseID, moduleID, contentID uuid.UUID) (*CourseProgress, error) {
	if _, err := s.store.GetContent(ctx, courseID, moduleID, contentID); err != nil {
		return nil, err
	}
	if err := s.store.MarkCompleted(ctx, learnerID, contentID); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	s.log.Debug().
		Int("learner_id", learnerID).
		Str("content_id", contentID.String()).
		Msg("Content completed")
	return s.Progress(ctx, learnerID, courseID)
}

// Progress returns how much of a course a learner has completed.
func (s *CourseService) Progress(ctx context.Context, learnerID int, courseID uuid.UUID) (*CourseProgress, error) {
	if _, err := s.store.GetByID(ctx, courseID); err != nil {
		return nil, err
	}
	completed, total, err := s.store.Progress(ctx, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("course progress: %w", err)
	}
	p := &CourseProgress{CourseID: courseID, Completed: completed, Total: total}
	if total > 0 {
		p.Percent = completed * 100 / total
	}
	return p, nil
}

// Create inserts a course.
func (s *CourseService) Create(ctx context.Context, req model.CreateCourseRequest) (*model.Course, error) {
	c := &model.Course{
		Title:       req.Title,
		Description: req.Description,
		Thumbnail:   req.Thumbnail,
		Modules:     []model.CourseModule{},
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	s.log.Info().Str("course_id", c.ID.String()).Msg("Course created")
	return c, nil
}

// CreateModule adds a module to a course.
func (s *CourseService) CreateModule(ctx context.Context, courseID uuid.UUID, req model.CreateModuleRequest) (*model.CourseModule, error) {
	m := &model.CourseModule{
		CourseID:      courseID,
		Title:         req.Title,
		Description:   req.Description,
		OrderNum:      req.OrderNum,
		Content:       []model.ContentItem{},
		AssessmentIDs: []uuid.UUID{},
	}
	if err := s.store.CreateModule(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateContent adds a content item to a module.
func (s *CourseService) CreateContent(ctx context.Context, courseID, moduleID uuid.UUID, req model.CreateContentRequest) (*model.ContentItem, error) {
	ci := &model.ContentItem{
		ModuleID: moduleID,
		Title:    req.Title,
		Type:     req.Type,
		Content:  req.Content,
		OrderNum: req.OrderNum,
	}
	if err := s.store.CreateContent(ctx, courseID, ci); err != nil {
		return nil, err
	}
	return ci, nil
}
