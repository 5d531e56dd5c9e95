package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/repository"
	"github.com/stemsi/lms-backend/internal/response"
)

// Domain Errors
var (
	ErrNoQuestions              = model.ErrNoQuestions
	ErrAssessmentNotDraft       = errors.New("assessment status is not DRAFT")
	ErrAssessmentNotPublished   = errors.New("assessment status is not PUBLISHED")
	ErrAssessmentNotAvailable   = errors.New("assessment not published or payload not cached")
	ErrUnknownAssessmentFilter  = errors.New("unknown assessment filter")
	ErrAssessmentAlreadyArchive = errors.New("assessment is already archived")
)

// AssessmentFilter is a learner catalogue tab.
type AssessmentFilter string

const (
	FilterAll       AssessmentFilter = "all"
	FilterUpcoming  AssessmentFilter = "upcoming"
	FilterCompleted AssessmentFilter = "completed"
	FilterPractice  AssessmentFilter = "practice"
	FilterGraded    AssessmentFilter = "graded"
)

// ParseAssessmentFilter accepts an empty string as FilterAll.
func ParseAssessmentFilter(s string) (AssessmentFilter, error) {
	switch f := AssessmentFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterUpcoming, FilterCompleted, FilterPractice, FilterGraded:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAssessmentFilter, s)
	}
}

// Matches reports whether a catalogue entry belongs to the tab and the search query.
// The query matches title or description, case-insensitively.
func (f AssessmentFilter) Matches(a *model.LearnerAssessment, query string) bool {
	if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
		if !strings.Contains(strings.ToLower(a.Title), q) &&
			!strings.Contains(strings.ToLower(a.Description), q) {
			return false
		}
	}
	switch f {
	case FilterUpcoming:
		return !a.Completed
	case FilterCompleted:
		return a.Completed
	case FilterPractice:
		return a.Type == model.AssessmentTypePractice
	case FilterGraded:
		return a.Type.Graded()
	default:
		return true
	}
}

// AssessmentStore is the persistence the service needs.
type AssessmentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error)
	ListPaginated(ctx context.Context, status *model.AssessmentStatus, limit, offset int) ([]model.Assessment, int, error)
	ListPublished(ctx context.Context) ([]model.Assessment, error)
	ListPublishedByModule(ctx context.Context, moduleID uuid.UUID) ([]model.Assessment, error)
	CreateWithQuestions(ctx context.Context, a *model.Assessment, questions []model.Question) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.AssessmentStatus) error
	ListQuestions(ctx context.Context, assessmentID uuid.UUID) ([]model.Question, error)
	AppendQuestion(ctx context.Context, q *model.Question) error
}

// ScoreReader returns a learner's latest score per assessment.
type ScoreReader interface {
	LatestScores(ctx context.Context, learnerID int) (map[uuid.UUID]int, error)
}

// AssessmentService handles assessment authoring, the learner catalogue and Redis caching.
type AssessmentService struct {
	store  AssessmentStore
	scores ScoreReader
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(store AssessmentStore, scores ScoreReader, rdb *redis.Client, log zerolog.Logger) *AssessmentService {
	return &AssessmentService{
		store:  store,
		scores: scores,
		rdb:    rdb,
		log:    log.With().Str("component", "assessment_service").Logger(),
	}
}

// GetByID retrieves an assessment by its UUID.
func (s *AssessmentService) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	return s.store.GetByID(ctx, id)
}

// GetWithQuestions returns the admin view of an assessment, answers included.
func (s *AssessmentService) GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Assessment, []model.Question, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	questions, err := s.store.ListQuestions(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return a, questions, nil
}

// List retrieves assessments page by page.
func (s *AssessmentService) List(ctx context.Context, status *model.AssessmentStatus, page, perPage int) ([]model.Assessment, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	list, total, err := s.store.ListPaginated(ctx, status, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if list == nil {
		list = []model.Assessment{}
	}
	return list, response.NewPagination(page, perPage, total), nil
}

// Create inserts a new DRAFT assessment with its questions.
func (s *AssessmentService) Create(ctx context.Context, authorID int, req model.CreateAssessmentRequest) (*model.Assessment, error) {
	if len(req.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	a := &model.Assessment{
		ModuleID:         req.ModuleID,
		Title:            req.Title,
		Description:      req.Description,
		Type:             req.Type,
		TimeLimitMinutes: req.TimeLimitMinutes,
		Status:           model.AssessmentStatusDraft,
		AuthorID:         authorID,
	}
	questions := make([]model.Question, len(req.Questions))
	for i := range req.Questions {
		questions[i] = req.Questions[i].ToQuestion(i)
	}
	if err := s.store.CreateWithQuestions(ctx, a, questions); err != nil {
		return nil, err
	}
	s.log.Info().Str("assessment_id", a.ID.String()).Int("questions", len(questions)).Msg("Assessment created")
	return a, nil
}

// AddQuestion appends a question. Published assessments are re-cached.
func (s *AssessmentService) AddQuestion(ctx context.Context, assessmentID uuid.UUID, req model.CreateQuestionRequest) (*model.Question, error) {
	a, err := s.store.GetByID(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a.Status == model.AssessmentStatusArchived {
		return nil, ErrAssessmentAlreadyArchive
	}
	q := req.ToQuestion(0)
	q.AssessmentID = assessmentID
	if err := s.store.AppendQuestion(ctx, &q); err != nil {
		return nil, err
	}
	if a.Status == model.AssessmentStatusPublished {
		if err := s.WarmCache(ctx, a); err != nil {
			return nil, err
		}
	}
	return &q, nil
}

// Publish changes status to PUBLISHED and caches the payload + answer key in Redis.
func (s *AssessmentService) Publish(ctx context.Context, id uuid.UUID) error {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != model.AssessmentStatusDraft {
		return ErrAssessmentNotDraft
	}

	if err := s.WarmCache(ctx, a); err != nil {
		return err
	}
	if err := s.store.UpdateStatus(ctx, id, model.AssessmentStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("assessment_id", id.String()).Msg("Assessment published")
	return nil
}

// Archive hides an assessment from learners and drops its cache.
func (s *AssessmentService) Archive(ctx context.Context, id uuid.UUID) error {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status == model.AssessmentStatusArchived {
		return ErrAssessmentAlreadyArchive
	}
	if err := s.store.UpdateStatus(ctx, id, model.AssessmentStatusArchived); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	s.rdb.Del(ctx,
		config.CacheKey.AssessmentPayloadKey(id.String()),
		config.CacheKey.AssessmentAnswerKey(id.String()),
	)
	s.log.Info().Str("assessment_id", id.String()).Msg("Assessment archived")
	return nil
}

// RefreshCache re-caches the payload + answer key for a published assessment.
func (s *AssessmentService) RefreshCache(ctx context.Context, id uuid.UUID) error {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != model.AssessmentStatusPublished {
		return ErrAssessmentNotPublished
	}
	if err := s.WarmCache(ctx, a); err != nil {
		return err
	}
	s.log.Info().Str("assessment_id", id.String()).Msg("Cache refreshed")
	return nil
}

// WarmCache loads an assessment's payload and answer key from PostgreSQL into Redis.
func (s *AssessmentService) WarmCache(ctx context.Context, a *model.Assessment) error {
	questions, err := s.store.ListQuestions(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	payload := BuildPayload(a, questions)
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid assessment %s: %w", a.ID, err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	answerKey := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		answerKey[q.ID.String()] = q.CorrectAnswer.String()
	}

	payloadKey := config.CacheKey.AssessmentPayloadKey(a.ID.String())
	keyKey := config.CacheKey.AssessmentAnswerKey(a.ID.String())

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, payloadKey, payloadJSON, 0)
	pipe.Del(ctx, keyKey)
	pipe.HSet(ctx, keyKey, answerKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("assessment_id", a.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// BuildPayload strips correct answers from the questions.
func BuildPayload(a *model.Assessment, questions []model.Question) model.AssessmentPayload {
	public := make([]model.PublicQuestion, len(questions))
	for i := range questions {
		public[i] = questions[i].Public()
	}
	return model.AssessmentPayload{
		AssessmentID:     a.ID,
		Title:            a.Title,
		Description:      a.Description,
		Type:             a.Type,
		TimeLimitMinutes: a.TimeLimitMinutes,
		Questions:        public,
	}
}

// PrewarmAllCaches loads all published assessments into Redis on application startup.
func (s *AssessmentService) PrewarmAllCaches(ctx context.Context) error {
	list, err := s.store.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published assessments: %w", err)
	}
	if len(list) == 0 {
		s.log.Info().Msg("No published assessments to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(list)).Msg("Prewarming published assessments...")

	warmed := 0
	for i := range list {
		if err := s.WarmCache(ctx, &list[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("assessment_id", list[i].ID.String()).
				Msg("Failed to warm assessment, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(list)).
		Msg("Prewarming complete")
	return nil
}

// GetPayload returns the learner-facing assessment. A cold cache is re-warmed from
// PostgreSQL when the assessment is published.
func (s *AssessmentService) GetPayload(ctx context.Context, id uuid.UUID) (*model.AssessmentPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.AssessmentPayloadKey(id.String())).Bytes()
	if err == nil {
		var payload model.AssessmentPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &payload, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAssessmentNotAvailable
		}
		return nil, err
	}
	if a.Status != model.AssessmentStatusPublished {
		return nil, ErrAssessmentNotAvailable
	}
	questions, err := s.store.ListQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if err := s.WarmCache(ctx, a); err != nil {
		s.log.Warn().Err(err).Str("assessment_id", id.String()).Msg("Lazy cache warm failed")
	}
	payload := BuildPayload(a, questions)
	return &payload, nil
}

// ListForLearner returns published assessments with the learner's completion overlay,
// filtered by tab and search query.
func (s *AssessmentService) ListForLearner(ctx context.Context, learnerID int, filter AssessmentFilter, query string) ([]model.LearnerAssessment, error) {
	published, err := s.store.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}
	return s.overlay(ctx, learnerID, published, filter, query)
}

// ListForModule returns the published assessments of a course module with the overlay.
func (s *AssessmentService) ListForModule(ctx context.Context, learnerID int, moduleID uuid.UUID) ([]model.LearnerAssessment, error) {
	list, err := s.store.ListPublishedByModule(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("list module assessments: %w", err)
	}
	return s.overlay(ctx, learnerID, list, FilterAll, "")
}

func (s *AssessmentService) overlay(ctx context.Context, learnerID int, list []model.Assessment, filter AssessmentFilter, query string) ([]model.LearnerAssessment, error) {
	scores, err := s.scores.LatestScores(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("latest scores: %w", err)
	}

	out := make([]model.LearnerAssessment, 0, len(list))
	for _, a := range list {
		entry := model.LearnerAssessment{Assessment: a}
		if score, ok := scores[a.ID]; ok {
			sc := score
			entry.Completed = true
			entry.Score = &sc
		}
		if filter.Matches(&entry, query) {
			out = append(out, entry)
		}
	}
	return out, nil
}
