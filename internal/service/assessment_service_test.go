package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssessmentStore struct {
	assessments map[uuid.UUID]*model.Assessment
	questions   map[uuid.UUID][]model.Question
}

func newFakeAssessmentStore() *fakeAssessmentStore {
	return &fakeAssessmentStore{
		assessments: map[uuid.UUID]*model.Assessment{},
		questions:   map[uuid.UUID][]model.Question{},
	}
}

func (f *fakeAssessmentStore) GetByID(_ context.Context, id uuid.UUID) (*model.Assessment, error) {
	a, ok := f.assessments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssessmentStore) ListPaginated(_ context.Context, status *model.AssessmentStatus, limit, offset int) ([]model.Assessment, int, error) {
	var out []model.Assessment
	for _, a := range f.assessments {
		if status == nil || a.Status == *status {
			out = append(out, *a)
		}
	}
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (f *fakeAssessmentStore) ListPublished(context.Context) ([]model.Assessment, error) {
	var out []model.Assessment
	for _, a := range f.assessments {
		if a.Status == model.AssessmentStatusPublished {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAssessmentStore) ListPublishedByModule(_ context.Context, moduleID uuid.UUID) ([]model.Assessment, error) {
	var out []model.Assessment
	for _, a := range f.assessments {
		if a.Status == model.AssessmentStatusPublished && a.ModuleID != nil && *a.ModuleID == moduleID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAssessmentStore) CreateWithQuestions(_ context.Context, a *model.Assessment, questions []model.Question) error {
	a.ID = uuid.New()
	a.QuestionCount = len(questions)
	for i := range questions {
		questions[i].ID = uuid.New()
		questions[i].AssessmentID = a.ID
	}
	cp := *a
	f.assessments[a.ID] = &cp
	f.questions[a.ID] = questions
	return nil
}

func (f *fakeAssessmentStore) UpdateStatus(_ context.Context, id uuid.UUID, status model.AssessmentStatus) error {
	a, ok := f.assessments[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Status = status
	return nil
}

func (f *fakeAssessmentStore) ListQuestions(_ context.Context, id uuid.UUID) ([]model.Question, error) {
	return f.questions[id], nil
}

func (f *fakeAssessmentStore) AppendQuestion(_ context.Context, q *model.Question) error {
	q.ID = uuid.New()
	q.OrderNum = len(f.questions[q.AssessmentID])
	f.questions[q.AssessmentID] = append(f.questions[q.AssessmentID], *q)
	return nil
}

type fakeScores map[uuid.UUID]int

func (f fakeScores) LatestScores(context.Context, int) (map[uuid.UUID]int, error) {
	return f, nil
}

func sampleCreateRequest(title string, typ model.AssessmentType) model.CreateAssessmentRequest {
	return model.CreateAssessmentRequest{
		Title: title,
		Type:  typ,
		Questions: []model.CreateQuestionRequest{
			{Text: "2 + 2?", Kind: model.QuestionKindSingleChoice, Options: []string{"3", "4"}, CorrectAnswer: model.OptionAnswer(1)},
			{Text: "The sky is blue.", Kind: model.QuestionKindTrueFalse, CorrectAnswer: model.BoolAnswer(true)},
		},
	}
}

func TestAssessmentService_PublishWarmsCache(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	store := newFakeAssessmentStore()
	svc := NewAssessmentService(store, fakeScores{}, rdb, zerolog.Nop())

	a, err := svc.Create(ctx, 1, sampleCreateRequest("Arithmetic", model.AssessmentTypePractice))
	require.NoError(t, err)
	assert.Equal(t, model.AssessmentStatusDraft, a.Status)

	_, err = svc.GetPayload(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAssessmentNotAvailable)

	require.NoError(t, svc.Publish(ctx, a.ID))
	assert.ErrorIs(t, svc.Publish(ctx, a.ID), ErrAssessmentNotDraft)

	raw, err := rdb.Get(ctx, config.CacheKey.AssessmentPayloadKey(a.ID.String())).Bytes()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct_answer")

	var payload model.AssessmentPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Len(t, payload.Questions, 2)
	assert.Equal(t, "Arithmetic", payload.Title)

	key, err := rdb.HGetAll(ctx, config.CacheKey.AssessmentAnswerKey(a.ID.String())).Result()
	require.NoError(t, err)
	assert.Equal(t, "1", key[payload.Questions[0].ID.String()])
	assert.Equal(t, "true", key[payload.Questions[1].ID.String()])
}

func TestAssessmentService_GetPayloadRewarmsColdCache(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	store := newFakeAssessmentStore()
	svc := NewAssessmentService(store, fakeScores{}, rdb, zerolog.Nop())

	a, err := svc.Create(ctx, 1, sampleCreateRequest("Logic", model.AssessmentTypeGraded))
	require.NoError(t, err)
	require.NoError(t, svc.Publish(ctx, a.ID))
	mr.FlushAll()

	payload, err := svc.GetPayload(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, payload.Questions, 2)
	assert.True(t, mr.Exists(config.CacheKey.AssessmentPayloadKey(a.ID.String())))
}

func TestAssessmentService_ArchiveDropsCache(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	svc := NewAssessmentService(newFakeAssessmentStore(), fakeScores{}, rdb, zerolog.Nop())

	a, err := svc.Create(ctx, 1, sampleCreateRequest("Logic", model.AssessmentTypeGraded))
	require.NoError(t, err)
	require.NoError(t, svc.Publish(ctx, a.ID))
	require.NoError(t, svc.Archive(ctx, a.ID))

	assert.False(t, mr.Exists(config.CacheKey.AssessmentPayloadKey(a.ID.String())))
	assert.ErrorIs(t, svc.Archive(ctx, a.ID), ErrAssessmentAlreadyArchive)
	_, err = svc.GetPayload(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAssessmentNotAvailable)
}

func TestAssessmentService_AddQuestionRefreshesPublished(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	svc := NewAssessmentService(newFakeAssessmentStore(), fakeScores{}, rdb, zerolog.Nop())

	a, err := svc.Create(ctx, 1, sampleCreateRequest("Logic", model.AssessmentTypeGraded))
	require.NoError(t, err)
	require.NoError(t, svc.Publish(ctx, a.ID))

	q, err := svc.AddQuestion(ctx, a.ID, model.CreateQuestionRequest{
		Text: "Water boils at 100C at sea level.", Kind: model.QuestionKindTrueFalse, CorrectAnswer: model.BoolAnswer(true),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, q.OrderNum)

	payload, err := svc.GetPayload(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, payload.Questions, 3)
}

func TestAssessmentService_CreateRequiresQuestions(t *testing.T) {
	_, rdb := newTestRedis(t)
	svc := NewAssessmentService(newFakeAssessmentStore(), fakeScores{}, rdb, zerolog.Nop())

	req := sampleCreateRequest("Empty", model.AssessmentTypePractice)
	req.Questions = nil
	_, err := svc.Create(context.Background(), 1, req)
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestAssessmentService_ListForLearner(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	store := newFakeAssessmentStore()
	scores := fakeScores{}
	svc := NewAssessmentService(store, scores, rdb, zerolog.Nop())

	practice, err := svc.Create(ctx, 1, sampleCreateRequest("Fractions drill", model.AssessmentTypePractice))
	require.NoError(t, err)
	sectional, err := svc.Create(ctx, 1, sampleCreateRequest("Algebra sectional", model.AssessmentTypeSectional))
	require.NoError(t, err)
	_, err = svc.Create(ctx, 1, sampleCreateRequest("Draft only", model.AssessmentTypeFull))
	require.NoError(t, err)
	require.NoError(t, svc.Publish(ctx, practice.ID))
	require.NoError(t, svc.Publish(ctx, sectional.ID))
	scores[practice.ID] = 80

	all, err := svc.ListForLearner(ctx, 9, FilterAll, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := svc.ListForLearner(ctx, 9, FilterCompleted, "")
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, practice.ID, completed[0].ID)
	require.NotNil(t, completed[0].Score)
	assert.Equal(t, 80, *completed[0].Score)

	upcoming, err := svc.ListForLearner(ctx, 9, FilterUpcoming, "")
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, sectional.ID, upcoming[0].ID)

	graded, err := svc.ListForLearner(ctx, 9, FilterGraded, "")
	require.NoError(t, err)
	require.Len(t, graded, 1)
	assert.Equal(t, sectional.ID, graded[0].ID)

	searched, err := svc.ListForLearner(ctx, 9, FilterAll, "  FRACTIONS ")
	require.NoError(t, err)
	require.Len(t, searched, 1)
	assert.Equal(t, practice.ID, searched[0].ID)
}

func TestParseAssessmentFilter(t *testing.T) {
	f, err := ParseAssessmentFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	f, err = ParseAssessmentFilter("Practice")
	require.NoError(t, err)
	assert.Equal(t, FilterPractice, f)

	_, err = ParseAssessmentFilter("archived")
	assert.ErrorIs(t, err, ErrUnknownAssessmentFilter)
}

func TestAssessmentService_ListClampsPaging(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	svc := NewAssessmentService(newFakeAssessmentStore(), fakeScores{}, rdb, zerolog.Nop())
	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, 1, sampleCreateRequest("Quiz", model.AssessmentTypePractice))
		require.NoError(t, err)
	}

	list, pg, err := svc.List(ctx, nil, 0, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 1, pg.Page)
	assert.Equal(t, 3, pg.TotalItems)
	assert.Equal(t, 2, pg.TotalPages)
}
