package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/database"
	"github.com/stemsi/lms-backend/internal/logger"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/repository"
	"github.com/stemsi/lms-backend/internal/service"
	"golang.org/x/crypto/bcrypt"
)

const demoCourseTitle = "Introduction to Project Management"

type seedContent struct {
	title   string
	kind    model.ContentType
	content string
}

type seedAssessment struct {
	title       string
	description string
	kind        model.AssessmentType
	minutes     int
	questions   []model.CreateQuestionRequest
}

type seedModule struct {
	title       string
	description string
	content     []seedContent
	assessments []seedAssessment
}

func mcq(text string, correct int, options ...string) model.CreateQuestionRequest {
	return model.CreateQuestionRequest{
		Text:          text,
		Kind:          model.QuestionKindSingleChoice,
		Options:       options,
		CorrectAnswer: model.OptionAnswer(correct),
	}
}

func trueFalse(text string, correct bool) model.CreateQuestionRequest {
	return model.CreateQuestionRequest{
		Text:          text,
		Kind:          model.QuestionKindTrueFalse,
		CorrectAnswer: model.BoolAnswer(correct),
	}
}

var demoModules = []seedModule{
	{
		title:       "Module 1: Project Management Basics",
		description: "Learn the core concepts and terminology of project management",
		content: []seedContent{
			{"What is Project Management?", model.ContentTypeText,
				"<p>Project management is the application of processes, methods, skills, knowledge and experience " +
					"to achieve specific project objectives.</p><p>Project management processes are categorized into five groups: " +
					"Initiating, Planning, Executing, Monitoring and Controlling, and Closing.</p>"},
			{"Project Management Methodologies", model.ContentTypeText,
				"<p>Waterfall is a linear approach. Agile is an iterative approach that focuses on continuous releases " +
					"and incorporating customer feedback with every iteration.</p>"},
			{"Project Management Tool Overview", model.ContentTypeVideo, "https://www.youtube.com/embed/qkuUBcmmBpk"},
		},
		assessments: []seedAssessment{{
			title:       "Project Management Basics Quiz",
			description: "Test your understanding of basic project management concepts",
			kind:        model.AssessmentTypePractice,
			minutes:     10,
			questions: []model.CreateQuestionRequest{
				mcq("Which of the following is NOT a process group in project management?", 2,
					"Initiating", "Planning", "Designing", "Closing"),
				mcq("The triple constraint in project management consists of:", 1,
					"Time, Cost, and Quality", "Scope, Time, and Cost", "Scope, Resources, and Schedule", "Budget, Timeline, and Deliverables"),
				trueFalse("Agile is a linear approach to project management.", false),
			},
		}},
	},
	{
		title:       "Module 2: Project Planning",
		description: "Master the techniques for effective project planning",
		content: []seedContent{
			{"Creating a Project Plan", model.ContentTypeText, "<p>A comprehensive project plan includes scope, schedule, budget and risks.</p>"},
		},
		assessments: []seedAssessment{{
			title:       "Project Planning Assessment",
			description: "Evaluate your knowledge of project planning techniques",
			kind:        model.AssessmentTypeGraded,
			minutes:     15,
			questions: []model.CreateQuestionRequest{
				mcq("What is a WBS in project management?", 0,
					"Work Breakdown Structure", "Weekly Business Summary", "Work Budget Sheet", "Workflow Balance System"),
			},
		}},
	},
}

// Standalone assessments not tied to a module.
var demoAssessments = []seedAssessment{
	{
		title:       "Communication Skills Quiz",
		description: "Test your business communication knowledge",
		kind:        model.AssessmentTypePractice,
		minutes:     5,
		questions: []model.CreateQuestionRequest{
			mcq("What is the most important aspect of business emails?", 1, "Length", "Clarity", "Formality", "Speed of response"),
		},
	},
	{
		title:       "Excel Functions Test",
		description: "Demonstrate your knowledge of Excel formulas and functions",
		kind:        model.AssessmentTypeSectional,
		minutes:     30,
		questions: []model.CreateQuestionRequest{
			mcq("Which Excel function would you use to count cells that meet specific criteria?", 2, "SUM", "COUNT", "COUNTIF", "VLOOKUP"),
		},
	},
}

func main() {
	learners := flag.Int("learners", 10, "Number of demo learners to create")
	password := flag.String("password", "password123", "Password for every seeded account")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	userRepo := repository.NewUserRepository(pool)
	assessmentRepo := repository.NewAssessmentRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	courseService := service.NewCourseService(repository.NewCourseRepository(pool), log)
	assessmentService := service.NewAssessmentService(assessmentRepo, attemptRepo, rdb, log)
	aiService := service.NewAIQuestionService(repository.NewAIQuestionRepository(pool), assessmentService, log)

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	// ─── Accounts ──────────────────────────────────────────────────────
	admin := &model.User{Name: "Admin User", Email: "admin@example.com", PasswordHash: string(hash), Role: model.RoleAdmin}
	if err := userRepo.UpsertByEmail(ctx, admin); err != nil {
		log.Fatal().Err(err).Msg("Failed to upsert admin")
	}
	fmt.Printf("Admin ready: %s (id %d)\n", admin.Email, admin.ID)

	created, err := seedLearners(ctx, userRepo, *learners, string(hash))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed learners")
	}
	fmt.Printf("Learners created: %d\n", created)

	// ─── Catalogue ─────────────────────────────────────────────────────
	courses, err := courseService.List(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list courses")
	}
	for _, c := range courses {
		if c.Title == demoCourseTitle {
			fmt.Println("Demo course already present, skipping catalogue")
			return
		}
	}

	course, err := courseService.Create(ctx, model.CreateCourseRequest{
		Title:       demoCourseTitle,
		Description: "Learn the fundamentals of project management methodologies and practices.",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create course")
	}

	var firstContent *model.ContentItem
	var firstAssessment uuid.UUID
	for i, sm := range demoModules {
		module, err := courseService.CreateModule(ctx, course.ID, model.CreateModuleRequest{
			Title:       sm.title,
			Description: sm.description,
			OrderNum:    i,
		})
		if err != nil {
			log.Fatal().Err(err).Str("module", sm.title).Msg("Failed to create module")
		}
		for j, sc := range sm.content {
			item, err := courseService.CreateContent(ctx, course.ID, module.ID, model.CreateContentRequest{
				Title:    sc.title,
				Type:     sc.kind,
				Content:  sc.content,
				OrderNum: j,
			})
			if err != nil {
				log.Fatal().Err(err).Str("content", sc.title).Msg("Failed to create content")
			}
			if firstContent == nil {
				firstContent = item
			}
		}
		for _, sa := range sm.assessments {
			id, err := publishAssessment(ctx, assessmentService, admin.ID, &module.ID, sa)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to seed assessment")
			}
			if firstAssessment == uuid.Nil {
				firstAssessment = id
			}
		}
	}
	for _, sa := range demoAssessments {
		if _, err := publishAssessment(ctx, assessmentService, admin.ID, nil, sa); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed assessment")
		}
	}

	// ─── Review queue ──────────────────────────────────────────────────
	proposals := []model.AIQuestion{
		{
			Text:          "Which project management approach delivers work in short iterations?",
			Kind:          model.QuestionKindSingleChoice,
			Options:       []string{"Waterfall", "Agile", "Critical path", "PRINCE2"},
			CorrectAnswer: model.OptionAnswer(1),
		},
		{
			Text:          "Closing is one of the five project management process groups.",
			Kind:          model.QuestionKindTrueFalse,
			CorrectAnswer: model.BoolAnswer(true),
		},
	}
	for i := range proposals {
		p := &proposals[i]
		p.AssessmentID = &firstAssessment
		if firstContent != nil {
			p.SourceContentID = &firstContent.ID
			p.SourceContent = firstContent.Content
		}
		if err := aiService.Propose(ctx, p); err != nil {
			log.Fatal().Err(err).Msg("Failed to queue generated question")
		}
	}

	fmt.Printf("\nSeed completed: course %s, %d AI proposals pending review.\n", course.ID, len(proposals))
}

func seedLearners(ctx context.Context, users *repository.UserRepository, n int, hash string) (int64, error) {
	candidates := make([]model.User, 0, n)
	emails := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		email := fmt.Sprintf("learner%02d@example.com", i)
		emails = append(emails, email)
		candidates = append(candidates, model.User{
			Name:         fmt.Sprintf("Learner %02d", i),
			Email:        email,
			PasswordHash: hash,
		})
	}

	existing, err := users.ExistingEmails(ctx, emails)
	if err != nil {
		return 0, err
	}
	fresh := candidates[:0]
	for _, u := range candidates {
		if !existing[u.Email] {
			fresh = append(fresh, u)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	return users.CreateLearners(ctx, fresh)
}

func publishAssessment(ctx context.Context, svc *service.AssessmentService, authorID int, moduleID *uuid.UUID, sa seedAssessment) (uuid.UUID, error) {
	minutes := sa.minutes
	a, err := svc.Create(ctx, authorID, model.CreateAssessmentRequest{
		ModuleID:         moduleID,
		Title:            sa.title,
		Description:      sa.description,
		Type:             sa.kind,
		TimeLimitMinutes: &minutes,
		Questions:        sa.questions,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create assessment %q: %w", sa.title, err)
	}
	if err := svc.Publish(ctx, a.ID); err != nil {
		return uuid.Nil, fmt.Errorf("publish assessment %q: %w", sa.title, err)
	}
	fmt.Printf("Published %q (%s)\n", sa.title, a.ID)
	return a.ID, nil
}
