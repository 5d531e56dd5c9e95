package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

func bindBody(t *testing.T, body string, dst interface{}) map[string]string {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestBind_CreateAssessment(t *testing.T) {
	body := `{
		"title": "Fractions quiz",
		"type": "graded",
		"time_limit_minutes": 10,
		"questions": [
			{"text": "Is 1/2 > 1/3?", "kind": "true-false", "correct_answer": true},
			{"text": "Pick 3/4", "kind": "single-choice", "options": ["1/4", "3/4"], "correct_answer": 1}
		]
	}`
	var req model.CreateAssessmentRequest
	require.Nil(t, bindBody(t, body, &req))
	assert.Len(t, req.Questions, 2)
}

func TestBind_QuestionConsistency(t *testing.T) {
	cases := []struct {
		name  string
		q     string
		field string
	}{
		{"single choice with one option", `{"text":"x","kind":"single-choice","options":["a"],"correct_answer":0}`, "questions[0].options"},
		{"true-false with options", `{"text":"x","kind":"true-false","options":["a","b"],"correct_answer":true}`, "questions[0].options"},
		{"answer out of range", `{"text":"x","kind":"single-choice","options":["a","b"],"correct_answer":5}`, "questions[0].correct_answer"},
		{"boolean answer for single choice", `{"text":"x","kind":"single-choice","options":["a","b"],"correct_answer":false}`, "questions[0].correct_answer"},
		{"missing answer", `{"text":"x","kind":"true-false"}`, "questions[0].correct_answer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := `{"title":"Quiz","type":"practice","questions":[` + tc.q + `]}`
			var req model.CreateAssessmentRequest
			fields := bindBody(t, body, &req)
			require.NotNil(t, fields)
			assert.Contains(t, fields, tc.field)
		})
	}
}

func TestBind_TranslatesRequiredFields(t *testing.T) {
	var req model.LoginRequest
	fields := bindBody(t, `{"email":"not-an-email"}`, &req)
	require.NotNil(t, fields)
	assert.Equal(t, "email must be a valid email address", fields["email"])
	assert.Equal(t, "password is a required field", fields["password"])
}

func TestBind_SyntaxError(t *testing.T) {
	var req model.LoginRequest
	fields := bindBody(t, `{"email":`, &req)
	assert.Contains(t, fields, "detail")
}
