package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/victornm/liveq/internal/domain"
	"github.com/victornm/liveq/internal/errors"
	"github.com/victornm/liveq/internal/leaderboard"
)

func (s *Server) registerRoutes(e *gin.Engine) {
	e.GET("/ws", gin.WrapF(s.hub.Serve))

	api := e.Group("/api")
	api.POST("/rooms", s.createRoom)
	api.POST("/rooms/:id/validate", s.validateName)
	api.GET("/rooms/:id/standings", s.getStandings)
	api.GET("/rooms/:id/results", s.getResults)
	api.GET("/history", s.listHistory)
}

type (
	createRoomRequest struct {
		Mode string      `json:"mode"`
		Quiz quizPayload `json:"quiz" binding:"required"`
	}

	quizPayload struct {
		ID        string            `json:"id"`
		Title     string            `json:"title" binding:"required"`
		Duration  int               `json:"duration"`
		Questions []questionPayload `json:"questions" binding:"required"`
	}

	questionPayload struct {
		ID         string          `json:"id"`
		Text       string          `json:"text"`
		Type       string          `json:"type"`
		Points     float64         `json:"points"`
		Choices    []choicePayload `json:"choices"`
		LowerBound float64         `json:"lowerBound"`
		UpperBound float64         `json:"upperBound"`
		Tolerance  float64         `json:"tolerance"`
	}

	choicePayload struct {
		Text      string `json:"text"`
		IsCorrect bool   `json:"isCorrect"`
	}

	createRoomResponse struct {
		RoomID         string `json:"roomId"`
		OrganizerToken string `json:"organizerToken"`
	}
)

func (s *Server) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	mode := domain.ModeStandard
	if req.Mode == string(domain.ModeRandom) {
		mode = domain.ModeRandom
	}

	token := uuid.NewString()
	g, err := s.service.registry.CreateRoom(toQuiz(req.Quiz), mode, token)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createRoomResponse{
		RoomID:         g.RoomID(),
		OrganizerToken: token,
	})
}

func toQuiz(p quizPayload) domain.Quiz {
	quiz := domain.Quiz{
		QuizID:   p.ID,
		Title:    p.Title,
		Duration: p.Duration,
	}

	for _, qp := range p.Questions {
		q := domain.Question{
			QuestionID: qp.ID,
			Text:       qp.Text,
			Type:       domain.QuestionType(qp.Type),
			Points:     decimal.NewFromFloat(qp.Points),
			LowerBound: qp.LowerBound,
			UpperBound: qp.UpperBound,
			Tolerance:  qp.Tolerance,
		}
		for _, cp := range qp.Choices {
			q.Choices = append(q.Choices, domain.Choice{
				Text:      cp.Text,
				IsCorrect: cp.IsCorrect,
			})
		}
		quiz.Questions = append(quiz.Questions, q)
	}

	return quiz
}

type validateNameRequest struct {
	Name string `json:"name"`
}

func (s *Server) validateName(c *gin.Context) {
	g, err := s.service.registry.Lookup(c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}

	var req validateNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	if err := g.ValidateName(req.Name); err != nil {
		abortError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) getStandings(c *gin.Context) {
	standings, err := s.service.leaderboard.Get(c.Request.Context(), leaderboard.GetRequest{
		RoomID: c.Param("id"),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, standings)
}

func (s *Server) getResults(c *gin.Context) {
	g, err := s.service.registry.Lookup(c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}

	results, err := g.Results()
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

func (s *Server) listHistory(c *gin.Context) {
	records, err := s.service.history.ListGames(c.Request.Context())
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

func abortError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
