// Package api exposes the reconciliation workflow over HTTP. Sessions are
// keyed by reconciliation id; a UI walks them through the wizard steps.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/troopledger/reconcile/internal/api/dto"
	"github.com/troopledger/reconcile/internal/application/reconcile"
	"github.com/troopledger/reconcile/internal/domain/matcher"
	"github.com/troopledger/reconcile/internal/domain/scorer"
	"github.com/troopledger/reconcile/internal/domain/statement"
	"github.com/troopledger/reconcile/internal/infrastructure/config"
	"github.com/troopledger/reconcile/internal/infrastructure/storage"
)

// session pairs a workflow with its own lock. The workflow is a
// cooperative single-caller state machine; concurrent HTTP requests for
// the same reconciliation serialize here.
type session struct {
	mu   sync.Mutex
	flow *reconcile.Session
}

// Server is the HTTP API server.
type Server struct {
	cfg    *config.Config
	repo   storage.Repository
	logger *slog.Logger
	engine *gin.Engine

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer wires the workflow dependencies and registers routes.
func NewServer(cfg *config.Config, repo storage.Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		repo:     repo,
		logger:   logger,
		sessions: make(map[string]*session),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	router.GET("/health", s.health)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/reconciliations", s.startReconciliation)
		apiGroup.GET("/reconciliations/:id", s.getReconciliation)
		apiGroup.POST("/reconciliations/:id/statement", s.uploadStatement)
		apiGroup.POST("/reconciliations/:id/transactions", s.confirmTransactions)
		apiGroup.POST("/reconciliations/:id/match", s.runMatching)
		apiGroup.POST("/reconciliations/:id/match/manual", s.manualMatch)
		apiGroup.POST("/reconciliations/:id/finalize", s.finalize)
		apiGroup.GET("/expenses", s.listExpenses)
	}

	s.engine = router
	return s
}

// Handler returns the underlying http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the server on the configured port.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.logger.Info("API server listening", "addr", addr)
	return s.engine.Run(addr)
}

func (s *Server) newSession() *reconcile.Session {
	sc := scorer.New(scorer.Config{AmountTolerance: s.cfg.Matching.AmountTolerance})
	eng := matcher.NewEngine(matcher.Config{
		AutoMatchThreshold: s.cfg.Matching.AutoMatchThreshold,
		SuggestionFloor:    s.cfg.Matching.SuggestionFloor,
		Workers:            s.cfg.Matching.Workers,
	}, sc)
	return reconcile.NewSession(s.repo, statement.NewParser(), eng, s.logger)
}

func (s *Server) session(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) startReconciliation(c *gin.Context) {
	var req dto.StartReconciliationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewAPIError(dto.ErrCodeBadRequest, err.Error()))
		return
	}

	sess := &session{flow: s.newSession()}
	rec, err := sess.flow.SelectPeriod(c.Request.Context(), req.Month, req.Year)
	if err != nil {
		s.writeWorkflowError(c, err)
		return
	}

	s.mu.Lock()
	if existing, ok := s.sessions[rec.ID]; ok {
		// Resuming a period reuses the live session.
		sess = existing
	} else {
		s.sessions[rec.ID] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	c.JSON(http.StatusCreated, s.describe(sess.flow))
}

func (s *Server) getReconciliation(c *gin.Context) {
	sess, ok := s.session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewAPIError(dto.ErrCodeNotFound, "reconciliation session not found"))
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	c.JSON(http.StatusOK, s.describe(sess.flow))
}

func (s *Server) uploadStatement(c *gin.Context) {
	sess, ok := s.session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewAPIError(dto.ErrCodeNotFound, "reconciliation session not found"))
		return
	}

	var req dto.UploadStatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewAPIError(dto.ErrCodeBadRequest, err.Error()))
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	txns, err := sess.flow.UploadStatement(c.Request.Context(), req.Text, req.OCRConfidence)
	if err != nil {
		s.writeWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ParseResponse{Transactions: txns, Count: len(txns)})
}

func (s *Server) confirmTransactions(c *gin.Context) {
	sess, ok := s.session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewAPIError(dto.ErrCodeNotFound, "reconciliation session not found"))
		return
	}

	var req dto.ConfirmTransactionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewAPIError(dto.ErrCodeBadRequest, err.Error()))
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.flow.ConfirmTransactions(c.Request.Context(), req.Transactions); err != nil {
		s.writeWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.describe(sess.flow))
}

func (s *Server) runMatching(c *gin.Context) {
	sess, ok := s.session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewAPIError(dto.ErrCodeNotFound, "reconciliation session not found"))
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	assessments, err := sess.flow.RunMatching(c.Request.Context())
	if err != nil {
		s.writeWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.MatchResponse{
		Assessments: assessments,
		AutoMatched: sess.flow.Results(),
	})
}

func (s *Server) manualMatch(c *gin.Context) {
	sess, ok := s.session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewAPIError(dto.ErrCodeNotFound, "reconciliation session not found"))
		return
	}

	var req dto.ManualMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewAPIError(dto.ErrCodeBadRequest, err.Error()))
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	result, err := sess.flow.ManualMatch(c.Request.Context(), req.BankTransactionID, req.ExpenseID)
	if err != nil {
		s.writeWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) finalize(c *gin.Context) {
	sess, ok := s.session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewAPIError(dto.ErrCodeNotFound, "reconciliation session not found"))
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.flow.Step() < reconcile.StepReportFinalization {
		if err := sess.flow.AdvanceToReport(); err != nil {
			s.writeWorkflowError(c, err)
			return
		}
	}

	report, err := sess.flow.Finalize(c.Request.Context())
	if err != nil {
		s.writeWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ReportResponse{Report: report})
}

func (s *Server) listExpenses(c *gin.Context) {
	onlyUnmatched := c.Query("unmatched") == "true"
	expenses, err := s.repo.ListExpenses(c.Request.Context(), onlyUnmatched)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewAPIError(dto.ErrCodeInternalError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"expenses": expenses, "count": len(expenses)})
}

func (s *Server) describe(sess *reconcile.Session) dto.ReconciliationResponse {
	rec := sess.Reconciliation()
	return dto.ReconciliationResponse{
		ID:     rec.ID,
		Month:  rec.Month,
		Year:   rec.Year,
		Status: string(rec.Status),
		Step:   sess.Step().String(),
	}
}

// writeWorkflowError maps workflow failures onto HTTP statuses. Step
// violations are client errors; everything else is surfaced verbatim so
// the user can retry without losing their position.
func (s *Server) writeWorkflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, reconcile.ErrWrongStep), errors.Is(err, reconcile.ErrForwardJump):
		c.JSON(http.StatusConflict, dto.NewAPIError(dto.ErrCodeWrongStep, err.Error()))
	case errors.Is(err, reconcile.ErrInvalidPeriod), errors.Is(err, reconcile.ErrValidation), errors.Is(err, statement.ErrNoText):
		c.JSON(http.StatusBadRequest, dto.NewAPIError(dto.ErrCodeBadRequest, err.Error()))
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.NewAPIError(dto.ErrCodeNotFound, err.Error()))
	case errors.Is(err, storage.ErrExpenseMatched), errors.Is(err, storage.ErrDuplicateMatch):
		c.JSON(http.StatusConflict, dto.NewAPIError(dto.ErrCodeBadRequest, err.Error()))
	default:
		s.logger.Error("Workflow operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, dto.NewAPIError(dto.ErrCodeInternalError, err.Error()))
	}
}
