package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/evnsoft/clubshift_backend/config"
	"github.com/evnsoft/clubshift_backend/middlewares"
	"github.com/evnsoft/clubshift_backend/models"
	"github.com/evnsoft/clubshift_backend/models/reports"
	"github.com/evnsoft/clubshift_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("clubshift-backend")

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.CorrelationMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(func(c *gin.Context) {
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "x-actor-id", "x-actor-name", "x-actor-capabilities", "x-correlation-id")
	r.Use(cors.New(corsConfig))

	api := r.Group("/", middlewares.ActorMiddleware())

	api.POST("/shifts", openShiftHandler)
	api.GET("/shifts", listShiftsHandler)
	api.GET("/shifts/:id", getShiftHandler)
	api.POST("/shifts/:id/close", closeShiftHandler)
	api.POST("/shifts/:id/expenses", recordExpenseHandler)
	api.GET("/shifts/:id/checklist", shiftChecklistHandler)
	api.POST("/shifts/:id/checklist/:itemID/check", checkItemHandler)
	api.POST("/shifts/:id/sync", registerSyncHandler)

	api.GET("/venues", listVenuesHandler)
	api.POST("/venues", createVenueHandler)
	api.GET("/balances/:venueID", venueBalancesHandler)
	api.POST("/balances/:venueID/:register/rebuild", rebuildBalanceHandler)
	api.POST("/movements", applyMovementHandler)
	api.GET("/movements", listMovementsHandler)

	api.GET("/checklist-items", listChecklistItemsHandler)
	api.POST("/checklist-items", createChecklistItemHandler)
	api.PUT("/checklist-items/:id", updateChecklistItemHandler)
	api.DELETE("/checklist-items/:id", deactivateChecklistItemHandler)

	api.GET("/reports/shifts.xlsx", shiftReportHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	go func() {
		logger.Infof("listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	// Connect after the listener is up (Cloud Run wants a fast bind).
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	<-sigCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func respondDomainError(c *gin.Context, err error) {
	var incomplete *models.ChecklistIncompleteError
	switch {
	case errors.As(err, &incomplete):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":             incomplete.Error(),
			"outstanding_items": incomplete.OutstandingItemIds,
		})
	case errors.Is(err, models.ErrShiftAlreadyOpen),
		errors.Is(err, models.ErrShiftAlreadyClosed),
		errors.Is(err, models.ErrShiftClosed),
		errors.Is(err, models.ErrShiftNotClosed),
		errors.Is(err, models.ErrAlreadyInitialized):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrShiftNotFound),
		errors.Is(err, models.ErrUnknownItem),
		errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrCapabilityRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrPersistence):
		config.LogError(config.GetLogger(), "server.go", "respondDomainError", "persistence", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		details := utils.ProcessValidationErrors(err)
		if len(details) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": details})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return false
	}
	return true
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

/* shifts */

func openShiftHandler(c *gin.Context) {
	var input models.NewShift
	if !bindJSON(c, &input) {
		return
	}
	shift, err := models.OpenShift(c.Request.Context(), &input)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shift)
}

func getShiftHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	shift, err := models.GetShift(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, shift)
}

func listShiftsHandler(c *gin.Context) {
	filter := models.ShiftFilter{}
	if v, err := strconv.Atoi(c.Query("venue_id")); err == nil && v > 0 {
		filter.VenueId = &v
	}
	if s := c.Query("status"); s != "" {
		status := models.ShiftStatus(s)
		filter.Status = &status
	}
	if from, err := time.ParseInLocation("2006-01-02", c.Query("from"), time.UTC); err == nil {
		if to, err := time.ParseInLocation("2006-01-02", c.Query("to"), time.UTC); err == nil {
			filter.FromDate = &from
			filter.ToDate = &to
		}
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = v
	}
	shifts, err := models.ListShifts(c.Request.Context(), &filter)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, shifts)
}

func closeShiftHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var revenue models.DeclaredRevenue
	if !bindJSON(c, &revenue) {
		return
	}
	ctx, span := tracer.Start(c.Request.Context(), "CloseShift")
	defer span.End()
	snapshot, err := models.CloseShift(ctx, id, &revenue)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func recordExpenseHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var input models.NewShiftExpense
	if !bindJSON(c, &input) {
		return
	}
	movement, err := models.RecordShiftExpense(c.Request.Context(), id, &input)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

func shiftChecklistHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	rows, err := models.ShiftChecklist(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	state, err := models.ChecklistCompletion(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows, "completion": state})
}

func checkItemHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := intParam(c, "itemID")
	if !ok {
		return
	}
	var input models.CheckItemInput
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &input) {
			return
		}
	}
	row, err := models.MarkChecklistItem(c.Request.Context(), id, itemID, &input)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func registerSyncHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	record, err := models.RegisterSync(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

/* venues & ledger */

func listVenuesHandler(c *gin.Context) {
	venues, err := models.ListVenues(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, venues)
}

func createVenueHandler(c *gin.Context) {
	if !utils.ActorHasCapability(c.Request.Context(), utils.CapabilityCatalogAdmin) {
		respondDomainError(c, models.ErrCapabilityRequired)
		return
	}
	var input models.NewVenue
	if !bindJSON(c, &input) {
		return
	}
	venue, err := models.CreateVenue(c.Request.Context(), &input)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, venue)
}

func venueBalancesHandler(c *gin.Context) {
	venueID, ok := intParam(c, "venueID")
	if !ok {
		return
	}
	balances, err := models.GetVenueBalances(c.Request.Context(), venueID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, balances)
}

func rebuildBalanceHandler(c *gin.Context) {
	venueID, ok := intParam(c, "venueID")
	if !ok {
		return
	}
	register := models.Register(c.Param("register"))
	balance, err := models.RebuildCashBalance(c.Request.Context(), venueID, register)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func applyMovementHandler(c *gin.Context) {
	var input models.NewCashMovement
	if !bindJSON(c, &input) {
		return
	}
	movement, err := models.ApplyCashMovement(c.Request.Context(), &input)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

func listMovementsHandler(c *gin.Context) {
	venueID, err := strconv.Atoi(c.Query("venue_id"))
	if err != nil || venueID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "venue_id is required"})
		return
	}
	register := models.Register(c.Query("register"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	movements, err := models.ListCashMovements(c.Request.Context(), venueID, register, limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, movements)
}

/* checklist catalog */

func listChecklistItemsHandler(c *gin.Context) {
	items, err := models.ListChecklistItems(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func createChecklistItemHandler(c *gin.Context) {
	if !utils.ActorHasCapability(c.Request.Context(), utils.CapabilityCatalogAdmin) {
		respondDomainError(c, models.ErrCapabilityRequired)
		return
	}
	var input models.NewChecklistItem
	if !bindJSON(c, &input) {
		return
	}
	item, err := models.CreateChecklistItem(c.Request.Context(), &input)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func updateChecklistItemHandler(c *gin.Context) {
	if !utils.ActorHasCapability(c.Request.Context(), utils.CapabilityCatalogAdmin) {
		respondDomainError(c, models.ErrCapabilityRequired)
		return
	}
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var input models.NewChecklistItem
	if !bindJSON(c, &input) {
		return
	}
	item, err := models.UpdateChecklistItem(c.Request.Context(), id, &input)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func deactivateChecklistItemHandler(c *gin.Context) {
	if !utils.ActorHasCapability(c.Request.Context(), utils.CapabilityCatalogAdmin) {
		respondDomainError(c, models.ErrCapabilityRequired)
		return
	}
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	item, err := models.DeactivateChecklistItem(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

/* reports */

func shiftReportHandler(c *gin.Context) {
	from, err := time.ParseInLocation("2006-01-02", c.Query("from"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
		return
	}
	to, err := time.ParseInLocation("2006-01-02", c.Query("to"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
		return
	}
	var venueID *int
	if v, err := strconv.Atoi(c.Query("venue_id")); err == nil && v > 0 {
		venueID = &v
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=shifts.xlsx")
	if err := reports.WriteShiftReportExcel(c.Request.Context(), c.Writer, from, to, venueID); err != nil {
		config.LogError(config.GetLogger(), "server.go", "shiftReportHandler", "WriteShiftReportExcel", nil, err)
		c.Status(http.StatusInternalServerError)
	}
}
