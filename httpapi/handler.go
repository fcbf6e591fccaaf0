package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	membership "go-membership"
)

// UserHeader carries the authenticated caller's user id, set by the fronting gateway.
const UserHeader = "X-User-ID"

const userIDKey = "userID"

// Handler exposes the engine over JSON.
type Handler struct {
	engine *membership.Engine
	logger *slog.Logger
}

// NewHandler creates a Handler. A nil logger discards output.
func NewHandler(engine *membership.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// Router returns a gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	var router = gin.New()
	router.Use(gin.Recovery())
	h.Register(router)
	return router
}

// Register adds the routes to r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)

	var api = r.Group("/", requireUser())
	{
		api.GET("/communities", h.ListCommunities)
		api.POST("/communities", h.CreateCommunity)
		api.GET("/communities/:id", h.GetCommunity)
		api.DELETE("/communities/:id", h.DeleteCommunity)
		api.POST("/communities/:id/join", h.RequestJoin)
		api.DELETE("/communities/:id/join", h.CancelRequest)
		api.POST("/communities/:id/leave", h.Leave)
		api.PUT("/communities/:id/president", h.AssignPresident)
		api.GET("/communities/:id/records", h.ListCommunityRecords)
		api.GET("/communities/:id/leaders", h.ListLeaders)
		api.PUT("/communities/:id/leaders/:type", h.AssignLeader)
		api.DELETE("/communities/:id/leaders/:type", h.RevokeLeader)
		api.POST("/records/:id/decision", h.Decide)
		api.GET("/me/records", h.MyRecords)
		api.GET("/me/requests", h.MyRequests)
		api.POST("/sweep", h.Sweep)
	}
}

// requireUser rejects requests that carry no caller identity.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID = c.GetHeader(UserHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": UserHeader + " header required"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func callerID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps engine errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		engineErr *membership.Error
		status    = http.StatusInternalServerError
		body      = gin.H{"error": err.Error()}
	)

	if errors.As(err, &engineErr) {
		body["code"] = engineErr.Code
		switch engineErr.Code {
		case membership.CodeConflict:
			status = http.StatusConflict
			if engineErr.Conflict != nil {
				body["conflict"] = gin.H{
					"community_id": engineErr.Conflict.CommunityID,
					"status":       engineErr.Conflict.Status,
				}
			}
		case membership.CodeNotFound:
			status = http.StatusNotFound
		case membership.CodeUnauthorized:
			status = http.StatusForbidden
		case membership.CodeValidation:
			status = http.StatusBadRequest
		case membership.CodeState:
			status = http.StatusConflict
			body["status"] = engineErr.Status
		case membership.CodeTransient:
			status = http.StatusServiceUnavailable
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, body)
}

type communityResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	AdminID   string    `json:"admin_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toCommunityResponse(c membership.Community) communityResponse {
	return communityResponse{
		ID:        c.ID,
		Name:      c.Name,
		IsActive:  c.IsActive,
		AdminID:   c.AdminID,
		CreatedAt: c.CreatedAt,
	}
}

type recordResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CommunityID string    `json:"community_id"`
	Status      string    `json:"status"`
	Role        string    `json:"role"`
	BlockRef    string    `json:"block_ref,omitempty"`
	Address     string    `json:"address,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toRecordResponse(r membership.Record) recordResponse {
	return recordResponse{
		ID:          r.ID,
		UserID:      r.UserID,
		CommunityID: r.CommunityID,
		Status:      string(r.Status),
		Role:        string(r.Role),
		BlockRef:    r.BlockRef,
		Address:     r.Address,
		RequestedAt: r.RequestedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toRecordResponses(records []membership.Record) []recordResponse {
	var response = make([]recordResponse, len(records))
	for i, r := range records {
		response[i] = toRecordResponse(r)
	}
	return response
}

type leaderResponse struct {
	ID          string    `json:"id"`
	CommunityID string    `json:"community_id"`
	UserID      string    `json:"user_id"`
	LeaderType  string    `json:"leader_type"`
	AssignedBy  string    `json:"assigned_by"`
	AssignedAt  time.Time `json:"assigned_at"`
}

func toLeaderResponse(l membership.LeaderAssignment) leaderResponse {
	return leaderResponse{
		ID:          l.ID,
		CommunityID: l.CommunityID,
		UserID:      l.UserID,
		LeaderType:  string(l.LeaderType),
		AssignedBy:  l.AssignedBy,
		AssignedAt:  l.AssignedAt,
	}
}
