package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	membership "go-membership"
)

type createCommunityRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name" binding:"required"`
	AdminID string `json:"admin_id"`
}

type joinRequest struct {
	Role     string `json:"role"`
	BlockRef string `json:"block_ref"`
	Address  string `json:"address"`
}

type decisionRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
}

type targetRequest struct {
	Target string `json:"target" binding:"required"`
}

type sweepRequest struct {
	UserID string `json:"user_id"`
}

// ListCommunities lists join offers; include_inactive=true lists every community.
func (h *Handler) ListCommunities(c *gin.Context) {
	includeInactive, _ := strconv.ParseBool(c.Query("include_inactive"))

	communities, err := h.engine.ListCommunities(c.Request.Context(), includeInactive)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var response = make([]communityResponse, len(communities))
	for i, community := range communities {
		response[i] = toCommunityResponse(community)
	}
	c.JSON(http.StatusOK, response)
}

// CreateCommunity creates a community.
func (h *Handler) CreateCommunity(c *gin.Context) {
	var req createCommunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	community, err := h.engine.CreateCommunity(c.Request.Context(), membership.NewCommunity{
		ID:      req.ID,
		Name:    req.Name,
		AdminID: req.AdminID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toCommunityResponse(community))
}

// GetCommunity returns one community.
func (h *Handler) GetCommunity(c *gin.Context) {
	community, err := h.engine.GetCommunity(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCommunityResponse(community))
}

// DeleteCommunity deletes a community on behalf of a superuser.
func (h *Handler) DeleteCommunity(c *gin.Context) {
	if err := h.engine.DeleteCommunity(c.Request.Context(), c.Param("id"), callerID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RequestJoin asks for the caller to join the community.
func (h *Handler) RequestJoin(c *gin.Context) {
	var req joinRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	record, err := h.engine.RequestJoin(c.Request.Context(), callerID(c), c.Param("id"), membership.JoinDetails{
		Role:     membership.Role(req.Role),
		BlockRef: req.BlockRef,
		Address:  req.Address,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRecordResponse(record))
}

// CancelRequest withdraws the caller's pending request.
func (h *Handler) CancelRequest(c *gin.Context) {
	if err := h.engine.CancelRequest(c.Request.Context(), callerID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Leave removes the caller from the community.
func (h *Handler) Leave(c *gin.Context) {
	result, err := h.engine.Leave(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":      result.Outcome,
		"new_admin_id": result.NewAdminID,
	})
}

// AssignPresident sets the community's administrator.
func (h *Handler) AssignPresident(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	community, err := h.engine.AssignPresident(c.Request.Context(), c.Param("id"), req.Target, callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCommunityResponse(community))
}

// ListCommunityRecords lists the community's records, optionally filtered by ?status=.
func (h *Handler) ListCommunityRecords(c *gin.Context) {
	records, err := h.engine.ListCommunityRecords(c.Request.Context(), c.Param("id"), membership.Status(c.Query("status")), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRecordResponses(records))
}

// ListLeaders lists the community's active leaders.
func (h *Handler) ListLeaders(c *gin.Context) {
	leaders, err := h.engine.ListLeaders(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	var response = make([]leaderResponse, len(leaders))
	for i, leader := range leaders {
		response[i] = toLeaderResponse(leader)
	}
	c.JSON(http.StatusOK, response)
}

// AssignLeader sets the community's leader of the given type.
func (h *Handler) AssignLeader(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	leader, err := h.engine.AssignLeader(c.Request.Context(), c.Param("id"), req.Target, membership.LeaderType(c.Param("type")), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLeaderResponse(leader))
}

// RevokeLeader removes the community's leader of the given type.
func (h *Handler) RevokeLeader(c *gin.Context) {
	if err := h.engine.RevokeLeader(c.Request.Context(), c.Param("id"), membership.LeaderType(c.Param("type")), callerID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Decide approves or rejects a pending record.
func (h *Handler) Decide(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.engine.Decide(c.Request.Context(), c.Param("id"), membership.Decision(req.Decision), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRecordResponse(record))
}

// MyRecords lists every record the caller owns.
func (h *Handler) MyRecords(c *gin.Context) {
	records, err := h.engine.ListUserRecords(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRecordResponses(records))
}

// MyRequests lists the caller's records reduced to one per community.
func (h *Handler) MyRequests(c *gin.Context) {
	requests, err := h.engine.MyRequests(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	var response = make(map[string]recordResponse, len(requests))
	for communityID, record := range requests {
		response[communityID] = toRecordResponse(record)
	}
	c.JSON(http.StatusOK, response)
}

// Sweep runs a reconciliation sweep, scoped to user_id when given.
// Only superusers may sweep globally or on behalf of another user.
func (h *Handler) Sweep(c *gin.Context) {
	var req sweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var scope = membership.GlobalScope()
	if req.UserID != "" {
		scope = membership.UserScope(req.UserID)
	}

	report, err := h.engine.SweepAs(c.Request.Context(), scope, callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	var passes = make([]gin.H, len(report.Passes))
	for i, pass := range report.Passes {
		var entry = gin.H{
			"pass":    pass.Pass,
			"count":   pass.Count,
			"skipped": pass.Skipped,
		}
		if pass.Err != nil {
			entry["error"] = pass.Err.Error()
		}
		passes[i] = entry
	}

	var status = http.StatusOK
	if report.Err() != nil {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{
		"total":  report.Total(),
		"passes": passes,
	})
}
