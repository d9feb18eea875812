package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"waypoint/internal/evaluation"
	"waypoint/internal/models"
)

// Clock handlers

func (s *Server) handleClockStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.clock.Status())
}

func (s *Server) handleClockStart(c *gin.Context) {
	if err := s.clock.Start(s.baseCtx); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.clock.Status())
}

func (s *Server) handleClockStop(c *gin.Context) {
	s.clock.Stop()
	c.JSON(http.StatusOK, s.clock.Status())
}

func (s *Server) handleClockStep(c *gin.Context) {
	if _, err := s.clock.Step(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.clock.Status())
}

func (s *Server) handleClockReset(c *gin.Context) {
	if err := s.clock.Reset(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.clock.Status())
}

// Action handlers

func (s *Server) handlePending(c *gin.Context) {
	actions, err := s.lifecycle.Pending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	actions, err := s.lifecycle.History(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

func (s *Server) handleAction(c *gin.Context) {
	detail, err := s.lifecycle.Action(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleApprove(c *gin.Context) {
	a, err := s.lifecycle.Approve(c.Request.Context(), c.Param("id"), c.GetString(deciderKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleDecline(c *gin.Context) {
	a, err := s.lifecycle.Decline(c.Request.Context(), c.Param("id"), c.GetString(deciderKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleExecute(c *gin.Context) {
	a, err := s.lifecycle.Execute(c.Request.Context(), c.Param("id"))
	if err != nil && a == nil {
		respondError(c, err)
		return
	}
	// A failed handler still produced a recorded outcome.
	c.JSON(http.StatusOK, a)
}

// Agent handlers

func (s *Server) handleListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, s.agents.List())
}

func (s *Server) handleAgentActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent, err := s.agents.SetActive(c.Request.Context(), c.Param("id"), active)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, agent)
	}
}

func (s *Server) handleAgentHistory(c *gin.Context) {
	agent, err := s.agents.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	actions, err := s.lifecycle.AgentHistory(c.Request.Context(), agent.AgentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

func (s *Server) handleScorecard(c *gin.Context) {
	agent, err := s.agents.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	actions, err := s.lifecycle.AgentHistory(c.Request.Context(), agent.AgentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, evaluation.Score(agent, actions))
}

// Operational data handlers

func (s *Server) handleInventory(c *gin.Context) {
	items, err := s.domain.ListInventory(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	type row struct {
		models.InventoryItem
		Status models.InventoryStatus `json:"status"`
	}
	out := make([]row, 0, len(items))
	for _, it := range items {
		out = append(out, row{InventoryItem: it, Status: it.Status()})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleOrders(c *gin.Context) {
	ctx := c.Request.Context()
	purchases, err := s.domain.ListPurchaseOrders(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	disposals, err := s.domain.ListDisposalOrders(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchase_orders": purchases, "disposal_orders": disposals})
}

func (s *Server) handleShipments(c *gin.Context) {
	ctx := c.Request.Context()
	shipments, err := s.domain.ListShipments(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	vehicles, err := s.domain.ListVehicles(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shipments": shipments, "vehicles": vehicles})
}

func (s *Server) handleSummary(c *gin.Context) {
	out := gin.H{}
	if s.summary != nil {
		for k, v := range s.summary.GetMetrics() {
			out[k] = v
		}
	}
	counts, err := s.domain.CountActionsByStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out["actions_by_status"] = counts
	out["clock"] = s.clock.Status()
	if s.hub != nil {
		out["ws_clients"] = s.hub.Clients()
	}
	c.JSON(http.StatusOK, out)
}
