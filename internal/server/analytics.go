package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetDashboard(c *gin.Context) {
	stats, err := s.analyticsSvc.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stats)
}

func (s *Server) GetRevenueTrend(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))

	trend, err := s.analyticsSvc.RevenueTrend(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, trend)
}

func (s *Server) GetTopMerchants(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	merchants, err := s.analyticsSvc.TopMerchants(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, merchants)
}

func (s *Server) GetFraudPatterns(c *gin.Context) {
	patterns, err := s.analyticsSvc.FraudPatterns(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, patterns)
}
