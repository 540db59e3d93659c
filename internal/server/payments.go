package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
)

// CreatePayment runs the full state machine synchronously and returns the
// payment in its final-for-now status.
func (s *Server) CreatePayment(c *gin.Context) {
	var req paymentdomain.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}

	payment, err := s.paymentSvc.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, payment)
}

func (s *Server) ListPayments(c *gin.Context) {
	req := paymentdomain.ListPaymentsRequest{
		Status: c.Query("status"),
	}
	if v := c.Query("user_id"); v != "" {
		userID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid user_id"})
			return
		}
		req.UserID = userID
	}
	req.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	req.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "15"))

	resp, err := s.paymentSvc.List(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, resp)
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid payment id"})
		return
	}

	payment, err := s.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, payment)
}

// RetryPayment re-runs a FAILED payment while retries remain. A payment that
// cannot be retried answers 409 rather than mutating anything.
func (s *Server) RetryPayment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid payment id"})
		return
	}

	payment, err := s.paymentSvc.Retry(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrRetryNotAllowed) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": "payment cannot be retried"})
			return
		}
		respondError(c, err)
		return
	}
	respondOK(c, payment)
}

func (s *Server) GetPaymentStatistics(c *gin.Context) {
	stats, err := s.paymentSvc.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stats)
}
