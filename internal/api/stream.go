package api

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/medical-report-analyzer/internal/domain"
	"github.com/medical-report-analyzer/internal/middleware"
	"github.com/medical-report-analyzer/internal/service"
)

const (
	streamSource = "stream"
	writeWait    = 10 * time.Second
)

// StreamError is written back when a stream message cannot be analyzed.
type StreamError struct {
	Error *domain.APIError `json:"error"`
}

// handleStream upgrades to a websocket. Every text message is one report; each
// gets an AnalyzeResponse or a StreamError in the order received.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	correlationID := c.GetString(middleware.CorrelationIDKey)
	if limit := s.configManager.GetAnalysisConfig().MaxTextBytes; limit > 0 {
		conn.SetReadLimit(int64(limit))
	}

	logger := s.logger.WithField("correlation_id", correlationID)
	logger.Info("Analysis stream opened")

	analyzed := 0
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Warn("Analysis stream closed unexpectedly")
			}
			break
		}

		var reply any
		if messageType != websocket.TextMessage {
			reply = StreamError{Error: domain.NewAPIError(domain.ErrInvalidInput,
				"Only text messages are accepted", "", correlationID)}
		} else {
			reply = s.analyzeStreamMessage(c, string(message), correlationID)
		}

		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			break
		}
		if err := conn.WriteJSON(reply); err != nil {
			logger.WithError(err).Warn("Failed to write stream reply")
			break
		}
		analyzed++
	}

	logger.WithFields(logrus.Fields{"messages": analyzed}).Info("Analysis stream closed")
}

func (s *Server) analyzeStreamMessage(c *gin.Context, text, correlationID string) any {
	record, err := s.analyzer.AnalyzeReport(c.Request.Context(), &service.AnalyzeRequest{
		Text:   text,
		Source: streamSource,
	})
	if err == nil {
		return newAnalyzeResponse(record)
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return StreamError{Error: domain.NewAPIError(domain.ErrValidation, validationErr.Message, validationErr.Field, correlationID)}
	}
	s.logger.WithError(err).Error("Stream analysis failed")
	return StreamError{Error: domain.NewAPIError(domain.ErrInternalServer, "Analysis failed", "", correlationID)}
}
