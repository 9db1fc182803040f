package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/spacesedan/ytsentiment/internal/classifier"
	"github.com/spacesedan/ytsentiment/internal/comments"
	"github.com/spacesedan/ytsentiment/internal/features"
	"github.com/spacesedan/ytsentiment/internal/pipeline"
	"github.com/spacesedan/ytsentiment/internal/store"
	"github.com/spacesedan/ytsentiment/internal/video"
)

// mapError converts a pipeline error into the status and message clients see.
func mapError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, video.ErrInvalidIdentifier):
		return echo.NewHTTPError(http.StatusBadRequest, "not a valid YouTube video URL or id")
	case errors.Is(err, comments.ErrInvalidLimit):
		return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive number")

	case errors.Is(err, comments.ErrAuthenticationMissing):
		return echo.NewHTTPError(http.StatusNotFound, "no comments were retrieved: comment fetching is not configured")
	case errors.Is(err, comments.ErrVideoNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "no comments were retrieved: video not found or comments disabled")
	case errors.Is(err, pipeline.ErrNoComments):
		return echo.NewHTTPError(http.StatusNotFound, "no comments were retrieved")
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "analysis not found or expired")

	case errors.Is(err, features.ErrFeatureSchemaMismatch):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())

	// upstream errors wrap the deadline, so it has to be checked first
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "analysis timed out")

	case errors.Is(err, comments.ErrRemoteAPI):
		return echo.NewHTTPError(http.StatusBadGateway, "YouTube API request failed")
	case errors.Is(err, classifier.ErrPrediction):
		return echo.NewHTTPError(http.StatusBadGateway, "sentiment model request failed")

	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
