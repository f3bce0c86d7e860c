package response

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerError(t *testing.T) {
	got := ServerError("Failed to create short URL")

	assert.Equal(t, ErrorResponse{
		Error:   "Internal server error",
		Message: "Failed to create short URL",
	}, got)
}

func TestErrorResponse_JSON(t *testing.T) {
	data, err := json.Marshal(ShortcodeNotFoundResponse)

	assert.NoError(t, err)
	assert.JSONEq(t, `{
		"error": "Shortcode not found",
		"message": "The requested shortcode does not exist or has expired"
	}`, string(data))
}
