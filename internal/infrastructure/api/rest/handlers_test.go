package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// Setup gin test mode
func init() {
	gin.SetMode(gin.TestMode)
}

// Helper functions for testing

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}

	req, _ := http.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseJSON(t *testing.T, body string, v interface{}) {
	if err := json.Unmarshal([]byte(body), v); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
}

func TestGetParam(t *testing.T) {
	router := gin.New()

	router.GET("/valid/:id", func(c *gin.Context) {
		id, ok := getParam(c, "id")
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	// Test with valid param
	t.Run("valid param", func(t *testing.T) {
		w := performRequest(router, "GET", "/valid/test-id", nil)

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}

		var response map[string]string
		parseJSON(t, w.Body.String(), &response)

		if response["id"] != "test-id" {
			t.Errorf("expected id=test-id, got %s", response["id"])
		}
	})
}

func TestBindJSON(t *testing.T) {
	router := gin.New()

	router.POST("/test", func(c *gin.Context) {
		var req struct {
			Name string `json:"name"`
		}
		if err := bindJSON(c, &req); err != nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": req.Name})
	})

	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
		expectError    bool
	}{
		{
			name:           "valid JSON",
			body:           map[string]string{"name": "test"},
			expectedStatus: http.StatusOK,
			expectError:    false,
		},
		{
			name:           "invalid JSON",
			body:           "invalid",
			expectedStatus: http.StatusBadRequest,
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(router, "POST", "/test", tt.body)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}
