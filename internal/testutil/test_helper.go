package testutil

import (
	"os"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/520Girl/socket-chat/internal/models"
)

// TestHelper provides utility functions for tests
type TestHelper struct {
	t *testing.T
}

func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// CreateTestUser creates a test user with default values
func (h *TestHelper) CreateTestUser(id uint, name string) *models.User {
	if id == 0 {
		id = 1
	}
	if name == "" {
		name = "testuser"
	}

	return &models.User{
		ID:        id,
		Name:      name,
		Avatar:    "https://example.com/avatar.jpg",
		Role:      "user",
		IsOnline:  false,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// CreateTestMessage creates a private text message with default values
func (h *TestHelper) CreateTestMessage(id, senderID, recipientID uint, content string) *models.Message {
	if id == 0 {
		id = 1
	}
	if senderID == 0 {
		senderID = 1
	}
	if recipientID == 0 {
		recipientID = 2
	}
	if content == "" {
		content = "Test message"
	}

	return &models.Message{
		ID:          id,
		SenderID:    senderID,
		RecipientID: &recipientID,
		Type:        models.TextMessage,
		Body:        models.NewBody(models.TextPayload{Content: content}),
		SentAt:      time.Now(),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Sender: models.User{
			ID:   senderID,
			Name: "sender",
		},
	}
}

// CreateTestGroupMessage creates a group text message with default values
func (h *TestHelper) CreateTestGroupMessage(id, senderID, groupID uint, content string) *models.Message {
	msg := h.CreateTestMessage(id, senderID, 0, content)
	msg.RecipientID = nil
	if groupID == 0 {
		groupID = 1
	}
	msg.GroupID = &groupID
	return msg
}

// SetupTestEnv sets up required environment variables for testing
func (h *TestHelper) SetupTestEnv() {
	os.Setenv("JWT_SECRET", "test-secret-key-for-testing-only")
	os.Setenv("DATABASE_URL", "")
}

// TeardownTestEnv cleans up environment variables after testing
func (h *TestHelper) TeardownTestEnv() {
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("DATABASE_URL")
}

// AssertError checks if an error occurred when it should (or shouldn't)
func (h *TestHelper) AssertError(err error, shouldErr bool, testName string) {
	if (err != nil) != shouldErr {
		if shouldErr {
			h.t.Errorf("%s: expected error but got nil", testName)
		} else {
			h.t.Errorf("%s: unexpected error: %v", testName, err)
		}
	}
}

// AssertEqual checks if two values are equal
func (h *TestHelper) AssertEqual(got, want interface{}, testName string) {
	if got != want {
		h.t.Errorf("%s: got %v, want %v", testName, got, want)
	}
}

// GetRecordNotFoundError returns the store's not-found error for mocks
func GetRecordNotFoundError() error {
	return gorm.ErrRecordNotFound
}
