package handlers

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// Set JWT secret for tests that exercise GenerateJWT (login success path)
	os.Setenv("ESD_JWT_SECRET", "test-handlers-jwt-secret-32chars!!")
	os.Exit(m.Run())
}
