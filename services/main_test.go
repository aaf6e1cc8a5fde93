package services

import (
	"io"
	"os"
	"testing"

	"github.com/kendall-kelly/service-spot-api/logger"
	"github.com/kendall-kelly/service-spot-api/models"
	"github.com/kendall-kelly/service-spot-api/testutil"
)

func TestMain(m *testing.M) {
	testutil.RequireTestEnvironment()
	PasswordHashParams = testutil.FastHashParams
	logger.SetOutput(io.Discard, "error")

	os.Exit(m.Run())
}

// actorFor builds the actor a resolved session would carry for p
func actorFor(p *models.Principal) *Actor {
	return &Actor{ID: p.ID, Role: p.Role}
}
