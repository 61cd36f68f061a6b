package server

import (
	"fmt"
	"net/http"
	"testing"

	"vivaha/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileHandlers_OwnProfileRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	member := createHandlerUser(t, s.db, "member", false)

	app := fiber.New()
	app.Use(asUser(member.ID))
	app.Get("/profiles/me", s.GetMyProfile)
	app.Put("/profiles/me", s.UpdateMyProfile)

	resp := doJSON(t, app, http.MethodGet, "/profiles/me", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodPut, "/profiles/me", models.Profile{
		FullName: "Asha Rao",
		Gender:   "female",
		City:     "Mumbai",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var saved models.Profile
	decodeBody(t, resp, &saved)
	assert.Equal(t, member.ID, saved.UserID)

	resp = doJSON(t, app, http.MethodGet, "/profiles/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loaded models.Profile
	decodeBody(t, resp, &loaded)
	assert.Equal(t, "Asha Rao", loaded.FullName)
	assert.Equal(t, "Mumbai", loaded.City)
}

func TestGetProfile_HidesModeratedMembers(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	viewer := createHandlerUser(t, s.db, "viewer", false)
	shown := createHandlerUser(t, s.db, "shown", false)
	bannedUser := createHandlerUser(t, s.db, "banned", false)

	for _, u := range []models.User{shown, bannedUser} {
		require.NoError(t, s.db.Create(&models.Profile{
			UserID:   u.ID,
			FullName: u.Username,
			Gender:   "female",
			Visible:  true,
		}).Error)
	}
	require.NoError(t, s.db.Model(&models.User{}).
		Where("id = ?", bannedUser.ID).
		Updates(map[string]interface{}{"status": models.StatusBanned, "is_ban_active": true}).Error)

	app := fiber.New()
	app.Use(asUser(viewer.ID))
	app.Get("/profiles/:id", s.GetProfile)

	resp := doJSON(t, app, http.MethodGet, fmt.Sprintf("/profiles/%d", shown.ID), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	// A banned member's profile is indistinguishable from a missing one.
	resp = doJSON(t, app, http.MethodGet, fmt.Sprintf("/profiles/%d", bannedUser.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestBrowseProfilesHandler(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	a := createHandlerUser(t, s.db, "a", false)
	b := createHandlerUser(t, s.db, "b", false)

	require.NoError(t, s.db.Create(&models.Profile{UserID: a.ID, FullName: "A", Gender: "female", City: "Pune", Visible: true}).Error)
	require.NoError(t, s.db.Create(&models.Profile{UserID: b.ID, FullName: "B", Gender: "male", City: "Pune", Visible: true}).Error)

	app := fiber.New()
	app.Get("/profiles", s.BrowseProfiles)

	resp := doJSON(t, app, http.MethodGet, "/profiles?gender=female&city=Pune", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Profiles []models.Profile `json:"profiles"`
		Count    int              `json:"count"`
	}
	decodeBody(t, resp, &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, a.ID, body.Profiles[0].UserID)
}
