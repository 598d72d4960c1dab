package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/dukerupert/curtaincall/internal/auth"
	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLinkCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := newLinkCode()
		require.NoError(t, err)
		assert.True(t, validLinkCode(code), code)
	}
	assert.False(t, validLinkCode("abc123"))
	assert.False(t, validLinkCode("ABC12"))
	assert.False(t, validLinkCode("ABC-12"))
}

func TestParentLinking(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ada, err := f.members.Create(ctx, "Ada")
	require.NoError(t, err)

	f.parentH.newCode = func() (string, error) { return "ADA123", nil }

	rec := call(f.parentH.LinkCode, memberSession("someone-else"), "GET", nil, "id", ada.ID)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(f.parentH.LinkCode, staffSession, "GET", nil, "id", "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(f.parentH.LinkCode, memberSession(ada.ID), "GET", nil, "id", ada.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	code := decodeBody[map[string]string](t, rec)["code"]
	require.Equal(t, "ADA123", code)

	parent := auth.Session{UserID: "p1", Role: auth.RoleParent}

	// Before linking the parent cannot read the member.
	rec = call(f.memberH.Get, parent, "GET", nil, "id", ada.ID)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(f.parentH.Link, parent, "POST", map[string]string{"code": "12"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(f.parentH.Link, parent, "POST", map[string]string{"code": "ZZZZZZ"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Codes are matched case-insensitively and trimmed.
	rec = call(f.parentH.Link, parent, "POST", map[string]string{"code": "  " + strings.ToLower(code) + " "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, ada.ID, decodeBody[model.Member](t, rec).ID)

	ids, err := f.links.ChildIDs(ctx, parent.UserID)
	require.NoError(t, err)
	parent.Children = ids

	rec = call(f.memberH.Get, parent, "GET", nil, "id", ada.ID)
	assert.Equal(t, http.StatusOK, rec.Code, "linked parent reads the child")

	rec = call(f.parentH.Children, parent, "GET", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	children := decodeBody[[]model.Member](t, rec)
	require.Len(t, children, 1)
	assert.Equal(t, "Ada", children[0].Name)

	// A parent may not redeem on the child's behalf.
	rec = call(f.rewardH.Redeem, parent, "POST", map[string]string{"item_id": "x"}, "id", ada.ID)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(f.parentH.Unlink, parent, "DELETE", nil, "id", ada.ID)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = call(f.parentH.Unlink, parent, "DELETE", nil, "id", ada.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
