package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/preenroll-api/internal/models"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

type fakeAuthSrv struct {
	login        *models.LoginResponse
	loginErr     error
	gotStudent   models.StudentLoginRequest
	loggedOut    string
	changedFor   int
	changedAdmin string
}

func (f *fakeAuthSrv) LoginAdmin(context.Context, models.AdminLoginRequest) (*models.LoginResponse, error) {
	return f.login, f.loginErr
}

func (f *fakeAuthSrv) LoginStudent(_ context.Context, req models.StudentLoginRequest) (*models.LoginResponse, error) {
	f.gotStudent = req
	return f.login, f.loginErr
}

func (f *fakeAuthSrv) RegisterStudent(context.Context, models.StudentRegisterRequest, string, string) (*models.LoginResponse, error) {
	return f.login, f.loginErr
}

func (f *fakeAuthSrv) RefreshToken(context.Context, models.RefreshTokenRequest) (*models.LoginResponse, error) {
	return f.login, f.loginErr
}

func (f *fakeAuthSrv) Logout(_ context.Context, _ *models.JWTClaims, refreshToken string) error {
	f.loggedOut = refreshToken
	return nil
}

func (f *fakeAuthSrv) Me(_ context.Context, claims *models.JWTClaims) (*models.UserInfo, error) {
	return &models.UserInfo{Role: claims.Role, Name: claims.Name}, nil
}

func (f *fakeAuthSrv) ChangeStudentPassword(_ context.Context, studentID int, _ models.ChangePasswordRequest) error {
	f.changedFor = studentID
	return nil
}

func (f *fakeAuthSrv) ChangeAdminPassword(_ context.Context, username string, _ models.ChangePasswordRequest) error {
	f.changedAdmin = username
	return nil
}

func sessionCookie(rec interface{ Result() *http.Response }, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestStudentLoginSetsCookie(t *testing.T) {
	srv := &fakeAuthSrv{login: &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 900}}
	h := NewAuthHandler(srv, AuthCookie{Name: "preenroll_token"})

	c, rec := newGinContext(http.MethodPost, "/auth/students/login",
		map[string]interface{}{"studentId": 2021001, "password": "secreto123"}, nil)
	h.StudentLogin(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2021001, srv.gotStudent.StudentID)
	ck := sessionCookie(rec, "preenroll_token")
	require.NotNil(t, ck)
	assert.Equal(t, "access", ck.Value)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, 900, ck.MaxAge)
}

func TestLoginFailureSetsNoCookie(t *testing.T) {
	srv := &fakeAuthSrv{loginErr: appErrors.ErrInvalidCredentials}
	h := NewAuthHandler(srv, AuthCookie{Name: "preenroll_token"})

	c, rec := newGinContext(http.MethodPost, "/auth/admins/login",
		map[string]interface{}{"username": "root", "password": "nope"}, nil)
	h.AdminLogin(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sessionCookie(rec, "preenroll_token"))
}

func TestLogoutClearsCookieAndPassesRefreshToken(t *testing.T) {
	srv := &fakeAuthSrv{}
	h := NewAuthHandler(srv, AuthCookie{Name: "preenroll_token"})

	c, rec := newGinContext(http.MethodPost, "/auth/logout", map[string]string{"refreshToken": "r-1"}, testStudent)
	h.Logout(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r-1", srv.loggedOut)
	ck := sessionCookie(rec, "preenroll_token")
	require.NotNil(t, ck)
	assert.Empty(t, ck.Value)
	assert.Less(t, ck.MaxAge, 0)

	c, rec = newGinContext(http.MethodPost, "/auth/logout", nil, nil)
	h.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordChecksRole(t *testing.T) {
	srv := &fakeAuthSrv{}
	h := NewAuthHandler(srv, AuthCookie{})
	payload := models.ChangePasswordRequest{CurrentPassword: "old-pass", NewPassword: "new-password"}

	c, rec := newGinContext(http.MethodPatch, "/auth/students/change-password", payload, testAdmin)
	h.ChangeStudentPassword(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = newGinContext(http.MethodPatch, "/auth/students/change-password", payload, testStudent)
	h.ChangeStudentPassword(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2021001, srv.changedFor)

	c, rec = newGinContext(http.MethodPatch, "/auth/admins/change-password", payload, testAdmin)
	h.ChangeAdminPassword(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "coordinacion", srv.changedAdmin)
}
