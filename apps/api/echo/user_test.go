package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/edurpg/edurpg/apps/api/echo"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/tests"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	pwd := "Pass!234"
	john := testutil.CreateUser(t, app.Repos.Users, "John", "john", "john@test.cd", pwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, app.Repos.Users, "N Dog", "ndog", "ndog@test.cd", pwd, []string{user.RoleStudent}, false)

	type login struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	tests := []httpTest{
		{
			name:     "missing fields",
			body:     marshallObj(t, login{}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{
				"username": "this field is required",
				"password": "this field is required",
			}),
		},
		{
			name:     "unknown user",
			body:     marshallObj(t, login{Username: "ghost", Password: pwd}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "wrong password",
			body:     marshallObj(t, login{Username: "john", Password: "nope"}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "deactivated",
			body:     marshallObj(t, login{Username: "ndog", Password: pwd}),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("success", func(t *testing.T) {
		for _, uname := range []string{" JOHN ", "john@test.cd"} {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", marshallObj(t, login{Username: uname, Password: pwd}))
			app.srv.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp echoapi.LoginResponse
			decode(t, rec, &resp)
			claims := new(echoapi.Claims)
			_, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
				return []byte(app.Conf.SecretKey), nil
			})
			require.NoError(t, err)
			assert.Equal(t, john.ID, claims.Subject)
			assert.True(t, claims.IsStudent)
			assert.False(t, claims.IsAdmin)
		}
	})
}

func Test_userApi_authRequired(t *testing.T) {
	app := setup(t)
	student := app.Student(t, "student")

	runHTTPTests(t, app, []httpTest{
		{
			name:     "missing token",
			method:   http.MethodGet,
			path:     "/v1/me",
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errMissingToken),
		},
		{
			name:     "bad token",
			method:   http.MethodGet,
			path:     "/v1/wallet",
			token:    "not.a.token",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "refresh",
			method:   http.MethodPost,
			path:     "/v1/users/token-refresh",
			token:    app.token(t, student),
			wantCode: http.StatusOK,
		},
	})
}

func Test_userApi_permissions(t *testing.T) {
	app := setup(t)
	student := app.Student(t, "student")
	other := app.Student(t, "other")
	admin := app.Admin(t, "admin")
	studentToken := app.token(t, student)
	adminToken := app.token(t, admin)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "student cannot list users",
			method:   http.MethodGet,
			path:     "/v1/users",
			token:    studentToken,
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "student cannot see others",
			method:   http.MethodGet,
			path:     "/v1/users/" + other.ID,
			token:    studentToken,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "not found"}),
		},
		{
			name:     "student cannot delete",
			method:   http.MethodDelete,
			path:     "/v1/users/" + student.ID,
			token:    studentToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "admin cannot delete themselves",
			method:   http.MethodDelete,
			path:     "/v1/users/" + admin.ID,
			token:    adminToken,
			wantCode: http.StatusForbidden,
		},
	})

	t.Run("self", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/users/"+student.ID, studentToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var got user.User
		decode(t, rec, &got)
		assert.Equal(t, student.ID, got.ID)
		assert.Equal(t, "student", got.Username)
	})

	t.Run("admin lists users", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/users?ordering=username", adminToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var got []user.User
		decode(t, rec, &got)
		assert.Len(t, got, 3)
	})

	t.Run("admin deletes user", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/v1/users/"+other.ID, adminToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = app.do(http.MethodGet, "/v1/users/"+other.ID, adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	app := setup(t)
	app.Student(t, "student")

	for _, email := range []string{"student@test.cd", "unknown@test.cd"} {
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", marshallObj(t, map[string]string{"email": email}))
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Len(t, app.Mail.SentMessages(), 1)
}
