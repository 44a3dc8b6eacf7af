// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authority/internal/auth"
	"github.com/holomush/authority/internal/httpapi"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-pass"
	userEmail     = "user@example.com"
	userPassword  = "user-pass"
)

// bootstrap registers the first (admin) account and a regular user, and
// returns a client logged in as the admin.
func bootstrap() *client {
	anon := newClient()
	var created auth.PublicUser
	Expect(anon.do(http.MethodPost, "/users", map[string]string{
		"email":    adminEmail,
		"password": adminPassword,
	}, &created)).To(Equal(http.StatusCreated))
	Expect(created.Role).To(Equal(auth.RoleAdmin))

	admin := newClient()
	admin.login(adminEmail, adminPassword)
	Expect(admin.do(http.MethodPost, "/users", map[string]string{
		"email":    userEmail,
		"password": userPassword,
	}, nil)).To(Equal(http.StatusCreated))
	return admin
}

var _ = Describe("Authority API", func() {
	BeforeEach(func() {
		resetDatabase()
	})

	Describe("Registration", func() {
		It("makes the first account an admin and closes anonymous registration", func() {
			bootstrap()

			var body httpapi.ErrorBody
			Expect(newClient().do(http.MethodPost, "/users", map[string]string{
				"email":    "late@example.com",
				"password": "late-pass",
			}, &body)).To(Equal(http.StatusUnauthorized))
		})

		It("lets only admins register further users", func() {
			bootstrap()
			u := newClient()
			u.login(userEmail, userPassword)

			var body httpapi.ErrorBody
			Expect(u.do(http.MethodPost, "/users", map[string]string{
				"email":    "other@example.com",
				"password": "other-pass",
			}, &body)).To(Equal(http.StatusForbidden))
			Expect(body.Message).To(Equal(auth.MsgAdminOnlyRegister))
		})

		It("rejects a duplicate email", func() {
			admin := bootstrap()
			Expect(admin.do(http.MethodPost, "/users", map[string]string{
				"email":    userEmail,
				"password": "another",
			}, nil)).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Sessions", func() {
		It("rejects a wrong password with the generic message", func() {
			bootstrap()
			var body httpapi.ErrorBody
			Expect(newClient().do(http.MethodPost, "/auth/login", map[string]string{
				"email":    userEmail,
				"password": "wrong",
			}, &body)).To(Equal(http.StatusUnauthorized))
			Expect(body.Message).To(Equal(auth.MsgInvalidCredentials))
		})

		It("rotates refresh tokens and refuses a replayed one", func() {
			bootstrap()
			u := newClient()
			first := u.login(userEmail, userPassword)

			var second auth.LoginResult
			Expect(u.do(http.MethodPost, "/auth/refresh", map[string]string{
				"refreshToken": first.RefreshToken,
			}, &second)).To(Equal(http.StatusOK))
			Expect(second.RefreshToken).NotTo(Equal(first.RefreshToken))

			Expect(u.do(http.MethodPost, "/auth/refresh", map[string]string{
				"refreshToken": first.RefreshToken,
			}, nil)).To(Equal(http.StatusBadRequest))
		})

		It("refuses another user's refresh token", func() {
			admin := bootstrap()
			u := newClient()
			userSession := u.login(userEmail, userPassword)

			Expect(admin.do(http.MethodPost, "/auth/refresh", map[string]string{
				"refreshToken": userSession.RefreshToken,
			}, nil)).To(Equal(http.StatusBadRequest))
		})

		It("lists active sessions and revokes them on logout", func() {
			bootstrap()
			phone := newClient()
			laptop := newClient()
			phone.login(userEmail, userPassword)
			laptopSession := laptop.login(userEmail, userPassword)

			var sessions []auth.Session
			Expect(laptop.do(http.MethodGet, "/auth/sessions", nil, &sessions)).To(Equal(http.StatusOK))
			Expect(sessions).To(HaveLen(2))

			var out auth.LogoutResult
			Expect(laptop.do(http.MethodPost, "/auth/logout", map[string]string{
				"refreshToken": laptopSession.RefreshToken,
			}, &out)).To(Equal(http.StatusOK))
			Expect(out.Success).To(BeTrue())

			Expect(phone.do(http.MethodGet, "/auth/sessions", nil, &sessions)).To(Equal(http.StatusOK))
			Expect(sessions).To(HaveLen(1))

			Expect(phone.do(http.MethodPost, "/auth/logout-all-devices", nil, &out)).To(Equal(http.StatusOK))
			Expect(phone.do(http.MethodGet, "/auth/sessions", nil, &sessions)).To(Equal(http.StatusOK))
			Expect(sessions).To(BeEmpty())
		})

		It("requires credentials for protected routes", func() {
			Expect(newClient().do(http.MethodGet, "/users/me", nil, nil)).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Password reset", func() {
		It("replaces the password once and revokes every session", func() {
			bootstrap()
			u := newClient()
			session := u.login(userEmail, userPassword)

			var res auth.OperationResult
			Expect(newClient().do(http.MethodPost, "/auth/password-reset-request", map[string]string{
				"email": userEmail,
			}, &res)).To(Equal(http.StatusOK))
			Expect(res.Success).To(BeTrue())
			token := env.mail.resetToken(userEmail)
			Expect(token).NotTo(BeEmpty())

			Expect(u.do(http.MethodPost, "/auth/password-reset", map[string]string{
				"token":       token,
				"newPassword": "fresh-pass",
			}, &res)).To(Equal(http.StatusOK))
			Expect(res.Success).To(BeTrue())

			Expect(u.do(http.MethodPost, "/auth/password-reset", map[string]string{
				"token":       token,
				"newPassword": "again-pass",
			}, nil)).To(Equal(http.StatusUnauthorized))

			Expect(u.do(http.MethodPost, "/auth/refresh", map[string]string{
				"refreshToken": session.RefreshToken,
			}, nil)).To(Equal(http.StatusBadRequest))

			Expect(newClient().do(http.MethodPost, "/auth/login", map[string]string{
				"email":    userEmail,
				"password": userPassword,
			}, nil)).To(Equal(http.StatusUnauthorized))
			newClient().login(userEmail, "fresh-pass")
		})

		It("does not reveal an unknown email", func() {
			var body auth.OperationResult
			Expect(newClient().do(http.MethodPost, "/auth/password-reset-request", map[string]string{
				"email": "nobody@example.com",
			}, &body)).To(Equal(http.StatusOK))
			Expect(body.Success).To(BeTrue())
			Expect(body.Message).To(Equal(auth.MsgResetRequested))
			Expect(env.mail.resetToken("nobody@example.com")).To(BeEmpty())
		})
	})

	Describe("Email verification", func() {
		It("marks the address verified with the mailed token", func() {
			bootstrap()
			token := env.mail.verifyToken(userEmail)
			Expect(token).NotTo(BeEmpty())

			var res auth.OperationResult
			Expect(newClient().do(http.MethodPost, "/auth/verify-email", map[string]string{
				"token": token,
			}, &res)).To(Equal(http.StatusOK))
			Expect(res.Success).To(BeTrue())

			u := newClient()
			u.login(userEmail, userPassword)
			var me auth.PublicUser
			Expect(u.do(http.MethodGet, "/users/me", nil, &me)).To(Equal(http.StatusOK))
			Expect(me.IsEmailVerified).To(BeTrue())
		})

		It("rejects an unknown token", func() {
			Expect(newClient().do(http.MethodPost, "/auth/verify-email", map[string]string{
				"token": "not-a-token",
			}, nil)).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("User management", func() {
		It("lets admins search and delete users", func() {
			admin := bootstrap()

			var page auth.Page[auth.PublicUser]
			Expect(admin.do(http.MethodGet, "/users?email=user@&sortBy=email&sortDirection=ASC", nil, &page)).
				To(Equal(http.StatusOK))
			Expect(page.Total).To(Equal(1))
			Expect(page.Items[0].Email).To(Equal(userEmail))

			var deleted struct {
				Success bool `json:"success"`
			}
			Expect(admin.do(http.MethodDelete, "/users/"+page.Items[0].ID, nil, &deleted)).To(Equal(http.StatusOK))
			Expect(deleted.Success).To(BeTrue())

			Expect(newClient().do(http.MethodPost, "/auth/login", map[string]string{
				"email":    userEmail,
				"password": userPassword,
			}, nil)).To(Equal(http.StatusUnauthorized))
		})

		It("keeps regular users to their own profile", func() {
			admin := bootstrap()
			var me auth.PublicUser
			Expect(admin.do(http.MethodGet, "/users/me", nil, &me)).To(Equal(http.StatusOK))

			u := newClient()
			u.login(userEmail, userPassword)
			Expect(u.do(http.MethodGet, "/users/"+me.ID, nil, nil)).To(Equal(http.StatusForbidden))
			Expect(u.do(http.MethodGet, "/users", nil, nil)).To(Equal(http.StatusForbidden))
		})

		It("changes the caller's password after checking the current one", func() {
			bootstrap()
			u := newClient()
			u.login(userEmail, userPassword)

			Expect(u.do(http.MethodPatch, "/users/me/password", map[string]string{
				"currentPassword": "wrong",
				"newPassword":     "next-pass",
			}, nil)).To(Equal(http.StatusBadRequest))

			Expect(u.do(http.MethodPatch, "/users/me/password", map[string]string{
				"currentPassword": userPassword,
				"newPassword":     "next-pass",
			}, nil)).To(Equal(http.StatusOK))
			newClient().login(userEmail, "next-pass")
		})
	})
})
