// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

//go:build integration

package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

// envelope mirrors the API response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type sessionData struct {
	Token string `json:"token"`
	User  struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		PostsCount int    `json:"posts_count"`
	} `json:"user"`
}

type postData struct {
	ID             string `json:"id"`
	AuthorID       string `json:"author_id"`
	Content        string `json:"content"`
	LikesCount     int    `json:"likes_count"`
	AuthorUsername string `json:"author_username"`
	Liked          *bool  `json:"liked"`
}

func doJSON(method, path, token string, body any) (int, envelope) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, env.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close() //nolint:errcheck

	var out envelope
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}

func register(username, email, password string) sessionData {
	status, body := doJSON(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	Expect(status).To(Equal(http.StatusCreated))
	Expect(body.Success).To(BeTrue())

	var session sessionData
	Expect(json.Unmarshal(body.Data, &session)).To(Succeed())
	Expect(session.Token).NotTo(BeEmpty())
	return session
}

var _ = Describe("Account lifecycle", func() {
	It("registers an account and the token works immediately", func() {
		session := register("ana", "ana@example.com", "correct horse battery")

		status, body := doJSON(http.MethodPost, "/api/posts", session.Token, map[string]string{
			"content": "first post",
		})
		Expect(status).To(Equal(http.StatusCreated))
		Expect(body.Success).To(BeTrue())
	})

	It("rejects a duplicate username regardless of case", func() {
		register("casetest", "casetest@example.com", "correct horse battery")

		status, body := doJSON(http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "CaseTest",
			"email":    "other@example.com",
			"password": "correct horse battery",
		})
		Expect(status).To(Equal(http.StatusConflict))
		Expect(body.Success).To(BeFalse())
	})

	It("logs in with the registered password and rejects a wrong one", func() {
		register("bela", "bela@example.com", "correct horse battery")

		status, body := doJSON(http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "bela",
			"password": "correct horse battery",
		})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body.Success).To(BeTrue())

		status, body = doJSON(http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "bela",
			"password": "wrong",
		})
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body.Success).To(BeFalse())
	})

	It("serves a public profile without email or hash", func() {
		register("cora", "cora@example.com", "correct horse battery")

		status, body := doJSON(http.MethodGet, "/api/users/cora", "", nil)
		Expect(status).To(Equal(http.StatusOK))

		var raw map[string]json.RawMessage
		Expect(json.Unmarshal(body.Data, &raw)).To(Succeed())
		Expect(raw).To(HaveKey("username"))
		Expect(raw).NotTo(HaveKey("email"))
		Expect(raw).NotTo(HaveKey("password_hash"))
	})
})

var _ = Describe("Feed", func() {
	It("returns posts newest first with author projection", func() {
		session := register("dana", "dana@example.com", "correct horse battery")

		for i := range 3 {
			status, _ := doJSON(http.MethodPost, "/api/posts", session.Token, map[string]string{
				"content": fmt.Sprintf("dana post %d", i),
			})
			Expect(status).To(Equal(http.StatusCreated))
		}

		status, body := doJSON(http.MethodGet, "/api/posts?limit=3", "", nil)
		Expect(status).To(Equal(http.StatusOK))

		var posts []postData
		Expect(json.Unmarshal(body.Data, &posts)).To(Succeed())
		Expect(posts).To(HaveLen(3))
		Expect(posts[0].Content).To(Equal("dana post 2"))
		Expect(posts[0].AuthorUsername).To(Equal("dana"))
		// Anonymous requests carry no liked annotation.
		Expect(posts[0].Liked).To(BeNil())
	})

	It("toggles a like on and off with the counter in step", func() {
		author := register("liker_author", "liker_author@example.com", "correct horse battery")
		liker := register("liker", "liker@example.com", "correct horse battery")

		status, body := doJSON(http.MethodPost, "/api/posts", author.Token, map[string]string{
			"content": "like me",
		})
		Expect(status).To(Equal(http.StatusCreated))
		var post postData
		Expect(json.Unmarshal(body.Data, &post)).To(Succeed())

		status, body = doJSON(http.MethodPost, "/api/posts/"+post.ID+"/like", liker.Token, nil)
		Expect(status).To(Equal(http.StatusOK))
		var toggle struct {
			Liked bool `json:"liked"`
		}
		Expect(json.Unmarshal(body.Data, &toggle)).To(Succeed())
		Expect(toggle.Liked).To(BeTrue())

		// The viewer's feed reflects both the like and the count.
		status, body = doJSON(http.MethodGet, "/api/posts?limit=50", liker.Token, nil)
		Expect(status).To(Equal(http.StatusOK))
		var posts []postData
		Expect(json.Unmarshal(body.Data, &posts)).To(Succeed())
		found := false
		for _, p := range posts {
			if p.ID == post.ID {
				found = true
				Expect(p.LikesCount).To(Equal(1))
				Expect(p.Liked).NotTo(BeNil())
				Expect(*p.Liked).To(BeTrue())
			}
		}
		Expect(found).To(BeTrue())

		status, body = doJSON(http.MethodPost, "/api/posts/"+post.ID+"/like", liker.Token, nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(body.Data, &toggle)).To(Succeed())
		Expect(toggle.Liked).To(BeFalse())
	})

	It("requires authentication to create a post", func() {
		status, body := doJSON(http.MethodPost, "/api/posts", "", map[string]string{
			"content": "anonymous post",
		})
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body.Success).To(BeFalse())
	})

	It("rejects over-length content", func() {
		session := register("long_poster", "long_poster@example.com", "correct horse battery")

		long := make([]byte, 501)
		for i := range long {
			long[i] = 'a'
		}
		status, body := doJSON(http.MethodPost, "/api/posts", session.Token, map[string]string{
			"content": string(long),
		})
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body.Success).To(BeFalse())
	})
})
