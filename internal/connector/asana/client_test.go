package asana

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/infoundr/infoundr/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListWorkspaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workspaces" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":[{"gid":"1200","name":"Infoundr HQ"}]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, discardLogger())
	workspaces, err := c.ListWorkspaces(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("ListWorkspaces: %v", err)
	}
	if len(workspaces) != 1 || workspaces[0].GID != "1200" || workspaces[0].Name != "Infoundr HQ" {
		t.Errorf("workspaces = %+v", workspaces)
	}
}

func TestCreateTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tasks" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Data struct {
				Name     string   `json:"name"`
				Notes    string   `json:"notes"`
				Projects []string `json:"projects"`
			} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if body.Data.Name != "Ship beta" || len(body.Data.Projects) != 1 || body.Data.Projects[0] != "42" {
			t.Errorf("request data = %+v", body.Data)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"gid":"777","name":"Ship beta","permalink_url":"https://app.asana.com/t/777"}}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, discardLogger())
	task, err := c.CreateTask(context.Background(), "tok-1", "42", "Ship beta", "before Friday")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.GID != "777" || task.PermalinkURL == "" {
		t.Errorf("task = %+v", task)
	}
}

func TestAuthFailureMapsToConnectionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"Not Authorized"}]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, discardLogger())
	_, err := c.ListWorkspaces(context.Background(), "bad-token")
	if !errors.Is(err, domain.ErrConnectionFailed) {
		t.Fatalf("err = %v, want ErrConnectionFailed", err)
	}

	var svcErr *domain.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Status != http.StatusUnauthorized {
		t.Errorf("err = %v, want ServiceError with status 401", err)
	}
}

func TestServerErrorMapsToUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, discardLogger())
	_, err := c.ListTasks(context.Background(), "tok-1", "42")
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}
