package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// step is one request of the session lifecycle and the status it must produce.
type step struct {
	Name     string
	Method   string
	Path     string
	Token    func(*session) string
	Body     func(*session) interface{}
	Want     int
	Critical bool
	Capture  func(*session, map[string]interface{})
}

type session struct {
	access       string
	refresh      string
	firstRefresh string
}

type result struct {
	Step     step
	Status   int
	Duration time.Duration
	Error    error
}

func main() {
	var (
		base     string
		prefix   string
		username string
		password string
		timeout  time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&prefix, "prefix", "/api/v1", "API route prefix")
	flag.StringVar(&username, "username", "", "Account used for the run")
	flag.StringVar(&password, "password", "", "Password of the account")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	if username == "" || password == "" {
		log.Fatal("username and password are required")
	}

	client := &http.Client{Timeout: timeout}
	root := strings.TrimRight(base, "/") + prefix

	state := &session{}
	var (
		results  []result
		breaking int
	)
	for _, s := range lifecycle(username, password) {
		res := run(client, root, state, s)
		if (res.Error != nil || res.Status != s.Want) && s.Critical {
			breaking++
		}
		results = append(results, res)
		if res.Error != nil && s.Critical {
			break
		}
	}

	printReport(results)

	fmt.Printf("Failed critical steps: %d\n", breaking)
	if breaking > 0 {
		os.Exit(1)
	}
}

func lifecycle(username, password string) []step {
	bearer := func(s *session) string { return s.access }
	current := func(s *session) interface{} { return map[string]string{"refresh_token": s.refresh} }
	takePair := func(s *session, data map[string]interface{}) {
		s.access, _ = data["access_token"].(string)
		s.refresh, _ = data["refresh_token"].(string)
	}

	return []step{
		{
			Name: "login", Method: http.MethodPost, Path: "/auth/login", Want: http.StatusOK, Critical: true,
			Body: func(*session) interface{} {
				return map[string]string{"username": username, "password": password}
			},
			Capture: func(s *session, data map[string]interface{}) {
				takePair(s, data)
				s.firstRefresh = s.refresh
			},
		},
		{Name: "me with access token", Method: http.MethodGet, Path: "/auth/me", Token: bearer, Want: http.StatusOK, Critical: true},
		{Name: "me without token", Method: http.MethodGet, Path: "/auth/me", Want: http.StatusUnauthorized, Critical: true},
		{Name: "rotate", Method: http.MethodPost, Path: "/auth/refresh", Body: current, Want: http.StatusOK, Critical: true, Capture: takePair},
		{
			Name: "replay rotated refresh token", Method: http.MethodPost, Path: "/auth/refresh", Want: http.StatusUnauthorized, Critical: true,
			Body: func(s *session) interface{} { return map[string]string{"refresh_token": s.firstRefresh} },
		},
		{Name: "sessions", Method: http.MethodGet, Path: "/auth/sessions", Token: bearer, Want: http.StatusOK},
		{Name: "logout", Method: http.MethodPost, Path: "/auth/logout", Body: current, Want: http.StatusNoContent, Critical: true},
		{Name: "refresh after logout", Method: http.MethodPost, Path: "/auth/refresh", Body: current, Want: http.StatusUnauthorized, Critical: true},
		{Name: "logout again", Method: http.MethodPost, Path: "/auth/logout", Body: current, Want: http.StatusNoContent},
		{Name: "logout everywhere", Method: http.MethodPost, Path: "/auth/logout-all", Token: bearer, Want: http.StatusOK},
	}
}

func run(client *http.Client, root string, state *session, s step) result {
	res := result{Step: s}

	var body io.Reader
	if s.Body != nil {
		raw, err := json.Marshal(s.Body(state))
		if err != nil {
			res.Error = err
			return res
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(s.Method, root+s.Path, body)
	if err != nil {
		res.Error = err
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != nil {
		req.Header.Set("Authorization", "Bearer "+s.Token(state))
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode

	if s.Capture != nil && resp.StatusCode == s.Want {
		data, err := decodeData(resp.Body)
		if err != nil {
			res.Error = fmt.Errorf("decode body: %w", err)
			return res
		}
		s.Capture(state, data)
	}
	return res
}

func decodeData(r io.Reader) (map[string]interface{}, error) {
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return nil, errors.New("response has no data")
	}
	return envelope.Data, nil
}

func printReport(results []result) {
	fmt.Println("Session Smoke Report")
	fmt.Println("====================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if res.Status != res.Step.Want {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s (%s)\n", status, res.Step.Method, res.Step.Path, res.Step.Name)
		fmt.Printf("  Status: %d want %d (%s)\n", res.Status, res.Step.Want, res.Duration)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		}
	}
}
