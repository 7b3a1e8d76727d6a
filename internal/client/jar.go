package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// PersistentJar is a cookie jar that writes the session cookie to disk so
// separate CLI invocations share one login. An empty path keeps cookies in
// memory only.
type PersistentJar struct {
	path string
	jar  *cookiejar.Jar

	mu   sync.Mutex
	urls map[string]*url.URL
}

type savedCookie struct {
	URL   string `json:"url"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewPersistentJar loads any cookies previously saved at path.
func NewPersistentJar(path string) (*PersistentJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	j := &PersistentJar{path: path, jar: jar, urls: make(map[string]*url.URL)}
	if path == "" {
		return j, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}

	var saved []savedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		// A corrupt cookie file only costs a re-login.
		return j, nil
	}
	for _, c := range saved {
		u, err := url.Parse(c.URL)
		if err != nil {
			continue
		}
		j.remember(u)
		jar.SetCookies(u, []*http.Cookie{{Name: c.Name, Value: c.Value, Path: "/"}})
	}
	return j, nil
}

func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)
	j.remember(u)
	// Best effort: the in-memory jar keeps working if the write fails.
	_ = j.Save()
}

func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// Save writes the current cookies for every origin seen so far.
func (j *PersistentJar) Save() error {
	if j.path == "" {
		return nil
	}

	j.mu.Lock()
	var saved []savedCookie
	for key, u := range j.urls {
		for _, c := range j.jar.Cookies(u) {
			saved = append(saved, savedCookie{URL: key, Name: c.Name, Value: c.Value})
		}
	}
	j.mu.Unlock()

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(j.path, data, 0o600)
}

func (j *PersistentJar) remember(u *url.URL) {
	origin := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	j.mu.Lock()
	j.urls[origin.String()] = origin
	j.mu.Unlock()
}
