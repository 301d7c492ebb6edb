// Package testutil provides in-memory fakes of the remote services botdas
// talks to, served over httptest so the real clients can be exercised.
package testutil

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// RecordedRequest is a request observed by a fake server.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	Body          []byte
}

// failure is an injected error response.
type failure struct {
	method  string
	pattern string
	status  int
	body    string
}

// failures matches requests against injected failures.
type failures struct {
	mu    sync.Mutex
	rules []failure
}

func (f *failures) add(method, pattern string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, failure{method: method, pattern: pattern, status: status, body: body})
}

// match returns the first rule whose method matches and whose pattern is a
// substring of the request path.
func (f *failures) match(r *http.Request) (failure, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rule := range f.rules {
		if rule.method != "" && rule.method != r.Method {
			continue
		}
		if strings.Contains(r.URL.Path, rule.pattern) {
			return rule, true
		}
	}
	return failure{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// blobSHA returns a stable content hash.
func blobSHA(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}
