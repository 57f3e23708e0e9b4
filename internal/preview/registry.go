package preview

import (
	"bytes"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"signscribe/internal/domain"
)

// PathPrefix is where preview blobs are served from.
const PathPrefix = "/preview/"

// Registry holds recorded clips in memory and serves them to the webview.
// A handle stays resolvable until it is revoked.
type Registry struct {
	mu    sync.RWMutex
	blobs map[string]entry
}

type entry struct {
	blob    domain.Blob
	created time.Time
}

func NewRegistry() *Registry {
	return &Registry{blobs: make(map[string]entry)}
}

// Create registers a copy of the blob and returns a handle for it.
func (r *Registry) Create(blob domain.Blob) (domain.PreviewHandle, error) {
	id := uuid.NewString()
	stored := blob
	stored.Data = append([]byte(nil), blob.Data...)
	if stored.MediaType == "" {
		stored.MediaType = domain.MediaTypeWebM
	}

	r.mu.Lock()
	r.blobs[id] = entry{blob: stored, created: time.Now()}
	r.mu.Unlock()

	return domain.PreviewHandle{ID: id, URL: PathPrefix + id + ".webm"}, nil
}

// Revoke drops the blob behind a handle. Unknown ids are ignored.
func (r *Registry) Revoke(id string) {
	r.mu.Lock()
	delete(r.blobs, id)
	r.mu.Unlock()
}

// Live reports how many handles are currently resolvable.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if !strings.HasPrefix(req.URL.Path, PathPrefix) {
		http.NotFound(w, req)
		return
	}
	name := path.Base(req.URL.Path)
	id := strings.TrimSuffix(name, path.Ext(name))

	r.mu.RLock()
	stored, ok := r.blobs[id]
	r.mu.RUnlock()
	if !ok {
		http.NotFound(w, req)
		return
	}

	w.Header().Set("Content-Type", stored.blob.MediaType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, req, name, stored.created, bytes.NewReader(stored.blob.Data))
}
