package style

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/linear-tutor/internal/model/style"
)

func TestListStyles(t *testing.T) {
	r := chi.NewRouter()
	New(style.NewMemoryStore(style.Seed())).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/styles", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Default string         `json:"default"`
		Styles  []style.Option `json:"styles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body.Default != "step-by-step" {
		t.Fatalf("unexpected default %q", body.Default)
	}
	if len(body.Styles) != 4 || body.Styles[2].ID != style.ExamStyle {
		t.Fatalf("unexpected styles %+v", body.Styles)
	}
}
