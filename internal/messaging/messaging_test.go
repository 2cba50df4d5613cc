package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSplitMessageShortPassesThrough(t *testing.T) {
	parts := SplitMessage("Olá! Como posso ajudar?")
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != "Olá! Como posso ajudar?" {
		t.Errorf("unexpected part: %q", parts[0])
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	if parts := SplitMessage("   \n\n  "); parts != nil {
		t.Errorf("expected nil for blank input, got %v", parts)
	}
}

func TestSplitMessageParagraphs(t *testing.T) {
	parts := SplitMessage("Primeira parte.\n\nSegunda parte.\n\n\n\nTerceira parte.")
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d: %v", len(parts), parts)
	}
	if parts[1] != "Segunda parte." {
		t.Errorf("unexpected second part: %q", parts[1])
	}
}

func TestSplitMessageLiteralEscapes(t *testing.T) {
	// Models sometimes emit the two-character escape sequence.
	parts := SplitMessage(`Oi!\n\nTudo bem?`)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d: %v", len(parts), parts)
	}
}

func TestSplitMessageLongParagraphOnSentences(t *testing.T) {
	sentence := strings.Repeat("Uma frase de teste com tamanho razoável. ", 12)
	parts := SplitMessage(sentence)
	if len(parts) < 2 {
		t.Fatalf("expected multiple parts for long paragraph, got %d", len(parts))
	}
	for _, p := range parts {
		if len([]rune(p)) > MaxPartLength {
			t.Errorf("part exceeds limit (%d chars): %q", len([]rune(p)), p)
		}
	}
}

func TestSplitMessageLongWordRun(t *testing.T) {
	// One giant sentence with no punctuation splits on words.
	text := strings.TrimSpace(strings.Repeat("palavra ", 80))
	parts := SplitMessage(text)
	if len(parts) < 2 {
		t.Fatalf("expected word-level split, got %d parts", len(parts))
	}
	for _, p := range parts {
		if len([]rune(p)) > MaxPartLength {
			t.Errorf("part exceeds limit: %d chars", len([]rune(p)))
		}
	}
}

func TestSplitMessagePartCap(t *testing.T) {
	blocks := make([]string, 15)
	for i := range blocks {
		blocks[i] = "bloco"
	}
	parts := SplitMessage(strings.Join(blocks, "\n\n"))
	if len(parts) != MaxParts {
		t.Fatalf("expected %d parts, got %d", MaxParts, len(parts))
	}
	// Overflow is merged into the final part, not dropped.
	if !strings.Contains(parts[MaxParts-1], "\n\n") {
		t.Errorf("expected merged tail, got %q", parts[MaxParts-1])
	}
}

func TestEvolutionSendMessage(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload sendTextPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	svc, err := NewEvolutionService(
		WithBaseURL(server.URL),
		WithAPIKey("secret"),
		WithInstance("aleen"),
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewEvolutionService failed: %v", err)
	}

	if err := svc.SendMessage(context.Background(), "+55 (11) 99999-0001", "Olá!"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if gotPath != "/message/sendText/aleen" {
		t.Errorf("unexpected path: %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("unexpected api key header: %q", gotKey)
	}
	if gotPayload.Number != "5511999990001" {
		t.Errorf("expected canonical number, got %q", gotPayload.Number)
	}
	if gotPayload.Text != "Olá!" {
		t.Errorf("unexpected text: %q", gotPayload.Text)
	}
	if gotPayload.Options.Presence != "composing" {
		t.Errorf("unexpected presence: %q", gotPayload.Options.Presence)
	}
}

func TestEvolutionSendMessageGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	svc, err := NewEvolutionService(WithBaseURL(server.URL), WithInstance("aleen"), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewEvolutionService failed: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "5511999990001", "oi"); err == nil {
		t.Fatal("expected error for gateway rejection")
	}
}

func TestValidateRecipient(t *testing.T) {
	svc, err := NewEvolutionService(WithBaseURL("http://localhost"), WithInstance("aleen"))
	if err != nil {
		t.Fatalf("NewEvolutionService failed: %v", err)
	}

	canonical, err := svc.ValidateAndCanonicalizeRecipient("+55 (11) 99999-0001")
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if canonical != "5511999990001" {
		t.Errorf("unexpected canonical form: %q", canonical)
	}

	for _, bad := range []string{"", "abc", "12345"} {
		if _, err := svc.ValidateAndCanonicalizeRecipient(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

// failAfter sends n messages then fails.
type failAfter struct {
	n    int
	sent []string
}

func (f *failAfter) ValidateAndCanonicalizeRecipient(r string) (string, error) { return r, nil }
func (f *failAfter) Ping(ctx context.Context) error                           { return nil }
func (f *failAfter) SendMessage(ctx context.Context, to, body string) error {
	if len(f.sent) >= f.n {
		return errors.New("provider down")
	}
	f.sent = append(f.sent, body)
	return nil
}

func TestSendSplitReportsPartialDelivery(t *testing.T) {
	svc := &failAfter{n: 1}
	sent, parts, err := SendSplit(context.Background(), svc, "5511999990001", "um\n\ndois\n\ntrês")
	if err == nil {
		t.Fatal("expected error for failed part")
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	if sent != 1 {
		t.Errorf("expected 1 part delivered before failure, got %d", sent)
	}
}
