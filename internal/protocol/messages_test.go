package protocol

import (
	"errors"
	"testing"
)

func TestParseChatRequestWithUser(t *testing.T) {
	req, err := ParseChatRequest([]byte(`{"user_id":" u1 ","message":"okay I guess"}`))
	if err != nil {
		t.Fatalf("ParseChatRequest() error = %v", err)
	}
	if req.User() != "u1" || req.Message != "okay I guess" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestParseChatRequestWithoutUser(t *testing.T) {
	req, err := ParseChatRequest([]byte(`{"message":""}`))
	if err != nil {
		t.Fatalf("ParseChatRequest() error = %v", err)
	}
	if req.UserID != nil || req.User() != "" {
		t.Fatalf("UserID = %v, want nil", req.UserID)
	}

	req, err = ParseChatRequest([]byte(`{"user_id":null,"message":"hi"}`))
	if err != nil {
		t.Fatalf("ParseChatRequest() error = %v", err)
	}
	if req.User() != "" {
		t.Fatalf("User() = %q, want empty", req.User())
	}
}

func TestParseChatRequestRejectsMalformed(t *testing.T) {
	inputs := []string{
		`not json`,
		`{"user_id":"u1"}`,
		`{"message":42}`,
		`[]`,
	}
	for _, in := range inputs {
		if _, err := ParseChatRequest([]byte(in)); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("ParseChatRequest(%s) error = %v, want ErrInvalidRequest", in, err)
		}
	}
}

func BenchmarkParseChatRequest(b *testing.B) {
	raw := []byte(`{"user_id":"3f1c2a8e-5b7d-4c1e-9f00-1a2b3c4d5e6f","message":"I have been sleeping badly this week"}`)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ParseChatRequest(raw); err != nil {
			b.Fatal(err)
		}
	}
}
