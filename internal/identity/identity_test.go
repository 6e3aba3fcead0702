package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maiachat/chatsync/internal/models"
)

func TestChecksumAddress(t *testing.T) {
	// EIP-55 reference vectors.
	cases := map[string]string{
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed": "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xFB6916095CA1DF60BB79CE92CE3EA74C37C5D359": "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbf03b407c01e7cd3cbea99509d93f8dddc8c6fb": "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
	}
	for in, want := range cases {
		if got := ChecksumAddress(in); got != want {
			t.Errorf("ChecksumAddress(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestChecksumAddressPassesThroughNonAddresses(t *testing.T) {
	for _, in := range []string{"", "not-an-address", "0x1234", "0xzzzz6053f3e94c9b9a09f33669435e7ef1beaed"} {
		if got := ChecksumAddress(in); got != in {
			t.Errorf("ChecksumAddress(%q) = %q, want input unchanged", in, got)
		}
	}
}

func TestIsMineCaseInsensitive(t *testing.T) {
	id := Identity{Username: "alice", Wallet: "0xAbCd5aaeb6053f3e94c9b9a09f33669435e7ef1b"}

	msg := models.Message{SenderAddress: "0xabcd5AAEB6053F3E94C9B9A09F33669435E7EF1B"}
	if !id.IsMine(msg) {
		t.Error("Expected case-insensitive wallet match")
	}

	other := models.Message{SenderAddress: "0x0000000000000000000000000000000000000001"}
	if id.IsMine(other) {
		t.Error("Expected foreign wallet not to match")
	}
}

func TestIsMineEmptyWalletNeverMatches(t *testing.T) {
	id := Identity{Username: "alice"}
	if id.IsMine(models.Message{SenderAddress: ""}) {
		t.Error("Expected empty wallet to match nothing, even an empty sender")
	}
}

func TestWalletAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("username"); got != "alice" {
			t.Errorf("Expected username query 'alice', got '%s'", got)
		}
		w.Write([]byte(`{"wallet_address":"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"}`))
	}))
	defer srv.Close()

	r := NewResolver(srv.URL)
	// The leading @ must be stripped before the lookup.
	addr, err := r.WalletAddress(context.Background(), "@alice")
	if err != nil {
		t.Fatalf("Failed to resolve wallet: %v", err)
	}
	if addr != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Errorf("Expected checksummed address, got %s", addr)
	}
}

func TestWalletAddressMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	r := NewResolver(srv.URL)
	if _, err := r.WalletAddress(context.Background(), "ghost"); err == nil {
		t.Error("Expected error when the directory has no wallet for the user")
	}
}
