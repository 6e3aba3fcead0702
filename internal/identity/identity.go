// Package identity binds the current session to a wallet address via the
// user directory and handles wallet-address comparison and formatting.
package identity

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/maiachat/chatsync/internal/models"
)

// Identity is the current user as the engine sees them. Wallet may be empty
// when the directory lookup failed; the session still works, it just never
// self-matches a message.
type Identity struct {
	UserID   string
	Username string
	Wallet   string
}

// IsMine reports whether msg was authored by this identity. Wallet addresses
// compare case-insensitively; an empty wallet matches nothing.
func (id Identity) IsMine(msg models.Message) bool {
	if id.Wallet == "" {
		return false
	}
	return strings.EqualFold(msg.SenderAddress, id.Wallet)
}

// Resolver looks up wallet addresses in the external user directory.
type Resolver struct {
	baseURL string
	client  *http.Client
}

func NewResolver(baseURL string) *Resolver {
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WalletAddress resolves a username (with or without a leading @) to its
// wallet address, normalized to checksum form.
func (r *Resolver) WalletAddress(ctx context.Context, username string) (string, error) {
	username = strings.TrimPrefix(username, "@")
	reqURL := fmt.Sprintf("%s/user?username=%s", r.baseURL, url.QueryEscape(username))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("user lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user lookup: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("user lookup: %w", err)
	}
	if payload.WalletAddress == "" {
		return "", fmt.Errorf("user lookup: no wallet for %q", username)
	}
	return ChecksumAddress(payload.WalletAddress), nil
}

// ChecksumAddress normalizes a 0x-prefixed hex address to its EIP-55 mixed
// case form. Anything that is not a 40-digit hex address is returned as-is.
func ChecksumAddress(addr string) string {
	hexPart := strings.TrimPrefix(strings.ToLower(addr), "0x")
	if len(hexPart) != 40 {
		return addr
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return addr
	}

	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(hexPart))
	digest := hash.Sum(nil)

	out := make([]byte, 40)
	for i := 0; i < 40; i++ {
		c := hexPart[i]
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if c >= 'a' && c <= 'f' && nibble&0x0f >= 8 {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}
