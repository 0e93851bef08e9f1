package aptos

import (
	"fmt"
	"strings"

	sdk "github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/crypto"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PrivateKeyHexLength is the length of a 0x-prefixed ed25519 seed in hex
const PrivateKeyHexLength = 66

// Account is an ed25519 signer with its derived on-chain address
type Account struct {
	key    *crypto.Ed25519PrivateKey
	signer *sdk.Account
}

// AccountFromPrivateKey decodes a 0x-prefixed 32-byte seed and derives the account address.
// The "ed25519-priv-" prefix used by wallet exports is accepted.
func AccountFromPrivateKey(key string) (*Account, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "ed25519-priv-")
	if len(key) != PrivateKeyHexLength {
		return nil, fmt.Errorf("private key must be %d characters, got %d", PrivateKeyHexLength, len(key))
	}

	seed, err := hexutil.Decode(key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}

	privateKey := &crypto.Ed25519PrivateKey{}
	if err := privateKey.FromBytes(seed); err != nil {
		return nil, fmt.Errorf("invalid ed25519 key: %w", err)
	}

	signer, err := sdk.NewAccountFromSigner(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive account: %w", err)
	}

	return &Account{key: privateKey, signer: signer}, nil
}

// Address returns the 0x-prefixed 32-byte account address
func (a *Account) Address() string {
	return hexutil.Encode(a.signer.Address[:])
}

// AuthenticationKey returns the single-key authentication key, which is also the address of
// an account that never rotated its key
func (a *Account) AuthenticationKey() string {
	authKey := a.key.AuthKey()
	return hexutil.Encode(authKey[:])
}

// PublicKeyHex returns the 0x-prefixed public key
func (a *Account) PublicKeyHex() string {
	return hexutil.Encode(a.key.PubKey().Bytes())
}

// NormalizeAddress validates an account address and left-pads it to 32 bytes
func NormalizeAddress(addr string) (string, error) {
	parsed, err := parseAddress(addr)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(parsed[:]), nil
}

func parseAddress(addr string) (sdk.AccountAddress, error) {
	var parsed sdk.AccountAddress

	addr = strings.ToLower(strings.TrimSpace(addr))
	if !strings.HasPrefix(addr, "0x") {
		return parsed, fmt.Errorf("address %q must start with 0x", addr)
	}
	if digits := len(addr) - 2; digits == 0 || digits > 64 {
		return parsed, fmt.Errorf("address %q has invalid length %d", addr, len(addr))
	}

	if err := parsed.ParseStringRelaxed(addr); err != nil {
		return parsed, fmt.Errorf("address %q is not hex: %w", addr, err)
	}
	return parsed, nil
}
