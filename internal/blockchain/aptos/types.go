package aptos

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	sdk "github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
)

// ErrNotFound marks an absent account, resource or transaction. Callers treat it as
// an expected outcome, every other error is a transport failure.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the REST API
type APIError struct {
	StatusCode  int    `json:"-"`
	Message     string `json:"message"`
	ErrorCode   string `json:"error_code"`
	VMErrorCode *int   `json:"vm_error_code,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aptos api error %d (%s): %s", e.StatusCode, e.ErrorCode, e.Message)
}

// Is makes 404 responses match ErrNotFound
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// apiError converts the SDK's HTTP error into an APIError, decoding the node's JSON body
func apiError(err error) error {
	var httpErr *sdk.HttpError
	if !errors.As(err, &httpErr) {
		return err
	}
	out := &APIError{StatusCode: httpErr.StatusCode}
	if jsonErr := json.Unmarshal(httpErr.Body, out); jsonErr != nil || out.Message == "" {
		out.Message = strings.TrimSpace(string(httpErr.Body))
	}
	return out
}

// Arg is a typed Move argument of an entry or view function
type Arg interface {
	fmt.Stringer
	encode(ser *bcs.Serializer)
}

// U64 is a u64 argument
type U64 uint64

func (v U64) String() string             { return strconv.FormatUint(uint64(v), 10) }
func (v U64) encode(ser *bcs.Serializer) { ser.U64(uint64(v)) }

// Bool is a bool argument
type Bool bool

func (v Bool) String() string             { return strconv.FormatBool(bool(v)) }
func (v Bool) encode(ser *bcs.Serializer) { ser.Bool(bool(v)) }

// Bytes is a vector<u8> argument
type Bytes string

func (v Bytes) String() string             { return string(v) }
func (v Bytes) encode(ser *bcs.Serializer) { ser.WriteBytes([]byte(v)) }

// Address is an address argument
type Address string

func (v Address) String() string { return string(v) }

func (v Address) encode(ser *bcs.Serializer) {
	addr, err := parseAddress(string(v))
	if err != nil {
		ser.SetError(err)
		return
	}
	addr.MarshalBCS(ser)
}

// encodeArgs serializes every argument on its own, the layout entry and view functions expect
func encodeArgs(args []Arg) ([][]byte, error) {
	out := make([][]byte, 0, len(args))
	for i, arg := range args {
		ser := &bcs.Serializer{}
		arg.encode(ser)
		if err := ser.Error(); err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, arg, err)
		}
		out = append(out, ser.ToBytes())
	}
	return out, nil
}

// EntryFunctionPayload calls a public entry function
type EntryFunctionPayload struct {
	Function      string
	TypeArguments []string
	Arguments     []Arg
}

// NewEntryFunction builds an entry function payload
func NewEntryFunction(function string, typeArgs []string, args ...Arg) EntryFunctionPayload {
	if typeArgs == nil {
		typeArgs = []string{}
	}
	if args == nil {
		args = []Arg{}
	}
	return EntryFunctionPayload{
		Function:      function,
		TypeArguments: typeArgs,
		Arguments:     args,
	}
}

// toSDK resolves the function id and type tags and BCS-encodes the arguments
func (p EntryFunctionPayload) toSDK() (sdk.TransactionPayload, error) {
	module, name, err := parseFunction(p.Function)
	if err != nil {
		return sdk.TransactionPayload{}, err
	}
	tags, err := parseTypeTags(p.TypeArguments)
	if err != nil {
		return sdk.TransactionPayload{}, err
	}
	args, err := encodeArgs(p.Arguments)
	if err != nil {
		return sdk.TransactionPayload{}, err
	}
	return sdk.TransactionPayload{Payload: &sdk.EntryFunction{
		Module:   module,
		Function: name,
		ArgTypes: tags,
		Args:     args,
	}}, nil
}

// parseFunction splits "address::module::function"
func parseFunction(function string) (sdk.ModuleId, string, error) {
	parts := strings.Split(function, "::")
	if len(parts) != 3 {
		return sdk.ModuleId{}, "", fmt.Errorf("invalid function id %q", function)
	}
	addr, err := parseAddress(parts[0])
	if err != nil {
		return sdk.ModuleId{}, "", fmt.Errorf("invalid function id %q: %w", function, err)
	}
	return sdk.ModuleId{Address: addr, Name: parts[1]}, parts[2], nil
}

func parseTypeTags(types []string) ([]sdk.TypeTag, error) {
	tags := make([]sdk.TypeTag, 0, len(types))
	for _, t := range types {
		tag, err := sdk.ParseTypeTag(t)
		if err != nil {
			return nil, fmt.Errorf("invalid type argument %q: %w", t, err)
		}
		tags = append(tags, *tag)
	}
	return tags, nil
}

// RawTransaction is an unsigned user transaction. It keeps the BCS form the client signs.
type RawTransaction struct {
	Sender                  string
	SequenceNumber          uint64
	MaxGasAmount            uint64
	GasUnitPrice            uint64
	ExpirationTimestampSecs uint64
	Payload                 EntryFunctionPayload

	raw *sdk.RawTransaction
}

// SetMaxGasAmount updates the gas limit
func (tx *RawTransaction) SetMaxGasAmount(limit uint64) {
	tx.MaxGasAmount = limit
	if tx.raw != nil {
		tx.raw.MaxGasAmount = limit
	}
}

// Transaction types returned by the API
const (
	TypePendingTransaction = "pending_transaction"
	TypeUserTransaction    = "user_transaction"
)

// Transaction is the subset of a transaction response the modules use
type Transaction struct {
	Type     string `json:"type"`
	Hash     string `json:"hash"`
	Version  string `json:"version,omitempty"`
	Success  *bool  `json:"success,omitempty"`
	VMStatus string `json:"vm_status,omitempty"`
	GasUsed  string `json:"gas_used,omitempty"`
}

// Pending reports whether the transaction has not been committed yet
func (t *Transaction) Pending() bool {
	return t.Type == TypePendingTransaction
}

// GasUsedUnits parses gas_used
func (t *Transaction) GasUsedUnits() uint64 {
	n, _ := strconv.ParseUint(t.GasUsed, 10, 64)
	return n
}

// LedgerInfo is the node's current ledger state
type LedgerInfo struct {
	ChainID       uint8
	LedgerVersion uint64
}

// ViewRequest calls a view function
type ViewRequest struct {
	Function      string
	TypeArguments []string
	Arguments     []Arg
}

func (r ViewRequest) toSDK() (*sdk.ViewPayload, error) {
	module, name, err := parseFunction(r.Function)
	if err != nil {
		return nil, err
	}
	tags, err := parseTypeTags(r.TypeArguments)
	if err != nil {
		return nil, err
	}
	args, err := encodeArgs(r.Arguments)
	if err != nil {
		return nil, err
	}
	return &sdk.ViewPayload{Module: module, Function: name, ArgTypes: tags, Args: args}, nil
}

// ParseU64 decodes a u64 returned as a JSON string
func ParseU64(raw json.RawMessage) (uint64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("failed to decode u64: %w", err)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid u64 %q: %w", s, err)
	}
	return n, nil
}
